package postgres

import (
	"context"
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var schema string

// Migrate applies the schema. Every statement is idempotent, so running it on
// an existing database is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.pg.Exec(ctx, schema); err != nil {
		return fmt.Errorf("couldn't apply schema: %w", err)
	}

	p.log.Info("schema applied")

	return nil
}
