// Package postgres is the production repository. The contracts the services
// rely on live here: the funds check and the transaction insert commit as one
// unit, state transitions are compare-and-set updates, and balance snapshots
// come from single queries.
package postgres

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Postgres struct {
	pg          *pgxpool.Pool
	pingTimeout time.Duration
	log         *slog.Logger
}

func New(pool *pgxpool.Pool, pingTimeout time.Duration) *Postgres {
	return &Postgres{
		pg:          pool,
		pingTimeout: pingTimeout,
		log:         slog.With("component", "db"),
	}
}

const pingAttempts = 3

// Ping verifies the pool is usable, retrying a few times so a server that is
// still coming up does not fail the caller immediately. Each attempt gets its
// own deadline; an unbounded ping can hang on a half-open connection.
func (p *Postgres) Ping(ctx context.Context) error {
	var err error
	for attempt := 1; attempt <= pingAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, p.pingTimeout)
		err = p.pg.Ping(pingCtx)
		cancel()

		if err == nil {
			return nil
		}

		p.log.Info("postgres ping failed", "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.pingTimeout):
		}
	}

	return err
}
