package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/types"
)

func (p *Postgres) CreateBatch(ctx context.Context, b *types.BatchTransaction) error {
	row := p.pg.QueryRow(ctx, `
		INSERT INTO batch_transactions (batch_trid, merchant, batch_title, processing)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, modified_at`,
		b.BatchTRID, b.Merchant, b.Title, b.Processing,
	)

	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("couldn't insert batch: %w", err)
	}

	return nil
}

func (p *Postgres) AddLookup(ctx context.Context, lookup *types.BatchLookup) error {
	_, err := p.pg.Exec(ctx, `
		INSERT INTO batch_lookup (batch_trid, trid)
		VALUES ($1, $2)`,
		lookup.BatchTRID, lookup.TRID,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert batch lookup: %w", err)
	}

	return nil
}

func (p *Postgres) GetBatch(ctx context.Context, batchTRID uuid.UUID) (*types.BatchTransaction, error) {
	var b types.BatchTransaction

	err := p.pg.QueryRow(ctx, `
		SELECT batch_trid, merchant, batch_title, processing, created_at, modified_at
		FROM batch_transactions WHERE batch_trid = $1`, batchTRID,
	).Scan(&b.BatchTRID, &b.Merchant, &b.Title, &b.Processing, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrNotFound
		}

		return nil, fmt.Errorf("couldn't scan batch: %w", err)
	}

	return &b, nil
}

func (p *Postgres) GetMemberTransactions(ctx context.Context, batchTRID uuid.UUID) ([]types.Transaction, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT t.trid, t.server_correlation_id, t.source, t.destination,
			t.amount, t.currency, t.transaction_type, t.state, t.callback_url,
			t.description_text, t.bill_ref, t.request_date, t.created_at,
			t.modified_at
		FROM transactions t
		JOIN batch_lookup l ON l.trid = t.trid
		WHERE l.batch_trid = $1
		ORDER BY l.created_at`, batchTRID)
	if err != nil {
		return nil, fmt.Errorf("couldn't query batch members: %w", err)
	}
	defer rows.Close()

	var members []types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}

		members = append(members, *t)
	}

	return members, rows.Err()
}
