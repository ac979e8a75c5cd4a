package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/types"
)

const mandateColumns = `mandate_reference, payer, payee, currency, amount_limit,
	start_date, end_date, next_charge_at, number_of_payments, charges_made,
	frequency_type, mandate_status, created_at, modified_at`

func scanMandate(row pgx.Row) (*types.DebitMandate, error) {
	var m types.DebitMandate

	err := row.Scan(&m.MandateRef, &m.Payer, &m.Payee, &m.Currency,
		&m.AmountLimit, &m.StartDate, &m.EndDate, &m.NextChargeAt,
		&m.RemainingPayments, &m.ChargesMade, &m.Frequency, &m.Status,
		&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrNotFound
		}

		return nil, fmt.Errorf("couldn't scan mandate: %w", err)
	}

	return &m, nil
}

func (p *Postgres) CreateMandate(ctx context.Context, m *types.DebitMandate) error {
	row := p.pg.QueryRow(ctx, `
		INSERT INTO debit_mandates (mandate_reference, payer, payee, currency,
			amount_limit, start_date, end_date, next_charge_at,
			number_of_payments, charges_made, frequency_type, mandate_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, modified_at`,
		m.MandateRef, m.Payer, m.Payee, m.Currency, m.AmountLimit,
		m.StartDate, m.EndDate, m.NextChargeAt, m.RemainingPayments,
		m.ChargesMade, m.Frequency, m.Status,
	)

	if err := row.Scan(&m.CreatedAt, &m.UpdatedAt); err != nil {
		return fmt.Errorf("couldn't insert mandate: %w", err)
	}

	return nil
}

func (p *Postgres) GetMandate(ctx context.Context, ref uuid.UUID) (*types.DebitMandate, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+mandateColumns+` FROM debit_mandates WHERE mandate_reference = $1`, ref)

	return scanMandate(row)
}

func (p *Postgres) DueMandates(ctx context.Context, now time.Time, limit int) ([]types.DebitMandate, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT `+mandateColumns+` FROM debit_mandates
		WHERE mandate_status = 'active'
		AND number_of_payments > 0
		AND start_date <= $1 AND end_date >= $1
		AND next_charge_at <= $1
		ORDER BY next_charge_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("couldn't query due mandates: %w", err)
	}
	defer rows.Close()

	var due []types.DebitMandate
	for rows.Next() {
		m, err := scanMandate(rows)
		if err != nil {
			return nil, err
		}

		due = append(due, *m)
	}

	return due, rows.Err()
}

func (p *Postgres) RecordCharge(ctx context.Context, ref uuid.UUID, nextCharge time.Time, remaining int, status types.MandateStatus) error {
	tag, err := p.pg.Exec(ctx, `
		UPDATE debit_mandates
		SET next_charge_at = $2, number_of_payments = $3,
			charges_made = charges_made + 1, mandate_status = $4,
			modified_at = now()
		WHERE mandate_reference = $1`,
		ref, nextCharge, remaining, status,
	)
	if err != nil {
		return fmt.Errorf("couldn't record charge: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return lederr.ErrNotFound
	}

	return nil
}

func (p *Postgres) SetMandateStatus(ctx context.Context, ref uuid.UUID, status types.MandateStatus) error {
	tag, err := p.pg.Exec(ctx, `
		UPDATE debit_mandates SET mandate_status = $2, modified_at = now()
		WHERE mandate_reference = $1`,
		ref, status,
	)
	if err != nil {
		return fmt.Errorf("couldn't update mandate status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return lederr.ErrNotFound
	}

	return nil
}
