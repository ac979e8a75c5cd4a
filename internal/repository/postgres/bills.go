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

const billColumns = `bill_reference, biller, billee, currency, amount_due,
	min_amount_due, due_date, bill_description, created_at, modified_at`

func scanBill(row pgx.Row) (*types.Bill, error) {
	var b types.Bill

	err := row.Scan(&b.BillRef, &b.Biller, &b.Billee, &b.Currency,
		&b.AmountDue, &b.MinAmountDue, &b.DueDate, &b.Description,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrNotFound
		}

		return nil, fmt.Errorf("couldn't scan bill: %w", err)
	}

	return &b, nil
}

func (p *Postgres) CreateBill(ctx context.Context, b *types.Bill) error {
	row := p.pg.QueryRow(ctx, `
		INSERT INTO bills (bill_reference, biller, billee, currency,
			amount_due, min_amount_due, due_date, bill_description)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, modified_at`,
		b.BillRef, b.Biller, b.Billee, b.Currency, b.AmountDue,
		b.MinAmountDue, b.DueDate, b.Description,
	)

	if err := row.Scan(&b.CreatedAt, &b.UpdatedAt); err != nil {
		return fmt.Errorf("couldn't insert bill: %w", err)
	}

	return nil
}

func (p *Postgres) GetBill(ctx context.Context, ref uuid.UUID) (*types.Bill, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+billColumns+` FROM bills WHERE bill_reference = $1`, ref)

	return scanBill(row)
}

func (p *Postgres) BillsForBillee(ctx context.Context, billee uuid.UUID) ([]types.Bill, error) {
	rows, err := p.pg.Query(ctx,
		`SELECT `+billColumns+` FROM bills WHERE billee = $1 ORDER BY due_date`, billee)
	if err != nil {
		return nil, fmt.Errorf("couldn't query bills: %w", err)
	}
	defer rows.Close()

	var bills []types.Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}

		bills = append(bills, *b)
	}

	return bills, rows.Err()
}

// BillPaid derives the paid state from the transaction log: a bill is paid
// once a completed billpay transaction references it.
func (p *Postgres) BillPaid(ctx context.Context, ref uuid.UUID) (bool, error) {
	var paid bool

	err := p.pg.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE bill_ref = $1
			AND transaction_type = 'billpay'
			AND state = 'completed'
		)`, ref,
	).Scan(&paid)
	if err != nil {
		return false, fmt.Errorf("couldn't derive bill state: %w", err)
	}

	return paid, nil
}
