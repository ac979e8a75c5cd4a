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

const walletColumns = `wallet_id, msisdn, token, name, status, type, balance, created_at, updated_at`

func scanWallet(row pgx.Row) (*types.Wallet, error) {
	var w types.Wallet

	err := row.Scan(&w.ID, &w.MSISDN, &w.Token, &w.Name, &w.Status, &w.Type,
		&w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrWalletNotFound
		}

		return nil, fmt.Errorf("couldn't scan wallet: %w", err)
	}

	return &w, nil
}

func (p *Postgres) CreateWallet(ctx context.Context, w *types.Wallet) error {
	_, err := p.pg.Exec(ctx, `
		INSERT INTO wallets (wallet_id, msisdn, token, name, status, type, balance)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		w.ID, w.MSISDN, w.Token, w.Name, w.Status, w.Type, w.Balance,
	)
	if err != nil {
		return fmt.Errorf("couldn't insert wallet: %w", err)
	}

	return nil
}

func (p *Postgres) GetWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE wallet_id = $1`, id)

	return scanWallet(row)
}

func (p *Postgres) GetWalletByMSISDN(ctx context.Context, msisdn string) (*types.Wallet, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+walletColumns+` FROM wallets WHERE msisdn = $1`, msisdn)

	return scanWallet(row)
}

// RefreshBalanceHint stores a display copy of the derived balance. Nothing
// reads it for money decisions.
func (p *Postgres) RefreshBalanceHint(ctx context.Context, id uuid.UUID, balance int64) error {
	tag, err := p.pg.Exec(ctx, `
		UPDATE wallets SET balance = $2, updated_at = now()
		WHERE wallet_id = $1`,
		id, balance,
	)
	if err != nil {
		return fmt.Errorf("couldn't update balance hint: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return lederr.ErrWalletNotFound
	}

	return nil
}

func (p *Postgres) CreateTopup(ctx context.Context, topup *types.Topup) error {
	row := p.pg.QueryRow(ctx, `
		INSERT INTO topups (wallet_id, amount, currency)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		topup.WalletID, topup.Amount, topup.Currency,
	)

	if err := row.Scan(&topup.ID, &topup.CreatedAt); err != nil {
		return fmt.Errorf("couldn't insert topup: %w", err)
	}

	return nil
}
