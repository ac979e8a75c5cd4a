package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	lederr "github.com/vitewallet/ledger/internal/errors"
	"github.com/vitewallet/ledger/internal/ledger"
	"github.com/vitewallet/ledger/internal/types"
)

const (
	DuplicateKeyValue string = "23505"

	// Unique constraints on the transactions table. The violated constraint
	// decides whether a collision is retryable: a taken reference gets a new
	// one, a taken correlation id is a duplicate client request.
	constraintTRID          = "transactions_trid_key"
	constraintCorrelationID = "transactions_server_correlation_id_key"
)

const transactionColumns = `trid, server_correlation_id, source, destination,
	amount, currency, transaction_type, state, callback_url, description_text,
	bill_ref, request_date, created_at, modified_at`

func scanTransaction(row pgx.Row) (*types.Transaction, error) {
	var t types.Transaction

	err := row.Scan(&t.TRID, &t.ServerCorrelationID, &t.Source, &t.Destination,
		&t.Amount, &t.Currency, &t.Type, &t.State, &t.CallbackURL,
		&t.Description, &t.BillRef, &t.RequestDate, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrNotFound
		}

		return nil, fmt.Errorf("couldn't scan transaction: %w", err)
	}

	return &t, nil
}

// CreateWithFundsCheck inserts the transaction, optionally enforcing the
// derived available balance of the source wallet. The source wallet row is
// locked first, so two concurrent spends from the same wallet serialize and
// the second one sees the first one's pending row. The check and the insert
// commit or fail as one unit.
func (p *Postgres) CreateWithFundsCheck(ctx context.Context, t *types.Transaction, enforceFunds bool) error {
	dbTx, err := p.pg.Begin(ctx)
	if err != nil {
		return fmt.Errorf("couldn't begin: %w", err)
	}
	defer dbTx.Rollback(ctx)

	var locked uuid.UUID
	err = dbTx.QueryRow(ctx,
		`SELECT wallet_id FROM wallets WHERE wallet_id = $1 FOR UPDATE`,
		t.Source,
	).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return lederr.ErrWalletNotFound
		}

		return fmt.Errorf("couldn't lock source wallet: %w", err)
	}

	if enforceFunds {
		txs, topups, err := p.balanceSnapshot(ctx, dbTx, t.Source)
		if err != nil {
			return err
		}

		balances := ledger.Compute(t.Source, txs, topups)
		if balances.Available < t.Amount {
			return &lederr.InsufficientFundsError{
				Available: balances.Available,
				Requested: t.Amount,
			}
		}
	}

	row := dbTx.QueryRow(ctx, `
		INSERT INTO transactions (trid, server_correlation_id, source,
			destination, amount, currency, transaction_type, state,
			callback_url, description_text, bill_ref, request_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, modified_at`,
		t.TRID, t.ServerCorrelationID, t.Source, t.Destination, t.Amount,
		t.Currency, t.Type, t.State, t.CallbackURL, t.Description, t.BillRef,
		t.RequestDate,
	)

	if err := row.Scan(&t.CreatedAt, &t.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == DuplicateKeyValue {
			switch pgErr.ConstraintName {
			case constraintCorrelationID:
				return lederr.ErrDuplicateCorrelationID
			case constraintTRID:
				return lederr.ErrDuplicateReference
			}
		}

		return fmt.Errorf("couldn't insert transaction: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("couldn't commit: %w", err)
	}

	return nil
}

func (p *Postgres) GetTransaction(ctx context.Context, trid uuid.UUID) (*types.Transaction, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE trid = $1`, trid)

	return scanTransaction(row)
}

func (p *Postgres) GetByCorrelationID(ctx context.Context, id uuid.UUID) (*types.Transaction, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE server_correlation_id = $1`, id)

	return scanTransaction(row)
}

// AdvanceState is a compare-and-set on the state column. It reports whether
// this caller won the transition; a false return with no error means another
// worker got there first.
func (p *Postgres) AdvanceState(ctx context.Context, trid uuid.UUID, from, to types.TxState) (bool, error) {
	tag, err := p.pg.Exec(ctx, `
		UPDATE transactions SET state = $3, modified_at = now()
		WHERE trid = $1 AND state = $2`,
		trid, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("couldn't advance state: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// BalanceSnapshot returns every ledger row touching the wallet. Both queries
// run inside one repeatable-read transaction, so a topup or transaction
// committed between them cannot skew the fold.
func (p *Postgres) BalanceSnapshot(ctx context.Context, walletID uuid.UUID) ([]types.Transaction, []types.Topup, error) {
	dbTx, err := p.pg.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't begin snapshot: %w", err)
	}
	defer dbTx.Rollback(ctx)

	txs, topups, err := p.balanceSnapshot(ctx, dbTx, walletID)
	if err != nil {
		return nil, nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("couldn't commit snapshot: %w", err)
	}

	return txs, topups, nil
}

// querier is satisfied by both the pool and an open transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func (p *Postgres) balanceSnapshot(ctx context.Context, q querier, walletID uuid.UUID) ([]types.Transaction, []types.Topup, error) {
	rows, err := q.Query(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE source = $1 OR destination = $1`, walletID)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't query transactions: %w", err)
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, nil, err
		}

		txs = append(txs, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("transactions iteration: %w", err)
	}

	topupRows, err := q.Query(ctx, `
		SELECT id, wallet_id, amount, currency, created_at FROM topups
		WHERE wallet_id = $1`, walletID)
	if err != nil {
		return nil, nil, fmt.Errorf("couldn't query topups: %w", err)
	}
	defer topupRows.Close()

	var topups []types.Topup
	for topupRows.Next() {
		var topup types.Topup
		if err := topupRows.Scan(&topup.ID, &topup.WalletID, &topup.Amount,
			&topup.Currency, &topup.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("couldn't scan topup: %w", err)
		}

		topups = append(topups, topup)
	}
	if err := topupRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("topups iteration: %w", err)
	}

	return txs, topups, nil
}
