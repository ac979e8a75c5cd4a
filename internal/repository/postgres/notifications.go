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

const notificationColumns = `notid, wallet_id, trid, message,
	notification_type, state, attempts, created_at, modified_at`

func scanNotification(row pgx.Row) (*types.Notification, error) {
	var n types.Notification

	err := row.Scan(&n.ID, &n.WalletID, &n.TRID, &n.Message, &n.Type,
		&n.State, &n.Attempts, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, lederr.ErrNotFound
		}

		return nil, fmt.Errorf("couldn't scan notification: %w", err)
	}

	return &n, nil
}

func (p *Postgres) CreateNotification(ctx context.Context, n *types.Notification) error {
	row := p.pg.QueryRow(ctx, `
		INSERT INTO notifications (notid, wallet_id, trid, message,
			notification_type, state, attempts)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at, modified_at`,
		n.ID, n.WalletID, n.TRID, n.Message, n.Type, n.State, n.Attempts,
	)

	if err := row.Scan(&n.CreatedAt, &n.UpdatedAt); err != nil {
		return fmt.Errorf("couldn't insert notification: %w", err)
	}

	return nil
}

func (p *Postgres) GetNotification(ctx context.Context, id uuid.UUID) (*types.Notification, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications WHERE notid = $1`, id)

	return scanNotification(row)
}

// NotificationForTransaction returns the oldest notification owed for the
// transaction, or ErrNotFound when none was created yet.
func (p *Postgres) NotificationForTransaction(ctx context.Context, trid uuid.UUID) (*types.Notification, error) {
	row := p.pg.QueryRow(ctx,
		`SELECT `+notificationColumns+` FROM notifications
		WHERE trid = $1 ORDER BY created_at LIMIT 1`, trid)

	return scanNotification(row)
}

func (p *Postgres) UpdateNotificationState(ctx context.Context, id uuid.UUID, state types.NotificationState, attempts int) error {
	tag, err := p.pg.Exec(ctx, `
		UPDATE notifications SET state = $2, attempts = $3, modified_at = now()
		WHERE notid = $1`,
		id, state, attempts,
	)
	if err != nil {
		return fmt.Errorf("couldn't update notification: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return lederr.ErrNotFound
	}

	return nil
}

func (p *Postgres) PendingNotifications(ctx context.Context, olderThan time.Time, limit int) ([]types.Notification, error) {
	rows, err := p.pg.Query(ctx, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE state = 'pending' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("couldn't query pending notifications: %w", err)
	}
	defer rows.Close()

	var pending []types.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}

		pending = append(pending, *n)
	}

	return pending, rows.Err()
}
