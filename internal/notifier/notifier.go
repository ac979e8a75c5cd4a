// Package notifier delivers notification rows through an external dispatcher.
// It consumes dispatch jobs from the queue and, as a safety net, periodically
// sweeps pending rows that never got a job, so no notification is lost to a
// dropped message.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vitewallet/ledger/internal/metrics"
	"github.com/vitewallet/ledger/internal/queue"
	"github.com/vitewallet/ledger/internal/transaction"
	"github.com/vitewallet/ledger/internal/types"
)

// Job asks the notifier to deliver one notification row.
type Job struct {
	NotificationID uuid.UUID `json:"notification_id"`
}

type Config struct {
	Prefetch      int
	MaxAttempts   int
	RetryBackoff  time.Duration
	SendTimeout   time.Duration
	SweepInterval time.Duration
	SweepAge      time.Duration
	SweepSize     int
	DBTimeout     time.Duration
}

// Dispatcher is the external delivery channel. Implementations must be safe
// for concurrent use.
type Dispatcher interface {
	SendPush(ctx context.Context, msisdn, message string) error
	SendNormal(ctx context.Context, msisdn, message string) error
}

type Repository interface {
	GetNotification(ctx context.Context, id uuid.UUID) (*types.Notification, error)
	UpdateNotificationState(ctx context.Context, id uuid.UUID, state types.NotificationState, attempts int) error
	// PendingNotifications returns pending rows created before the cutoff,
	// oldest first.
	PendingNotifications(ctx context.Context, olderThan time.Time, limit int) ([]types.Notification, error)
	GetWallet(ctx context.Context, id uuid.UUID) (*types.Wallet, error)
}

type Notifier struct {
	config     *Config
	conn       *amqp.Connection
	repo       Repository
	dispatcher Dispatcher
	txs        *transaction.Service
	metrics    *metrics.Metrics
	channel    *amqp.Channel
	log        *slog.Logger
	reconnect  bool
}

func New(config *Config, conn *amqp.Connection, repo Repository, dispatcher Dispatcher,
	txs *transaction.Service, m *metrics.Metrics) *Notifier {
	return &Notifier{
		config:     config,
		conn:       conn,
		repo:       repo,
		dispatcher: dispatcher,
		txs:        txs,
		metrics:    m,
		log:        slog.With("component", "notifier"),
	}
}

func (n *Notifier) Run(ctx context.Context) error {
	n.log.Info("Starting notifier")

	ch, err := queue.EnsureQueueExists(n.conn, queue.QueueNotify)
	if err != nil {
		return err
	}
	// we'll open a new channel for the consumer anyway
	ch.Close()

	messages, err := n.restartConsumer()
	if err != nil {
		return err
	}

	for {
		if n.reconnect {
			n.log.Debug("Reconnection is needed")

			messages, err = n.restartConsumer()
			if err != nil {
				return err
			}

			n.reconnect = false
		}

		select {
		case <-ctx.Done():
			n.log.Info("Stopping notifier...")
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("queue is closed")
			}

			n.handleMessage(ctx, msg)

		case <-time.After(n.config.SweepInterval):
			if err := n.SweepPending(ctx, time.Now().UTC()); err != nil {
				n.log.Error("pending sweep failed", "error", err)
			}
		}
	}
}

func (n *Notifier) restartConsumer() (<-chan amqp.Delivery, error) {
	if n.channel != nil && !n.channel.IsClosed() {
		n.channel.Close()
	}

	ch, err := n.conn.Channel()
	if err != nil {
		return nil, err
	}

	ch.Qos(n.config.Prefetch, 0, false)

	n.channel = ch

	return ch.Consume(
		string(queue.QueueNotify), // queue
		"notifier",                // consumer
		false,                     // autoAck
		false,                     // exclusive
		false,                     // noLocal
		false,                     // no wait
		nil,                       // args
	)
}

func (n *Notifier) handleMessage(ctx context.Context, message amqp.Delivery) {
	var err error

	defer func() {
		if err != nil {
			// Ack failures leave deliveries unacked against the prefetch
			// window; reconnect right away instead of stalling.
			n.reconnect = true
		}
	}()

	var job Job
	if jsonErr := json.Unmarshal(message.Body, &job); jsonErr != nil {
		n.log.Error("job unmarshalling error",
			"body", string(message.Body), "error", jsonErr)

		err = message.Ack(false)
		return
	}

	if deliverErr := n.Deliver(ctx, job.NotificationID); deliverErr != nil {
		n.log.Error("delivery failed",
			"notificationId", job.NotificationID, "error", deliverErr)
	}

	// Delivery outcomes, including permanent failure, are recorded on the
	// row; redelivering the job would not change them.
	err = message.Ack(false)
	if err != nil {
		n.log.Error("Message ack error",
			"message", string(message.Body), "error", err)
	}
}

// SweepPending picks up pending notifications old enough that their dispatch
// job is presumed lost, and delivers them inline.
func (n *Notifier) SweepPending(ctx context.Context, now time.Time) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, n.config.DBTimeout)
	defer cancel()

	pending, err := n.repo.PendingNotifications(ctxWithTimeout,
		now.Add(-n.config.SweepAge), n.config.SweepSize)
	if err != nil {
		return fmt.Errorf("couldn't list pending notifications: %w", err)
	}

	for _, row := range pending {
		if err := n.Deliver(ctx, row.ID); err != nil {
			n.log.Error("sweep delivery failed",
				"notificationId", row.ID, "error", err)
		}
	}

	return nil
}

// Deliver attempts delivery of one notification with bounded retries. A row
// that already reached a terminal state is left alone, which makes queue
// redelivery and the pending sweep safe to overlap. When a push notification
// fails permanently, the transaction waiting on it is failed too: the payer
// can never be asked for their PIN.
func (n *Notifier) Deliver(ctx context.Context, id uuid.UUID) error {
	row, err := n.repo.GetNotification(ctx, id)
	if err != nil {
		return err
	}

	if row.State == types.NotificationSuccess || row.State == types.NotificationFailed {
		return nil
	}

	wallet, err := n.repo.GetWallet(ctx, row.WalletID)
	if err != nil {
		return err
	}

	if err := n.repo.UpdateNotificationState(ctx, id, types.NotificationInProgress, row.Attempts); err != nil {
		return err
	}

	attempts := row.Attempts
	err = fmt.Errorf("no attempts left")
	for attempts < n.config.MaxAttempts {
		attempts++

		err = n.send(ctx, row, wallet.MSISDN)
		if err == nil {
			break
		}

		n.log.Warn("send attempt failed", "notificationId", id,
			"attempt", attempts, "error", err)

		if attempts < n.config.MaxAttempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(n.config.RetryBackoff):
			}
		}
	}

	if err == nil {
		n.metrics.NotificationOutcomes.WithLabelValues(string(row.Type), "success").Inc()
		return n.repo.UpdateNotificationState(ctx, id, types.NotificationSuccess, attempts)
	}

	n.metrics.NotificationOutcomes.WithLabelValues(string(row.Type), "failed").Inc()

	if updateErr := n.repo.UpdateNotificationState(ctx, id, types.NotificationFailed, attempts); updateErr != nil {
		return updateErr
	}

	if row.Type == types.NotificationPush {
		if _, confirmErr := n.txs.ConfirmTransaction(ctx, row.TRID, false); confirmErr != nil {
			n.log.Error("couldn't fail transaction after push failure",
				"trid", row.TRID, "error", confirmErr)
		}
	}

	return fmt.Errorf("delivery exhausted after %d attempts: %w", attempts, err)
}

func (n *Notifier) send(ctx context.Context, row *types.Notification, msisdn string) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, n.config.SendTimeout)
	defer cancel()

	if row.Type == types.NotificationPush {
		return n.dispatcher.SendPush(ctxWithTimeout, msisdn, row.Message)
	}

	return n.dispatcher.SendNormal(ctxWithTimeout, msisdn, row.Message)
}
