// Package processor consumes advance jobs and drives accepted transactions
// through the state machine. Settlement then owes the destination a
// notification, which the processor hands off to the notification queue.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vitewallet/ledger/internal/notifier"
	"github.com/vitewallet/ledger/internal/queue"
	"github.com/vitewallet/ledger/internal/transaction"
)

type Config struct {
	Prefetch  int
	DBTimeout time.Duration
}

type Processor struct {
	config    *Config
	conn      *amqp.Connection
	txs       *transaction.Service
	notify    Publisher
	channel   *amqp.Channel
	log       *slog.Logger
	reconnect bool
}

type Publisher interface {
	Publish(message []byte) error
}

func New(config *Config, conn *amqp.Connection, txs *transaction.Service, notify Publisher) *Processor {
	return &Processor{
		config: config,
		conn:   conn,
		txs:    txs,
		notify: notify,
		log:    slog.With("component", "processor"),
	}
}

func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("Starting processor")

	ch, err := queue.EnsureQueueExists(p.conn, queue.QueueAdvance)
	if err != nil {
		return err
	}
	// we'll open a new channel for the consumer anyway
	ch.Close()

	messages, err := p.restartConsumer()
	if err != nil {
		return err
	}

	for {
		if p.reconnect {
			p.log.Debug("Reconnection is needed")

			messages, err = p.restartConsumer()
			if err != nil {
				return err
			}

			p.reconnect = false
		}

		select {
		case <-ctx.Done():
			p.log.Info("Stopping processor...")
			return ctx.Err()

		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("queue is closed")
			}

			p.handleMessage(msg)
		}
	}
}

func (p *Processor) restartConsumer() (<-chan amqp.Delivery, error) {
	if p.channel != nil && !p.channel.IsClosed() {
		p.channel.Close()
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}

	ch.Qos(p.config.Prefetch, 0, false)

	p.channel = ch

	return ch.Consume(
		string(queue.QueueAdvance), // queue
		"processor",                // consumer
		false,                      // autoAck
		false,                      // exclusive
		false,                      // noLocal
		false,                      // no wait
		nil,                        // args
	)
}

func (p *Processor) handleMessage(message amqp.Delivery) {
	var err error

	defer func() {
		if err != nil {
			// Unacked messages accumulate against the prefetch window and
			// eventually stall the consumer, so reconnect as soon as an ack
			// problem shows up.
			p.reconnect = true
		}
	}()

	if err = p.Handle(context.Background(), message.Body); err != nil {
		p.log.Error("advance job failed",
			"body", string(message.Body), "error", err)
		return
	}

	err = message.Ack(false)
	if err != nil {
		p.log.Error("Message ack error",
			"message", string(message.Body), "error", err)
	}
}

// Handle runs one advance job. Redelivery is safe: advancing a transaction
// that already settled is a no-op and produces no second notification.
func (p *Processor) Handle(ctx context.Context, body []byte) error {
	var job transaction.AdvanceJob

	if err := json.Unmarshal(body, &job); err != nil {
		return fmt.Errorf("couldn't unmarshal advance job: %w", err)
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, p.config.DBTimeout)
	defer cancel()

	tx, notification, err := p.txs.AdvanceTransaction(ctxWithTimeout, job.TRID)
	if err != nil {
		return fmt.Errorf("couldn't advance %s: %w", job.TRID, err)
	}

	p.log.Debug("transaction advanced", "trid", tx.TRID, "state", tx.State)

	if notification == nil {
		return nil
	}

	dispatch, err := json.Marshal(notifier.Job{NotificationID: notification.ID})
	if err != nil {
		return fmt.Errorf("couldn't marshal notification job: %w", err)
	}

	if err := p.notify.Publish(dispatch); err != nil {
		// The notification row is already persisted; a requeue of this
		// advance job will find the transaction settled and stop there, so
		// delivery falls to the notifier's own pending sweep.
		p.log.Error("couldn't enqueue notification",
			"notificationId", notification.ID, "error", err)
	}

	return nil
}
