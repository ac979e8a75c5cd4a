package queue

import (
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

type QueueName string

const (
	// QueueAdvance carries fire-and-forget jobs that move freshly created
	// transactions through the state machine.
	QueueAdvance QueueName = "transaction-advance"

	// QueueNotify carries notification delivery jobs.
	QueueNotify QueueName = "notification-dispatch"
)

// EnsureQueueExists declares the queue and returns the channel used to do it.
// Callers that only needed the declaration should close the channel.
func EnsureQueueExists(conn *amqp.Connection, name QueueName) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("couldn't open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		string(name), // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("couldn't declare queue %s: %w", name, err)
	}

	return ch, nil
}

type Publisher struct {
	queueName QueueName
	conn      *amqp.Connection
	log       *slog.Logger
}

func NewPublisher(conn *amqp.Connection, queueName QueueName) *Publisher {
	return &Publisher{
		queueName: queueName,
		conn:      conn,
		log:       slog.With("component", "publisher", "queue", queueName),
	}
}

func (p *Publisher) Publish(message []byte) error {
	ch, err := EnsureQueueExists(p.conn, p.queueName)
	if err != nil {
		return err
	}
	defer ch.Close()

	err = ch.Publish(
		"",                  // exchange, empty means direct to queue
		string(p.queueName), // routing key = queue name
		false,               // mandatory
		false,               // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
	if err != nil {
		p.log.Error("Failed to publish", "message", string(message), "error", err)
		return err
	}

	return nil
}
