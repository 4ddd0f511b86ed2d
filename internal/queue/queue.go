// Package queue carries the "start generating" trigger from the API
// process to whichever orchestrator process claims it, decoupling the HTTP
// request path (which only needs to persist the Job and return a jobId)
// from the long-running state machine that drives it.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const generateQueueName = "clipforge.jobs.generate"

// GenerateMessage is the body published when a Job is ready to start.
type GenerateMessage struct {
	OwnerID string `json:"ownerId"`
	JobID   string `json:"jobId"`
}

// Publisher declares the durable queue once and publishes generate triggers
// to it. A single *amqp.Connection is shared by Publisher and Consumer;
// each keeps its own Channel, since channels aren't safe for concurrent use.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue: open publisher channel: %w", err)
	}
	if _, err := ch.QueueDeclare(generateQueueName, true, false, false, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("queue: declare %s: %w", generateQueueName, err)
	}
	return &Publisher{ch: ch}, nil
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}

// PublishGenerate enqueues the trigger to start (ownerID, jobID). Publish
// confirms are not used; at-least-once delivery combined with the
// Orchestrator's idempotent resume makes a duplicate publish harmless.
func (p *Publisher) PublishGenerate(ctx context.Context, ownerID, jobID string) error {
	body, err := json.Marshal(GenerateMessage{OwnerID: ownerID, JobID: jobID})
	if err != nil {
		return fmt.Errorf("queue: marshal generate message: %w", err)
	}
	return p.ch.PublishWithContext(ctx, "", generateQueueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Consumer drains the generate queue and invokes handler for each message,
// acking only once handler returns nil so a crash mid-handling redelivers.
type Consumer struct {
	conn   *amqp.Connection
	logger zerolog.Logger
}

func NewConsumer(conn *amqp.Connection, logger zerolog.Logger) *Consumer {
	return &Consumer{conn: conn, logger: logger}
}

// Run blocks, dispatching deliveries to handler one at a time, until ctx is
// cancelled or the channel closes. handler errors are logged and the
// message is nacked with requeue so the trigger isn't silently dropped.
func (c *Consumer) Run(ctx context.Context, handler func(context.Context, GenerateMessage) error) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("queue: open consumer channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(generateQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue: declare %s: %w", generateQueueName, err)
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("queue: set qos: %w", err)
	}

	deliveries, err := ch.Consume(generateQueueName, "orchestrator", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue: consume %s: %w", generateQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("queue: delivery channel closed")
			}
			var msg GenerateMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				c.logger.Error().Err(err).Msg("queue: malformed generate message, dropping")
				_ = d.Nack(false, false)
				continue
			}
			if err := handler(ctx, msg); err != nil {
				c.logger.Error().Err(err).Str("job_id", msg.JobID).Msg("queue: generate handler failed, requeuing")
				_ = d.Nack(false, true)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
