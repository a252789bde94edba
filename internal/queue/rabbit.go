package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"flashsale/internal/model"
)

const (
	rabbitQueueName  = "fulfillment"
	retryCountHeader = "x-retry-count"
)

// RabbitQueue is the RabbitMQ fulfillment channel: a durable queue with
// manual acks. Bounded redelivery is implemented by republishing with an
// incremented retry-count header; once the budget is spent the message is
// dead-lettered through the processor.
type RabbitQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewRabbitQueue(url string) (*RabbitQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		rabbitQueueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	return &RabbitQueue{conn: conn, ch: ch}, nil
}

func (q *RabbitQueue) Publish(ctx context.Context, msg model.FulfillmentMessage) error {
	return q.publish(ctx, msg, 0)
}

func (q *RabbitQueue) publish(ctx context.Context, msg model.FulfillmentMessage, retry int) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal fulfillment message: %w", err)
	}

	err = q.ch.PublishWithContext(ctx,
		"",              // default exchange
		rabbitQueueName, // routing key
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      amqp.Table{retryCountHeader: int32(retry)},
			Body:         data,
		})
	if err != nil {
		return fmt.Errorf("publish fulfillment: %w", err)
	}
	return nil
}

func (q *RabbitQueue) Close() {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		_ = q.conn.Close()
	}
}

type RabbitConsumer struct {
	q          *RabbitQueue
	proc       Processor
	maxDeliver int
}

func NewRabbitConsumer(q *RabbitQueue, proc Processor, maxDeliver int) *RabbitConsumer {
	if maxDeliver < 1 {
		maxDeliver = 3
	}
	return &RabbitConsumer{q: q, proc: proc, maxDeliver: maxDeliver}
}

// Start consumes with manual acks and blocks until ctx is cancelled.
func (c *RabbitConsumer) Start(ctx context.Context) error {
	deliveries, err := c.q.ch.Consume(
		rabbitQueueName,
		"",    // consumer tag
		false, // auto-ack off, acks are manual
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume fulfillment: %w", err)
	}

	slog.Info("fulfillment consumer running", "provider", "rabbitmq", "max_deliver", c.maxDeliver)

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return nil
			}
			c.handle(ctx, d)
		}
	}
}

func (c *RabbitConsumer) Stop(ctx context.Context) error {
	return nil
}

func (c *RabbitConsumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg model.FulfillmentMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		slog.Error("dropping malformed fulfillment message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.proc.Process(ctx, msg); err != nil {
		attempt := retryCount(d.Headers) + 1
		if attempt >= c.maxDeliver {
			slog.Error("redelivery budget exhausted, dead-lettering",
				"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "attempt", attempt, "error", err)
			c.proc.DeadLetter(ctx, msg)
			_ = d.Ack(false)
			return
		}
		slog.Warn("fulfillment processing failed, requeueing",
			"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "attempt", attempt, "error", err)
		if pubErr := c.q.publish(ctx, msg, attempt); pubErr != nil {
			// Could not republish; put the original delivery back instead.
			slog.Error("requeue publish failed, nacking", "error", pubErr)
			_ = d.Nack(false, true)
			return
		}
		_ = d.Ack(false)
		return
	}

	_ = d.Ack(false)
}

// retryCount reads the redelivery counter header, tolerating the integer
// widths AMQP clients use.
func retryCount(headers amqp.Table) int {
	v, ok := headers[retryCountHeader]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
