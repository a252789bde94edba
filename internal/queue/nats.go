package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"flashsale/internal/model"
)

const (
	streamName    = "FULFILLMENT"
	subjectFormat = "fulfillment.good.%d"
	subjectAll    = "fulfillment.good.>"
	durableName   = "fulfillment_workers"
)

// JetStreamQueue publishes fulfillment messages to a durable JetStream
// stream. Messages are keyed per good by subject, so redelivery concerns are
// scoped to one good.
type JetStreamQueue struct {
	js nats.JetStreamContext
}

func NewJetStreamQueue(nc *nats.Conn) (*JetStreamQueue, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	if _, err := js.StreamInfo(streamName); errors.Is(err, nats.ErrStreamNotFound) {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:      streamName,
			Subjects:  []string{subjectAll},
			Retention: nats.WorkQueuePolicy,
			Storage:   nats.FileStorage,
		})
		if err != nil {
			return nil, fmt.Errorf("create stream: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("stream info: %w", err)
	}

	return &JetStreamQueue{js: js}, nil
}

func (q *JetStreamQueue) Publish(ctx context.Context, msg model.FulfillmentMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal fulfillment message: %w", err)
	}
	subject := fmt.Sprintf(subjectFormat, msg.GoodID)
	if _, err := q.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish to %s: %w", subject, err)
	}
	return nil
}

// JetStreamConsumer pulls fulfillment messages with explicit acks. A failed
// Process is Nak'd for redelivery until MaxDeliver; the final allowed
// delivery is dead-lettered through the processor instead of retried again.
type JetStreamConsumer struct {
	js         nats.JetStreamContext
	proc       Processor
	maxDeliver int
	sub        *nats.Subscription
}

func NewJetStreamConsumer(q *JetStreamQueue, proc Processor, maxDeliver int) *JetStreamConsumer {
	if maxDeliver < 1 {
		maxDeliver = 3
	}
	return &JetStreamConsumer{js: q.js, proc: proc, maxDeliver: maxDeliver}
}

// Start subscribes and blocks until ctx is cancelled, then drains.
func (c *JetStreamConsumer) Start(ctx context.Context) error {
	sub, err := c.js.QueueSubscribe(subjectAll, durableName, func(m *nats.Msg) {
		c.handle(ctx, m)
	},
		nats.Durable(durableName),
		nats.ManualAck(),
		nats.AckWait(30*time.Second),
		nats.MaxDeliver(c.maxDeliver),
	)
	if err != nil {
		return fmt.Errorf("subscribe fulfillment: %w", err)
	}
	c.sub = sub

	slog.Info("fulfillment consumer running", "provider", "nats", "max_deliver", c.maxDeliver)

	<-ctx.Done()

	slog.Info("fulfillment consumer draining")
	return sub.Drain()
}

func (c *JetStreamConsumer) Stop(ctx context.Context) error {
	if c.sub != nil {
		_ = c.sub.Unsubscribe()
	}
	return nil
}

func (c *JetStreamConsumer) handle(ctx context.Context, m *nats.Msg) {
	var msg model.FulfillmentMessage
	if err := json.Unmarshal(m.Data, &msg); err != nil {
		slog.Error("dropping malformed fulfillment message", "error", err)
		_ = m.Term()
		return
	}

	if err := c.proc.Process(ctx, msg); err != nil {
		attempt := c.deliveryAttempt(m)
		if attempt >= c.maxDeliver {
			slog.Error("redelivery budget exhausted, dead-lettering",
				"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "attempt", attempt, "error", err)
			c.proc.DeadLetter(ctx, msg)
			_ = m.Ack()
			return
		}
		slog.Warn("fulfillment processing failed, requeueing",
			"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "attempt", attempt, "error", err)
		_ = m.Nak()
		return
	}

	_ = m.Ack()
}

func (c *JetStreamConsumer) deliveryAttempt(m *nats.Msg) int {
	meta, err := m.Metadata()
	if err != nil {
		return 1
	}
	return int(meta.NumDelivered)
}
