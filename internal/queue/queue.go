package queue

import (
	"context"

	"flashsale/internal/model"
)

// Publisher puts fulfillment messages onto the durable channel. Exactly one
// message is published per successful reservation; delivery downstream is at
// least once.
type Publisher interface {
	Publish(ctx context.Context, msg model.FulfillmentMessage) error
}

// Processor handles deliveries. Process returns nil when the message is
// settled (the provider acks it) and an error when processing failed
// unexpectedly (the provider redelivers, bounded). DeadLetter is invoked once
// the redelivery budget is exhausted; implementations must leave the purchase
// in a terminal state with compensation applied.
type Processor interface {
	Process(ctx context.Context, msg model.FulfillmentMessage) error
	DeadLetter(ctx context.Context, msg model.FulfillmentMessage)
}
