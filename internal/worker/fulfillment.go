package worker

import (
	"context"
	"errors"
	"log/slog"

	"flashsale/internal/model"
	"flashsale/internal/repository"
)

// OrderStore is the slice of the durable store the fulfillment path needs.
type OrderStore interface {
	GetByBuyerAndGood(ctx context.Context, buyerID, goodID int64) (*model.Order, error)
	CreateFulfilled(ctx context.Context, buyerID, goodID int64) (*model.Order, error)
}

// ReservationRollback compensates a fast-store reservation. Must be
// idempotent: rolling back an already-compensated reservation is a no-op.
type ReservationRollback interface {
	Rollback(ctx context.Context, buyerID, goodID int64) error
}

// ResultWriter records the terminal purchase result for client polling.
type ResultWriter interface {
	SetSuccess(ctx context.Context, buyerID, goodID int64) error
	SetFailed(ctx context.Context, buyerID, goodID int64, reason string) error
}

// Fulfiller turns reservation messages into durable orders. It is the single
// writer of durable stock and order state. Deliveries are at least once, so
// every step tolerates redelivery: the order-existence check plus the unique
// (buyer, good) constraint decide who settles.
type Fulfiller struct {
	orders       OrderStore
	reservations ReservationRollback
	results      ResultWriter
}

func NewFulfiller(orders OrderStore, reservations ReservationRollback, results ResultWriter) *Fulfiller {
	return &Fulfiller{orders: orders, reservations: reservations, results: results}
}

// Process settles one fulfillment message. A nil return means the message is
// done (business success or business failure, both terminal). A non-nil
// return means an unexpected infrastructure error; the queue provider will
// redeliver within its budget.
func (f *Fulfiller) Process(ctx context.Context, msg model.FulfillmentMessage) error {
	existing, err := f.orders.GetByBuyerAndGood(ctx, msg.BuyerID, msg.GoodID)
	if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
		return err
	}
	if existing != nil {
		// Redelivered after a successful settlement.
		slog.Warn("order already exists, skipping", "buyer_id", msg.BuyerID, "good_id", msg.GoodID)
		return f.results.SetSuccess(ctx, msg.BuyerID, msg.GoodID)
	}

	order, err := f.orders.CreateFulfilled(ctx, msg.BuyerID, msg.GoodID)
	switch {
	case err == nil:
		slog.Info("order created",
			"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "order_id", order.ID)
		return f.results.SetSuccess(ctx, msg.BuyerID, msg.GoodID)

	case errors.Is(err, repository.ErrDuplicateOrder):
		// Lost the settlement race to another delivery; its transaction did
		// the decrement, ours rolled back.
		slog.Warn("concurrent settlement won", "buyer_id", msg.BuyerID, "good_id", msg.GoodID)
		return f.results.SetSuccess(ctx, msg.BuyerID, msg.GoodID)

	case errors.Is(err, repository.ErrGoodNotFound):
		return f.fail(ctx, msg, "good not found")

	case errors.Is(err, repository.ErrStockExhausted):
		// Fast store admitted this buyer but the durable stock disagrees.
		// Not retried: the condition will not heal for this delivery.
		slog.Warn("durable stock exhausted, compensating",
			"buyer_id", msg.BuyerID, "good_id", msg.GoodID)
		return f.fail(ctx, msg, "stock exhausted")

	default:
		return err
	}
}

// DeadLetter is the terminal path for messages whose redelivery budget is
// spent: compensate the reservation and record the failure so the buyer is
// never left in PENDING.
func (f *Fulfiller) DeadLetter(ctx context.Context, msg model.FulfillmentMessage) {
	if err := f.fail(ctx, msg, "fulfillment attempts exhausted"); err != nil {
		slog.Error("dead-letter settlement failed",
			"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "error", err)
	}
}

func (f *Fulfiller) fail(ctx context.Context, msg model.FulfillmentMessage, reason string) error {
	if err := f.reservations.Rollback(ctx, msg.BuyerID, msg.GoodID); err != nil {
		return err
	}
	if err := f.results.SetFailed(ctx, msg.BuyerID, msg.GoodID, reason); err != nil {
		return err
	}
	slog.Info("purchase failed and compensated",
		"buyer_id", msg.BuyerID, "good_id", msg.GoodID, "reason", reason)
	return nil
}
