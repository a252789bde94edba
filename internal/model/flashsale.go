package model

import "time"

// Good is a flash-sale item. StockCount in Postgres is the authoritative
// settlement stock; the Redis counter is the admission stock.
type Good struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Price      int64     `json:"price"` // minor units
	StockCount int       `json:"stock_count"`
	Status     int       `json:"status"` // 1 = active, 0 = inactive
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Order is a settled purchase. (BuyerID, GoodID) is unique at the database
// level, which is the final duplicate guard for the fulfillment consumer.
type Order struct {
	ID        int64     `json:"id"`
	BuyerID   int64     `json:"buyer_id"`
	GoodID    int64     `json:"good_id"`
	GoodName  string    `json:"good_name"`
	Price     int64     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// FulfillmentMessage is published once per successful reservation and
// consumed at least once by the fulfillment worker.
type FulfillmentMessage struct {
	BuyerID    int64     `json:"buyer_id"`
	GoodID     int64     `json:"good_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PurchaseOutcome is the caller-visible result of an admission attempt.
type PurchaseOutcome string

const (
	OutcomeQueued    PurchaseOutcome = "QUEUED"
	OutcomeThrottled PurchaseOutcome = "THROTTLED"
	OutcomeSoldOut   PurchaseOutcome = "SOLD_OUT"
	OutcomeDuplicate PurchaseOutcome = "DUPLICATE"
	OutcomeError     PurchaseOutcome = "SYSTEM_ERROR"
)

// ResultState is the settlement state visible to polling clients.
// PENDING is the only non-terminal state.
type ResultState string

const (
	ResultPending ResultState = "PENDING"
	ResultSuccess ResultState = "SUCCESS"
	ResultFailed  ResultState = "FAILED"
)

type PurchaseResult struct {
	State   ResultState `json:"state"`
	OrderID int64       `json:"order_id,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

type PurchaseRequest struct {
	BuyerID int64 `json:"buyer_id"`
	GoodID  int64 `json:"good_id"`
}
