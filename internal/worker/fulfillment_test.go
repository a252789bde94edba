package worker

import (
	"context"
	"errors"
	"testing"

	"flashsale/internal/model"
	"flashsale/internal/repository"
)

type fakeOrders struct {
	existing  *model.Order
	createErr error
	created   int
}

func (f *fakeOrders) GetByBuyerAndGood(ctx context.Context, buyerID, goodID int64) (*model.Order, error) {
	if f.existing == nil {
		return nil, repository.ErrOrderNotFound
	}
	return f.existing, nil
}

func (f *fakeOrders) CreateFulfilled(ctx context.Context, buyerID, goodID int64) (*model.Order, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &model.Order{ID: 100, BuyerID: buyerID, GoodID: goodID}, nil
}

type fakeRollback struct {
	calls int
	err   error
}

func (f *fakeRollback) Rollback(ctx context.Context, buyerID, goodID int64) error {
	f.calls++
	return f.err
}

type fakeResults struct {
	success int
	failed  int
	reason  string
}

func (f *fakeResults) SetSuccess(ctx context.Context, buyerID, goodID int64) error {
	f.success++
	return nil
}

func (f *fakeResults) SetFailed(ctx context.Context, buyerID, goodID int64, reason string) error {
	f.failed++
	f.reason = reason
	return nil
}

var testMsg = model.FulfillmentMessage{BuyerID: 1, GoodID: 2}

func TestFulfiller_Success(t *testing.T) {
	orders := &fakeOrders{}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if orders.created != 1 || res.success != 1 {
		t.Fatalf("created=%d success=%d, want 1/1", orders.created, res.success)
	}
	if rb.calls != 0 || res.failed != 0 {
		t.Fatal("success path must not compensate")
	}
}

func TestFulfiller_RedeliveryAfterSuccessIsIdempotent(t *testing.T) {
	orders := &fakeOrders{existing: &model.Order{ID: 100, BuyerID: 1, GoodID: 2}}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if orders.created != 0 {
		t.Fatal("redelivery must not create a second order")
	}
	if res.success != 1 {
		t.Fatal("redelivery should re-record SUCCESS")
	}
	if rb.calls != 0 {
		t.Fatal("redelivery after success must not roll back")
	}
}

func TestFulfiller_DriftFailsAndCompensates(t *testing.T) {
	orders := &fakeOrders{createErr: repository.ErrStockExhausted}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err != nil {
		t.Fatalf("Process should settle drift, got %v", err)
	}
	if rb.calls != 1 {
		t.Fatalf("rollback calls = %d, want 1", rb.calls)
	}
	if res.failed != 1 || res.reason != "stock exhausted" {
		t.Fatalf("failed=%d reason=%q", res.failed, res.reason)
	}
}

func TestFulfiller_MissingGoodFailsAndCompensates(t *testing.T) {
	orders := &fakeOrders{createErr: repository.ErrGoodNotFound}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if rb.calls != 1 || res.failed != 1 {
		t.Fatalf("rollback=%d failed=%d, want 1/1", rb.calls, res.failed)
	}
}

func TestFulfiller_DuplicateOrderRaceRecordsSuccess(t *testing.T) {
	orders := &fakeOrders{createErr: repository.ErrDuplicateOrder}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.success != 1 || rb.calls != 0 {
		t.Fatalf("success=%d rollback=%d, want 1/0", res.success, rb.calls)
	}
}

func TestFulfiller_UnexpectedErrorRequestsRedelivery(t *testing.T) {
	boom := errors.New("connection reset")
	orders := &fakeOrders{createErr: boom}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	err := f.Process(context.Background(), testMsg)
	if !errors.Is(err, boom) {
		t.Fatalf("expected the infrastructure error back, got %v", err)
	}
	if rb.calls != 0 || res.failed != 0 {
		t.Fatal("unexpected errors must not settle or compensate")
	}
}

func TestFulfiller_RollbackFailureKeepsMessageRetriable(t *testing.T) {
	orders := &fakeOrders{createErr: repository.ErrStockExhausted}
	rb := &fakeRollback{err: errors.New("redis down")}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	if err := f.Process(context.Background(), testMsg); err == nil {
		t.Fatal("expected error when compensation cannot be applied")
	}
	if res.failed != 0 {
		t.Fatal("result must not be FAILED until compensation succeeded")
	}
}

func TestFulfiller_DeadLetterCompensates(t *testing.T) {
	orders := &fakeOrders{}
	rb := &fakeRollback{}
	res := &fakeResults{}
	f := NewFulfiller(orders, rb, res)

	f.DeadLetter(context.Background(), testMsg)

	if rb.calls != 1 || res.failed != 1 {
		t.Fatalf("rollback=%d failed=%d, want 1/1", rb.calls, res.failed)
	}
	if res.reason != "fulfillment attempts exhausted" {
		t.Fatalf("reason = %q", res.reason)
	}
}
