package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flashsale/internal/model"
	"flashsale/internal/queue"
	"flashsale/internal/ratelimit"
	"flashsale/internal/repository"
	"flashsale/internal/reservation"
)

// Reserver is the fast-store reservation contract consumed by the admission
// path.
type Reserver interface {
	Reserve(ctx context.Context, buyerID, goodID int64) (reservation.Status, error)
	Rollback(ctx context.Context, buyerID, goodID int64) error
	Seed(ctx context.Context, goodID int64, stock int) error
	Reset(ctx context.Context, goodID int64, stock int) error
	Clear(ctx context.Context, goodID int64) error
	Stock(ctx context.Context, goodID int64) (int, bool, error)
	IsBuyer(ctx context.Context, buyerID, goodID int64) (bool, error)
}

type GoodsStore interface {
	GetByID(ctx context.Context, id int64) (*model.Good, error)
	List(ctx context.Context) ([]model.Good, error)
	Create(ctx context.Context, g *model.Good) error
	Update(ctx context.Context, g *model.Good) error
	Delete(ctx context.Context, id int64) error
	SetStock(ctx context.Context, id int64, stock int) error
}

type OrderReader interface {
	GetByBuyerAndGood(ctx context.Context, buyerID, goodID int64) (*model.Order, error)
	List(ctx context.Context) ([]model.Order, error)
}

type ResultReader interface {
	Get(ctx context.Context, buyerID, goodID int64) (model.PurchaseResult, bool, error)
}

// ErrPublishRejected is the conservative fallback outcome when the queue
// breaker denies a publish: the reservation is compensated and the buyer
// sees SYSTEM_ERROR, never an assumed success.
var ErrPublishRejected = errors.New("fulfillment publish rejected by circuit breaker")

const (
	purchaseLimiterName  = "purchase"
	publishBreakerName   = "fulfillment-publish"
	lookupBreakerName    = "order-lookup"
	AlgorithmTokenBucket = "token_bucket"
	AlgorithmSlidingWin  = "sliding_window"
)

// Options tunes the admission protections.
type Options struct {
	RateAlgorithm string  // token_bucket | sliding_window
	RateQPS       int     // sustained admissions per second
	RateBurst     int     // token bucket capacity; defaults to 2x QPS
	Breaker       ratelimit.BreakerConfig
}

// FlashSale is the composition root of the admission path: rate limiter in
// front, atomic reservation in the middle, fulfillment publish behind a
// circuit breaker at the end.
type FlashSale struct {
	limiter        ratelimit.Limiter
	registry       *ratelimit.Registry
	reservations   Reserver
	queue          queue.Publisher
	goods          GoodsStore
	orders         OrderReader
	results        ResultReader
	publishBreaker *ratelimit.CircuitBreaker
	lookupBreaker  *ratelimit.CircuitBreaker
}

func NewFlashSale(
	registry *ratelimit.Registry,
	reservations Reserver,
	publisher queue.Publisher,
	goods GoodsStore,
	orders OrderReader,
	results ResultReader,
	opts Options,
) (*FlashSale, error) {
	if opts.RateQPS <= 0 {
		return nil, fmt.Errorf("rate limit QPS must be positive, got %d", opts.RateQPS)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = opts.RateQPS * 2
	}

	var limiter ratelimit.Limiter
	switch opts.RateAlgorithm {
	case AlgorithmTokenBucket, "":
		limiter = registry.TokenBucket(purchaseLimiterName, int64(opts.RateBurst), float64(opts.RateQPS))
	case AlgorithmSlidingWin:
		limiter = registry.SlidingWindow(purchaseLimiterName, opts.RateQPS, time.Second, 10)
	default:
		return nil, fmt.Errorf("unknown rate limit algorithm %q", opts.RateAlgorithm)
	}

	return &FlashSale{
		limiter:        limiter,
		registry:       registry,
		reservations:   reservations,
		queue:          publisher,
		goods:          goods,
		orders:         orders,
		results:        results,
		publishBreaker: registry.Breaker(publishBreakerName, opts.Breaker),
		lookupBreaker:  registry.Breaker(lookupBreakerName, opts.Breaker),
	}, nil
}

// AttemptPurchase is the hot admission path. It never blocks on the durable
// store: a QUEUED outcome only promises eventual settlement via the
// fulfillment consumer.
func (s *FlashSale) AttemptPurchase(ctx context.Context, buyerID, goodID int64) (model.PurchaseOutcome, error) {
	if !s.limiter.TryAcquire(1) {
		return model.OutcomeThrottled, nil
	}

	status, err := s.reservations.Reserve(ctx, buyerID, goodID)
	if err != nil {
		return model.OutcomeError, fmt.Errorf("reserve: %w", err)
	}
	switch status {
	case reservation.StatusSoldOut:
		return model.OutcomeSoldOut, nil
	case reservation.StatusDuplicate:
		return model.OutcomeDuplicate, nil
	}

	msg := model.FulfillmentMessage{BuyerID: buyerID, GoodID: goodID, EnqueuedAt: time.Now()}
	err = s.publishBreaker.Execute(
		func() error { return s.queue.Publish(ctx, msg) },
		func() error { return ErrPublishRejected },
	)
	if err != nil {
		// The reservation would otherwise be stranded: compensate before
		// telling the buyer anything.
		if rbErr := s.reservations.Rollback(ctx, buyerID, goodID); rbErr != nil {
			slog.Error("rollback after publish failure failed",
				"buyer_id", buyerID, "good_id", goodID, "error", rbErr)
		}
		return model.OutcomeError, fmt.Errorf("publish fulfillment: %w", err)
	}

	return model.OutcomeQueued, nil
}

// QueryResult reports the settlement state for a (buyer, good) pair. PENDING
// means the buyer holds a reservation the consumer has not settled yet.
func (s *FlashSale) QueryResult(ctx context.Context, buyerID, goodID int64) (model.PurchaseResult, error) {
	res, ok, err := s.results.Get(ctx, buyerID, goodID)
	if err != nil {
		return model.PurchaseResult{}, fmt.Errorf("query result: %w", err)
	}
	if ok {
		if res.State == model.ResultSuccess {
			s.attachOrderRef(ctx, buyerID, goodID, &res)
		}
		return res, nil
	}

	member, err := s.reservations.IsBuyer(ctx, buyerID, goodID)
	if err != nil {
		return model.PurchaseResult{}, fmt.Errorf("query reservation: %w", err)
	}
	if member {
		return model.PurchaseResult{State: model.ResultPending}, nil
	}
	return model.PurchaseResult{State: model.ResultFailed, Reason: "no reservation"}, nil
}

// attachOrderRef decorates a SUCCESS result with the durable order id. The
// lookup runs behind a breaker; when it is open the result is still SUCCESS,
// just without the reference.
func (s *FlashSale) attachOrderRef(ctx context.Context, buyerID, goodID int64, res *model.PurchaseResult) {
	if !s.lookupBreaker.AllowRequest() {
		return
	}
	order, err := s.orders.GetByBuyerAndGood(ctx, buyerID, goodID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			s.lookupBreaker.RecordSuccess()
		} else {
			s.lookupBreaker.RecordFailure()
		}
		return
	}
	s.lookupBreaker.RecordSuccess()
	res.OrderID = order.ID
}

// ResetGood reopens a sale: when newStock >= 0 the durable count is
// overwritten first, then the fast store is reseeded from the durable value
// and all buyer records are cleared.
func (s *FlashSale) ResetGood(ctx context.Context, goodID int64, newStock int) error {
	if newStock >= 0 {
		if err := s.goods.SetStock(ctx, goodID, newStock); err != nil {
			return fmt.Errorf("reset durable stock: %w", err)
		}
	}
	good, err := s.goods.GetByID(ctx, goodID)
	if err != nil {
		return fmt.Errorf("load good for reset: %w", err)
	}
	if err := s.reservations.Reset(ctx, goodID, good.StockCount); err != nil {
		return fmt.Errorf("reset reservation state: %w", err)
	}
	slog.Info("sale reset", "good_id", goodID, "stock", good.StockCount)
	return nil
}

// CreateGood inserts the good and seeds its admission stock.
func (s *FlashSale) CreateGood(ctx context.Context, g *model.Good) error {
	if err := s.goods.Create(ctx, g); err != nil {
		return err
	}
	if err := s.reservations.Seed(ctx, g.ID, g.StockCount); err != nil {
		return fmt.Errorf("seed admission stock: %w", err)
	}
	slog.Info("good created", "good_id", g.ID, "name", g.Name, "stock", g.StockCount)
	return nil
}

// UpdateGood updates the good and re-syncs its admission stock.
func (s *FlashSale) UpdateGood(ctx context.Context, g *model.Good) error {
	if err := s.goods.Update(ctx, g); err != nil {
		return err
	}
	if err := s.reservations.Seed(ctx, g.ID, g.StockCount); err != nil {
		return fmt.Errorf("sync admission stock: %w", err)
	}
	return nil
}

// DeleteGood removes the good and every fast-store key that belongs to it.
func (s *FlashSale) DeleteGood(ctx context.Context, goodID int64) error {
	if err := s.goods.Delete(ctx, goodID); err != nil {
		return err
	}
	return s.reservations.Clear(ctx, goodID)
}

// GetGood returns the durable row with the live admission stock overlaid
// when the good has been seeded.
func (s *FlashSale) GetGood(ctx context.Context, goodID int64) (*model.Good, error) {
	good, err := s.goods.GetByID(ctx, goodID)
	if err != nil {
		return nil, err
	}
	if live, ok, err := s.reservations.Stock(ctx, goodID); err == nil && ok {
		good.StockCount = live
	}
	return good, nil
}

func (s *FlashSale) ListGoods(ctx context.Context) ([]model.Good, error) {
	return s.goods.List(ctx)
}

func (s *FlashSale) ListOrders(ctx context.Context) ([]model.Order, error) {
	return s.orders.List(ctx)
}

// ProtectionStats is the monitoring snapshot of limiters and breakers.
type ProtectionStats struct {
	Limiters []ratelimit.Stats        `json:"limiters"`
	Breakers []ratelimit.BreakerStats `json:"breakers"`
}

func (s *FlashSale) Stats() ProtectionStats {
	return ProtectionStats{
		Limiters: s.registry.LimiterStats(),
		Breakers: s.registry.BreakerStats(),
	}
}
