package reservation

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

//go:embed reserve.lua
var reserveScript string

//go:embed rollback.lua
var rollbackScript string

// Status is the outcome of an atomic reservation attempt.
type Status int

const (
	StatusReserved Status = iota
	StatusSoldOut
	StatusDuplicate
)

// RollbackPolicy decides what happens to the buyers-set entry when a
// reservation is compensated. "release" lets the buyer attempt again after a
// transient failure; "retain" keeps them blocked for this good.
type RollbackPolicy string

const (
	RollbackRelease RollbackPolicy = "release"
	RollbackRetain  RollbackPolicy = "retain"
)

func ParseRollbackPolicy(s string) (RollbackPolicy, error) {
	switch RollbackPolicy(s) {
	case RollbackRelease, RollbackRetain:
		return RollbackPolicy(s), nil
	case "":
		return RollbackRelease, nil
	default:
		return "", fmt.Errorf("invalid rollback policy %q, must be 'release' or 'retain'", s)
	}
}

var ErrUnexpectedReply = errors.New("unexpected reply from reservation script")

// Store holds the per-good admission state in Redis: a stock counter and a
// buyers set, mutated only through the two Lua scripts so no intermediate
// state is ever observable. A process-local sold-out cache sheds repeat
// traffic for exhausted goods before it reaches Redis; it is an optimization
// only and is cleared on reset and rollback.
type Store struct {
	rdb    *redis.Client
	policy RollbackPolicy

	soldOut sync.Map // goodID -> struct{}
}

func NewStore(rdb *redis.Client, policy RollbackPolicy) *Store {
	if policy == "" {
		policy = RollbackRelease
	}
	return &Store{rdb: rdb, policy: policy}
}

func stockKey(goodID int64) string   { return fmt.Sprintf("sale:stock:%d", goodID) }
func buyersKey(goodID int64) string  { return fmt.Sprintf("sale:buyers:%d", goodID) }
func blockedKey(goodID int64) string { return fmt.Sprintf("sale:blocked:%d", goodID) }

// Reserve atomically checks for a duplicate buyer, checks stock, and on
// success decrements stock while recording the buyer, all in one script call.
func (s *Store) Reserve(ctx context.Context, buyerID, goodID int64) (Status, error) {
	if _, sold := s.soldOut.Load(goodID); sold {
		return StatusSoldOut, nil
	}

	keys := []string{stockKey(goodID), buyersKey(goodID), blockedKey(goodID)}
	res, err := s.rdb.Eval(ctx, reserveScript, keys, buyerID).Int64()
	if err != nil {
		return 0, fmt.Errorf("reserve script: %w", err)
	}

	switch res {
	case 1:
		return StatusReserved, nil
	case 0:
		s.soldOut.Store(goodID, struct{}{})
		slog.Warn("good marked sold out locally", "good_id", goodID)
		return StatusSoldOut, nil
	case -1:
		return StatusDuplicate, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrUnexpectedReply, res)
	}
}

// Rollback compensates a reservation: restores the stock unit and releases or
// retains the buyer per the configured policy. Safe to call more than once;
// an already-compensated reservation is a no-op.
func (s *Store) Rollback(ctx context.Context, buyerID, goodID int64) error {
	keys := []string{stockKey(goodID), buyersKey(goodID), blockedKey(goodID)}
	applied, err := s.rdb.Eval(ctx, rollbackScript, keys, buyerID, string(s.policy)).Int64()
	if err != nil {
		return fmt.Errorf("rollback script: %w", err)
	}
	if applied == 1 {
		// Stock came back, the good may be sellable again.
		s.soldOut.Delete(goodID)
		slog.Info("reservation rolled back", "buyer_id", buyerID, "good_id", goodID, "policy", s.policy)
	}
	return nil
}

// Seed writes the stock counter for a good, overwriting any previous value.
func (s *Store) Seed(ctx context.Context, goodID int64, stock int) error {
	if err := s.rdb.Set(ctx, stockKey(goodID), stock, 0).Err(); err != nil {
		return fmt.Errorf("seed stock: %w", err)
	}
	s.soldOut.Delete(goodID)
	return nil
}

// Reset reseeds the stock counter and clears the buyers and blocked sets,
// reopening the sale for everyone.
func (s *Store) Reset(ctx context.Context, goodID int64, stock int) error {
	if err := s.rdb.Set(ctx, stockKey(goodID), stock, 0).Err(); err != nil {
		return fmt.Errorf("reset stock: %w", err)
	}
	if err := s.rdb.Del(ctx, buyersKey(goodID), blockedKey(goodID)).Err(); err != nil {
		return fmt.Errorf("reset buyers: %w", err)
	}
	s.soldOut.Delete(goodID)
	slog.Info("reservation state reset", "good_id", goodID, "stock", stock)
	return nil
}

// Clear removes every key for a good. Used when the good is deleted.
func (s *Store) Clear(ctx context.Context, goodID int64) error {
	if err := s.rdb.Del(ctx, stockKey(goodID), buyersKey(goodID), blockedKey(goodID)).Err(); err != nil {
		return fmt.Errorf("clear reservation keys: %w", err)
	}
	s.soldOut.Delete(goodID)
	return nil
}

// Stock returns the live admission stock counter. ok is false when the good
// has never been seeded.
func (s *Store) Stock(ctx context.Context, goodID int64) (int, bool, error) {
	n, err := s.rdb.Get(ctx, stockKey(goodID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get stock: %w", err)
	}
	return n, true, nil
}

// IsBuyer reports whether the buyer holds a live reservation for the good.
func (s *Store) IsBuyer(ctx context.Context, buyerID, goodID int64) (bool, error) {
	member, err := s.rdb.SIsMember(ctx, buyersKey(goodID), buyerID).Result()
	if err != nil {
		return false, fmt.Errorf("check buyer membership: %w", err)
	}
	return member, nil
}
