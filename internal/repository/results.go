package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"flashsale/internal/model"
)

// ResultStore keeps the terminal purchase results in Redis for client
// polling. A missing key means the purchase has not settled yet (or never
// existed); the caller disambiguates with the buyers set.
type ResultStore struct {
	rdb *redis.Client
}

func NewResultStore(rdb *redis.Client) *ResultStore {
	return &ResultStore{rdb: rdb}
}

func resultKey(buyerID, goodID int64) string {
	return fmt.Sprintf("sale:result:%d:%d", buyerID, goodID)
}

func (s *ResultStore) SetSuccess(ctx context.Context, buyerID, goodID int64) error {
	if err := s.rdb.Set(ctx, resultKey(buyerID, goodID), "SUCCESS", 0).Err(); err != nil {
		return fmt.Errorf("set success result: %w", err)
	}
	return nil
}

func (s *ResultStore) SetFailed(ctx context.Context, buyerID, goodID int64, reason string) error {
	if err := s.rdb.Set(ctx, resultKey(buyerID, goodID), "FAILED|"+reason, 0).Err(); err != nil {
		return fmt.Errorf("set failed result: %w", err)
	}
	return nil
}

// Get returns the recorded terminal result. ok is false when no result has
// been written for the pair.
func (s *ResultStore) Get(ctx context.Context, buyerID, goodID int64) (model.PurchaseResult, bool, error) {
	raw, err := s.rdb.Get(ctx, resultKey(buyerID, goodID)).Result()
	if errors.Is(err, redis.Nil) {
		return model.PurchaseResult{}, false, nil
	}
	if err != nil {
		return model.PurchaseResult{}, false, fmt.Errorf("get result: %w", err)
	}

	if raw == "SUCCESS" {
		return model.PurchaseResult{State: model.ResultSuccess}, true, nil
	}
	if reason, ok := strings.CutPrefix(raw, "FAILED|"); ok {
		return model.PurchaseResult{State: model.ResultFailed, Reason: reason}, true, nil
	}
	return model.PurchaseResult{}, false, fmt.Errorf("malformed result value %q", raw)
}
