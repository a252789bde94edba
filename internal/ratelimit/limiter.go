package ratelimit

import (
	"sync"
	"time"
)

// Limiter decides whether permits are available right now. TryAcquire never
// blocks; callers that want to wait should retry with their own deadline.
type Limiter interface {
	TryAcquire(permits int) bool
	Stats() Stats
}

// Stats is a point-in-time snapshot of a limiter for monitoring.
type Stats struct {
	Name      string `json:"name"`
	Algorithm string `json:"algorithm"`
	Limit     int64  `json:"limit"`
	Available int64  `json:"available"`
}

// TokenBucket refills lazily at refillRate tokens per second up to capacity,
// so bursts up to capacity are admitted.
type TokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time

	now func() time.Time
}

func NewTokenBucket(capacity int64, refillRate float64) *TokenBucket {
	b := &TokenBucket{
		capacity:   float64(capacity),
		refillRate: refillRate,
		tokens:     float64(capacity),
		now:        time.Now,
	}
	b.lastRefill = b.now()
	return b
}

func (b *TokenBucket) TryAcquire(permits int) bool {
	if permits <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens < float64(permits) {
		return false
	}
	b.tokens -= float64(permits)
	return true
}

// refill must be called with the mutex held.
func (b *TokenBucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.lastRefill = now
}

func (b *TokenBucket) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return Stats{
		Algorithm: "token_bucket",
		Limit:     int64(b.capacity),
		Available: int64(b.tokens),
	}
}
