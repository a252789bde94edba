package ratelimit

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Registry owns named limiters and breakers with get-or-create semantics.
// It is an explicit object held by the composition root; there is no
// package-level state.
type Registry struct {
	mu       sync.Mutex
	limiters map[string]Limiter
	breakers map[string]*CircuitBreaker
}

func NewRegistry() *Registry {
	return &Registry{
		limiters: make(map[string]Limiter),
		breakers: make(map[string]*CircuitBreaker),
	}
}

// TokenBucket returns the named token-bucket limiter, creating it on first
// use. The configuration of an existing limiter is not changed.
func (r *Registry) TokenBucket(name string, capacity int64, refillRate float64) Limiter {
	return r.limiter(name+":token_bucket", func() Limiter {
		slog.Info("creating token bucket limiter", "name", name, "capacity", capacity, "refill_rate", refillRate)
		return NewTokenBucket(capacity, refillRate)
	})
}

// SlidingWindow returns the named sliding-window limiter, creating it on
// first use.
func (r *Registry) SlidingWindow(name string, limit int, window time.Duration, slots int) Limiter {
	return r.limiter(name+":sliding_window", func() Limiter {
		slog.Info("creating sliding window limiter", "name", name, "limit", limit, "window", window)
		return NewSlidingWindow(limit, window, slots)
	})
}

func (r *Registry) limiter(key string, create func() Limiter) Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[key]; ok {
		return lim
	}
	lim := create()
	r.limiters[key] = lim
	return lim
}

// Breaker returns the named circuit breaker, creating it on first use.
func (r *Registry) Breaker(name string, cfg BreakerConfig) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	slog.Info("creating circuit breaker", "name", name,
		"failure_threshold", cfg.FailureThreshold,
		"success_threshold", cfg.SuccessThreshold,
		"open_timeout", cfg.OpenTimeout)
	b := NewCircuitBreaker(name, cfg)
	r.breakers[name] = b
	return b
}

// LimiterStats returns snapshots of all limiters, sorted by name.
func (r *Registry) LimiterStats() []Stats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Stats, 0, len(r.limiters))
	for name, lim := range r.limiters {
		s := lim.Stats()
		s.Name = name
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// BreakerStats returns snapshots of all breakers, sorted by name.
func (r *Registry) BreakerStats() []BreakerStats {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]BreakerStats, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
