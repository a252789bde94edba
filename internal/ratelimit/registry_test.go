package ratelimit

import (
	"testing"
	"time"
)

func TestRegistry_SameNameReturnsSameLimiter(t *testing.T) {
	r := NewRegistry()

	l1 := r.TokenBucket("purchase", 10, 5)
	l2 := r.TokenBucket("purchase", 99, 99) // config of an existing limiter is ignored
	if l1 != l2 {
		t.Fatal("expected same limiter instance for same name")
	}
}

func TestRegistry_AlgorithmsAreIndependent(t *testing.T) {
	r := NewRegistry()

	tb := r.TokenBucket("purchase", 10, 5)
	sw := r.SlidingWindow("purchase", 10, time.Second, 10)
	if tb == sw {
		t.Fatal("token bucket and sliding window must be separate instances")
	}
}

func TestRegistry_NamesAreIndependent(t *testing.T) {
	r := NewRegistry()

	a := r.TokenBucket("route-a", 1, 1)
	b := r.TokenBucket("route-b", 1, 1)

	if !a.TryAcquire(1) {
		t.Fatal("route-a should admit")
	}
	if !b.TryAcquire(1) {
		t.Fatal("route-b has its own bucket and should admit")
	}
}

func TestRegistry_BreakerGetOrCreate(t *testing.T) {
	r := NewRegistry()

	b1 := r.Breaker("queue-publish", DefaultBreakerConfig())
	b2 := r.Breaker("queue-publish", BreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, OpenTimeout: time.Second})
	if b1 != b2 {
		t.Fatal("expected same breaker instance for same name")
	}
}

func TestRegistry_Stats(t *testing.T) {
	r := NewRegistry()
	r.TokenBucket("purchase", 10, 5)
	r.Breaker("queue-publish", DefaultBreakerConfig())

	ls := r.LimiterStats()
	if len(ls) != 1 || ls[0].Name != "purchase:token_bucket" {
		t.Fatalf("limiter stats = %+v", ls)
	}
	bs := r.BreakerStats()
	if len(bs) != 1 || bs[0].Name != "queue-publish" {
		t.Fatalf("breaker stats = %+v", bs)
	}
}
