package ratelimit

import (
	"errors"
	"testing"
	"time"
)

func newTestBreaker(clock *fakeClock) *CircuitBreaker {
	b := NewCircuitBreaker("test", BreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 2,
		OpenTimeout:      100 * time.Millisecond,
	})
	b.now = clock.Now
	return b
}

func TestBreaker_OpensAfterFailureThreshold(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if b.State() != StateClosed {
			t.Fatalf("after %d failures state = %v, want CLOSED", i+1, b.State())
		}
	}
	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("after 3 failures state = %v, want OPEN", b.State())
	}
	if b.AllowRequest() {
		t.Fatal("OPEN breaker must fail fast")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED (failures are not consecutive)", b.State())
	}
}

func TestBreaker_HalfOpenAfterTimeout(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.AllowRequest() {
		t.Fatal("expected reject before timeout")
	}

	clock.Advance(150 * time.Millisecond)

	if !b.AllowRequest() {
		t.Fatal("expected trial request after open timeout")
	}
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN", b.State())
	}
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(150 * time.Millisecond)
	b.AllowRequest()

	b.RecordSuccess()
	if b.State() != StateHalfOpen {
		t.Fatalf("state = %v, want HALF_OPEN before success threshold", b.State())
	}
	b.RecordSuccess()
	if b.State() != StateClosed {
		t.Fatalf("state = %v, want CLOSED after %d successes", b.State(), 2)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	clock.Advance(150 * time.Millisecond)
	b.AllowRequest()

	b.RecordFailure()
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN after half-open failure", b.State())
	}

	// The open timestamp is renewed: still rejecting right after.
	if b.AllowRequest() {
		t.Fatal("expected reject, open timeout restarted")
	}
}

func TestBreaker_ExecuteUsesFallback(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	fallbackErr := errors.New("denied by fallback")
	fallbacks := 0
	fallback := func() error {
		fallbacks++
		return fallbackErr
	}

	for i := 0; i < 3; i++ {
		err := b.Execute(func() error { return errors.New("downstream down") }, fallback)
		if !errors.Is(err, fallbackErr) {
			t.Fatalf("expected fallback error, got %v", err)
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v, want OPEN", b.State())
	}

	// Rejected without invoking the action at all.
	called := false
	_ = b.Execute(func() error { called = true; return nil }, fallback)
	if called {
		t.Fatal("action must not run while breaker is OPEN")
	}
	if fallbacks != 4 {
		t.Fatalf("fallback invoked %d times, want 4", fallbacks)
	}
}

func TestBreaker_StatsCounters(t *testing.T) {
	clock := newFakeClock()
	b := newTestBreaker(clock)

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	b.AllowRequest()
	b.AllowRequest()

	s := b.Stats()
	if s.State != "OPEN" {
		t.Fatalf("stats state = %s, want OPEN", s.State)
	}
	if s.Total != 2 || s.Rejected != 2 {
		t.Fatalf("stats = %+v, want total 2 rejected 2", s)
	}
}
