package ratelimit

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeClock lets tests move time forward deterministically.
type fakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{cur: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(d)
}

func TestTokenBucket_BurstThenRefill(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(10, 5)
	b.now = clock.Now
	b.lastRefill = clock.Now()

	for i := 0; i < 10; i++ {
		if !b.TryAcquire(1) {
			t.Fatalf("call %d: expected admit within burst capacity", i+1)
		}
	}
	if b.TryAcquire(1) {
		t.Fatal("11th call: expected reject, bucket empty")
	}

	clock.Advance(1 * time.Second)

	for i := 0; i < 5; i++ {
		if !b.TryAcquire(1) {
			t.Fatalf("post-refill call %d: expected admit", i+1)
		}
	}
	if b.TryAcquire(1) {
		t.Fatal("expected reject after consuming refilled tokens")
	}
}

func TestTokenBucket_RefillCapsAtCapacity(t *testing.T) {
	clock := newFakeClock()
	b := NewTokenBucket(5, 100)
	b.now = clock.Now
	b.lastRefill = clock.Now()

	clock.Advance(time.Minute)

	admitted := 0
	for b.TryAcquire(1) {
		admitted++
		if admitted > 5 {
			break
		}
	}
	if admitted != 5 {
		t.Fatalf("admitted %d, want 5 (capacity cap)", admitted)
	}
}

func TestTokenBucket_MultiplePermits(t *testing.T) {
	b := NewTokenBucket(10, 1)

	if !b.TryAcquire(7) {
		t.Fatal("expected 7 permits to be available")
	}
	if b.TryAcquire(4) {
		t.Fatal("expected 4 permits to be rejected with 3 left")
	}
	if !b.TryAcquire(3) {
		t.Fatal("expected remaining 3 permits to be available")
	}
}

func TestTokenBucket_Concurrent(t *testing.T) {
	b := NewTokenBucket(100, 0.001)

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				if b.TryAcquire(1) {
					admitted.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := admitted.Load(); got != 100 {
		t.Fatalf("admitted %d of 500 concurrent attempts, want exactly 100", got)
	}
}

func TestSlidingWindow_LimitWithinWindow(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(5, time.Second, 10)
	w.now = clock.Now

	for i := 0; i < 5; i++ {
		if !w.TryAcquire(1) {
			t.Fatalf("call %d: expected admit under limit", i+1)
		}
		clock.Advance(50 * time.Millisecond)
	}
	if w.TryAcquire(1) {
		t.Fatal("expected reject at limit")
	}
}

func TestSlidingWindow_SlidesPastExpiredSlots(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(2, time.Second, 10)
	w.now = clock.Now

	if !w.TryAcquire(2) {
		t.Fatal("expected initial burst to be admitted")
	}
	if w.TryAcquire(1) {
		t.Fatal("expected reject while window is full")
	}

	// The whole window has passed, old slots must expire.
	clock.Advance(1100 * time.Millisecond)

	if !w.TryAcquire(2) {
		t.Fatal("expected admit after window slid past old slots")
	}
}

func TestSlidingWindow_SmoothsBoundaryBurst(t *testing.T) {
	clock := newFakeClock()
	w := NewSlidingWindow(4, time.Second, 10)
	w.now = clock.Now

	// Fill at the end of one fixed second.
	clock.Advance(900 * time.Millisecond)
	if !w.TryAcquire(4) {
		t.Fatal("expected admit")
	}

	// Just over the fixed-second boundary: a fixed window would admit 4 more,
	// the sliding window must not.
	clock.Advance(200 * time.Millisecond)
	if w.TryAcquire(4) {
		t.Fatal("expected reject straddling the window boundary")
	}
}

func TestSlidingWindow_Stats(t *testing.T) {
	w := NewSlidingWindow(10, time.Second, 10)
	if !w.TryAcquire(3) {
		t.Fatal("expected admit")
	}

	s := w.Stats()
	if s.Limit != 10 || s.Available != 7 {
		t.Fatalf("stats = %+v, want limit 10 available 7", s)
	}
}
