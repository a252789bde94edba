package ratelimit

import (
	"errors"
	"log/slog"
	"sync/atomic"
	"time"
)

// BreakerState is the circuit breaker state machine position.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrBreakerOpen is returned by Execute's default path when the breaker
// rejects a request and no fallback succeeds.
var ErrBreakerOpen = errors.New("circuit breaker open")

type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 3,
		OpenTimeout:      10 * time.Second,
	}
}

// CircuitBreaker protects calls to an unreliable dependency. State
// transitions use compare-and-swap on the state word so a transition is
// applied exactly once per triggering event, no matter how many goroutines
// observe it. State is process-local and resets on restart.
type CircuitBreaker struct {
	name string
	cfg  BreakerConfig

	state     atomic.Int32
	failures  atomic.Int32
	successes atomic.Int32
	openedAt  atomic.Int64 // unix nanos of the last CLOSED/HALF_OPEN -> OPEN transition

	total    atomic.Int64
	rejected atomic.Int64

	now func() time.Time
}

func NewCircuitBreaker(name string, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 || cfg.SuccessThreshold <= 0 || cfg.OpenTimeout <= 0 {
		cfg = DefaultBreakerConfig()
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// AllowRequest reports whether a call may proceed. In OPEN it admits the
// first request after the open timeout elapses, moving to HALF_OPEN.
func (b *CircuitBreaker) AllowRequest() bool {
	b.total.Add(1)

	switch BreakerState(b.state.Load()) {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if b.now().UnixNano()-b.openedAt.Load() >= b.cfg.OpenTimeout.Nanoseconds() {
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.failures.Store(0)
				b.successes.Store(0)
				slog.Info("circuit breaker trial traffic", "breaker", b.name, "state", "HALF_OPEN")
			}
			return true
		}
		b.rejected.Add(1)
		return false
	}
	return false
}

func (b *CircuitBreaker) RecordSuccess() {
	switch BreakerState(b.state.Load()) {
	case StateClosed:
		b.failures.Store(0)
	case StateHalfOpen:
		if int(b.successes.Add(1)) >= b.cfg.SuccessThreshold {
			if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateClosed)) {
				b.failures.Store(0)
				b.successes.Store(0)
				slog.Info("circuit breaker recovered", "breaker", b.name, "state", "CLOSED")
			}
		}
	}
}

func (b *CircuitBreaker) RecordFailure() {
	switch BreakerState(b.state.Load()) {
	case StateClosed:
		if int(b.failures.Add(1)) >= b.cfg.FailureThreshold {
			if b.state.CompareAndSwap(int32(StateClosed), int32(StateOpen)) {
				b.openedAt.Store(b.now().UnixNano())
				slog.Warn("circuit breaker tripped", "breaker", b.name, "state", "OPEN")
			}
		}
	case StateHalfOpen:
		if b.state.CompareAndSwap(int32(StateHalfOpen), int32(StateOpen)) {
			b.openedAt.Store(b.now().UnixNano())
			slog.Warn("circuit breaker reopened", "breaker", b.name, "state", "OPEN")
		}
	}
}

// Execute runs action under breaker protection, invoking fallback when the
// request is rejected or action fails. Fallbacks should be conservative:
// deny, never assume success.
func (b *CircuitBreaker) Execute(action func() error, fallback func() error) error {
	if !b.AllowRequest() {
		return fallback()
	}
	if err := action(); err != nil {
		b.RecordFailure()
		if fbErr := fallback(); fbErr != nil {
			return fbErr
		}
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *CircuitBreaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

// Reset forces the breaker back to CLOSED with all counters cleared.
func (b *CircuitBreaker) Reset() {
	b.state.Store(int32(StateClosed))
	b.failures.Store(0)
	b.successes.Store(0)
	b.openedAt.Store(0)
}

type BreakerStats struct {
	Name         string `json:"name"`
	State        string `json:"state"`
	FailureCount int32  `json:"failure_count"`
	SuccessCount int32  `json:"success_count"`
	Total        int64  `json:"total_requests"`
	Rejected     int64  `json:"rejected_requests"`
}

func (b *CircuitBreaker) Stats() BreakerStats {
	return BreakerStats{
		Name:         b.name,
		State:        b.State().String(),
		FailureCount: b.failures.Load(),
		SuccessCount: b.successes.Load(),
		Total:        b.total.Load(),
		Rejected:     b.rejected.Load(),
	}
}
