package sentinel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// CircuitState is one of the three states a CircuitBreaker can be in (§4.B).
type CircuitState int32

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerOption configures a CircuitBreaker.
type CircuitBreakerOption func(*CircuitBreaker)

// WithFailureThreshold sets the failure count that trips the breaker to
// OPEN. A success resets the count only when it comes more than the
// monitoring window after the latest failure. Default 5.
func WithFailureThreshold(n int32) CircuitBreakerOption {
	return func(b *CircuitBreaker) { b.failureThreshold = n }
}

// WithRecoveryTimeout sets how long the breaker stays OPEN before probing
// again via HALF_OPEN. Default 30s.
func WithRecoveryTimeout(d time.Duration) CircuitBreakerOption {
	return func(b *CircuitBreaker) { b.recoveryTimeout = d }
}

// WithMonitoringWindow sets the window outside of which a success resets the
// failure count even while CLOSED. Default 60s.
func WithMonitoringWindow(d time.Duration) CircuitBreakerOption {
	return func(b *CircuitBreaker) { b.monitoringWindow = d }
}

// WithBreakerLogger attaches a structured logger. Discarded by default.
func WithBreakerLogger(l *slog.Logger) CircuitBreakerOption {
	return func(b *CircuitBreaker) { b.logger = l }
}

// WithBreakerInstruments attaches counters for state transitions.
func WithBreakerInstruments(inst *Instruments) CircuitBreakerOption {
	return func(b *CircuitBreaker) { b.inst = inst }
}

// CircuitBreaker gates calls to the Cache, per §4.B's state machine: CLOSED
// permits calls and resets the failure count once outside the monitoring
// window; OPEN fails fast with CacheUnavailableError until the recovery
// timeout elapses, then moves to HALF_OPEN; HALF_OPEN allows a single probe,
// succeeding back to CLOSED or failing back to OPEN with the recovery clock
// reset. State and counters are updated atomically so concurrent callers
// never observe a torn transition (§5).
type CircuitBreaker struct {
	failureThreshold int32
	recoveryTimeout  time.Duration
	monitoringWindow time.Duration
	logger           *slog.Logger
	inst             *Instruments

	state           atomic.Int32
	failures        atomic.Int32
	lastFailureUnix atomic.Int64
	openedAtUnix    atomic.Int64

	// probing gates the single HALF_OPEN probe attempt. An atomic.Bool lets
	// Reset force-clear it unconditionally, which a sync.Mutex cannot do
	// safely from a caller that may not hold the lock.
	probing atomic.Bool
}

// NewCircuitBreaker creates a breaker starting CLOSED.
func NewCircuitBreaker(opts ...CircuitBreakerOption) *CircuitBreaker {
	b := &CircuitBreaker{
		failureThreshold: 5,
		recoveryTimeout:  30 * time.Second,
		monitoringWindow: 60 * time.Second,
		logger:           nopLogger,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// State returns the current circuit state.
func (b *CircuitBreaker) State() CircuitState {
	return CircuitState(b.state.Load())
}

// Allow reports whether a call may proceed right now, transitioning OPEN to
// HALF_OPEN when the recovery timeout has elapsed.
func (b *CircuitBreaker) Allow() bool {
	switch CircuitState(b.state.Load()) {
	case CircuitClosed:
		return true
	case CircuitHalfOpen:
		return b.probing.CompareAndSwap(false, true)
	case CircuitOpen:
		openedAt := time.Unix(0, b.openedAtUnix.Load())
		if time.Since(openedAt) < b.recoveryTimeout {
			return false
		}
		if b.state.CompareAndSwap(int32(CircuitOpen), int32(CircuitHalfOpen)) {
			b.logger.Warn("circuit breaker: recovery timeout elapsed, probing", "state", "half_open")
		}
		return b.probing.CompareAndSwap(false, true)
	default:
		return false
	}
}

// Reset forces the breaker back to CLOSED and releases any held probe slot.
// Used by the connectivity monitor when it has independently confirmed the
// cache is reachable, so a wedged HALF_OPEN probe can't starve recovery.
func (b *CircuitBreaker) Reset() {
	b.state.Store(int32(CircuitClosed))
	b.failures.Store(0)
	b.probing.Store(false)
}

// Execute runs fn if Allow() permits it, recording the outcome. Returns
// CacheUnavailableError without calling fn when the breaker denies the call.
func Execute[T any](ctx context.Context, b *CircuitBreaker, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !b.Allow() {
		return zero, &CacheUnavailableError{Op: op}
	}
	wasHalfOpen := CircuitState(b.state.Load()) == CircuitHalfOpen
	if wasHalfOpen {
		defer b.probing.Store(false)
	}
	result, err := fn(ctx)
	if err != nil {
		b.recordFailure(wasHalfOpen)
		return zero, &CacheUnavailableError{Op: op, Err: err}
	}
	b.recordSuccess(wasHalfOpen)
	return result, nil
}

func (b *CircuitBreaker) recordSuccess(wasHalfOpen bool) {
	if wasHalfOpen {
		b.state.Store(int32(CircuitClosed))
		b.failures.Store(0)
		b.logger.Info("circuit breaker: probe succeeded", "state", "closed")
		return
	}
	last := time.Unix(0, b.lastFailureUnix.Load())
	if b.lastFailureUnix.Load() != 0 && time.Since(last) > b.monitoringWindow {
		b.failures.Store(0)
	}
}

func (b *CircuitBreaker) recordFailure(wasHalfOpen bool) {
	now := time.Now()
	b.lastFailureUnix.Store(now.UnixNano())

	if wasHalfOpen {
		b.trip(now)
		return
	}

	n := b.failures.Add(1)
	if n >= b.failureThreshold {
		b.trip(now)
	}
}

func (b *CircuitBreaker) trip(now time.Time) {
	b.openedAtUnix.Store(now.UnixNano())
	if b.state.Swap(int32(CircuitOpen)) != int32(CircuitOpen) {
		b.logger.Warn("circuit breaker: tripped open", "failures", b.failures.Load())
		if b.inst != nil {
			b.inst.CircuitTrips.Add(context.Background(), 1)
		}
	}
	b.failures.Store(0)
}
