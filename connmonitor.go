package sentinel

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ConnectionStatus is the health of the Cache as observed by the
// ConnectivityMonitor (§4.C).
type ConnectionStatus int32

const (
	ConnUnknown ConnectionStatus = iota
	ConnUp
	ConnDown
)

func (s ConnectionStatus) String() string {
	switch s {
	case ConnUp:
		return "up"
	case ConnDown:
		return "down"
	default:
		return "unknown"
	}
}

// ConnStatusListener is notified whenever the monitor's observed status
// changes. Implementations must not block; the monitor calls listeners
// synchronously from its polling loop.
type ConnStatusListener func(prev, next ConnectionStatus)

// ConnMonitorOption configures a ConnectivityMonitor.
type ConnMonitorOption func(*ConnectivityMonitor)

// WithProbeInterval sets how often the monitor pings the Cache. Default 60s
// per §4.C.
func WithProbeInterval(d time.Duration) ConnMonitorOption {
	return func(m *ConnectivityMonitor) { m.interval = d }
}

// WithMonitorLogger attaches a structured logger.
func WithMonitorLogger(l *slog.Logger) ConnMonitorOption {
	return func(m *ConnectivityMonitor) { m.logger = l }
}

// ConnectivityMonitor periodically probes the Cache (independent of whether
// the circuit breaker currently allows calls) so that recovery can be
// detected and the Deferred Sync Queue drained even while the breaker is
// OPEN and fast-failing application traffic (§4.C).
type ConnectivityMonitor struct {
	cache    Cache
	breaker  *CircuitBreaker
	interval time.Duration
	logger   *slog.Logger
	limiter  *rate.Limiter

	mu        sync.Mutex
	status    ConnectionStatus
	listeners []ConnStatusListener

	onRecovered func(ctx context.Context)
}

// NewConnectivityMonitor creates a monitor over cache, consulting (but not
// gating itself on) breaker's state for logging context.
func NewConnectivityMonitor(cache Cache, breaker *CircuitBreaker, opts ...ConnMonitorOption) *ConnectivityMonitor {
	m := &ConnectivityMonitor{
		cache:    cache,
		breaker:  breaker,
		interval: 60 * time.Second,
		logger:   nopLogger,
		status:   ConnUnknown,
	}
	for _, o := range opts {
		o(m)
	}
	if m.limiter == nil {
		// Cap probes at twice the configured cadence so an admin-triggered
		// test-redis call (§6 "Fallback Admin API") can't storm the cache
		// alongside the background ticker.
		m.limiter = rate.NewLimiter(rate.Every(m.interval/2), 1)
	}
	return m
}

// OnStatusChange registers a listener invoked whenever probed status flips.
func (m *ConnectivityMonitor) OnStatusChange(l ConnStatusListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, l)
}

// OnRecovered registers a callback fired exactly once per down-to-up
// transition, after listeners run. The sync queue drain hooks in here.
func (m *ConnectivityMonitor) OnRecovered(fn func(ctx context.Context)) {
	m.onRecovered = fn
}

// Status returns the last probed connection status.
func (m *ConnectivityMonitor) Status() ConnectionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// ProbeNow triggers an out-of-band probe, for the Fallback Admin API's
// test-redis endpoint (§6). Calls wait on the monitor's rate limiter so a
// burst of admin requests can't overwhelm the cache; the background loop's
// ticker-driven probes do not go through the limiter.
func (m *ConnectivityMonitor) ProbeNow(ctx context.Context) ConnectionStatus {
	if err := m.limiter.Wait(ctx); err != nil {
		return m.Status()
	}
	m.probe(ctx)
	return m.Status()
}

// Run starts the probe loop, blocking until ctx is cancelled.
func (m *ConnectivityMonitor) Run(ctx context.Context) {
	m.logger.Info("connectivity monitor: started", "interval", m.interval)
	m.probe(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("connectivity monitor: stopped")
			return
		case <-ticker.C:
			m.probe(ctx)
		}
	}
}

func (m *ConnectivityMonitor) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err := m.cache.Ping(pingCtx)
	next := ConnUp
	if err != nil {
		next = ConnDown
	}

	m.mu.Lock()
	prev := m.status
	m.status = next
	listeners := append([]ConnStatusListener(nil), m.listeners...)
	m.mu.Unlock()

	if prev == next {
		return
	}
	m.logger.Warn("connectivity monitor: status changed", "from", prev, "to", next, "breaker_state", m.breaker.State())

	for _, l := range listeners {
		l(prev, next)
	}
	if next == ConnUp && prev == ConnDown {
		// The probe has independently confirmed the cache is reachable, so
		// force the breaker closed rather than leaving drain at the mercy of
		// a stuck HALF_OPEN probe slot or the breaker's own recovery timer.
		m.breaker.Reset()
		if m.onRecovered != nil {
			m.onRecovered(ctx)
		}
	}
}

// RunWithFallback executes primary; if it fails with a CacheUnavailableError
// it runs fallback instead, logging the degradation. Used by read paths that
// have a Store-backed fallback for cache misses (§4.C "fallback primitive").
func RunWithFallback[T any](ctx context.Context, logger *slog.Logger, primary func(ctx context.Context) (T, error), fallback func(ctx context.Context) (T, error)) (T, error) {
	result, err := primary(ctx)
	if err == nil {
		return result, nil
	}
	var cacheErr *CacheUnavailableError
	if !errors.As(err, &cacheErr) {
		return result, err
	}
	if logger == nil {
		logger = nopLogger
	}
	logger.Debug("falling back after cache unavailable", "op", cacheErr.Op)
	return fallback(ctx)
}
