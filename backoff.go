package sentinel

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// BackoffPolicy configures the retry behavior MetricsService applies to its
// best-effort Cache writes (§4.B): exponential backoff with a base delay, a
// cap, bounded jitter, and a fixed attempt budget.
type BackoffPolicy struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts uint
	// Jitter is the randomization factor applied to each delay, in [0, 1).
	// The spec caps jitter at 10% (0.10).
	Jitter float64
}

// DefaultCacheBackoff matches §4.B's tuning knobs: base 1s, cap 8s, jitter
// <=10%, up to 3 attempts.
func DefaultCacheBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:   time.Second,
		MaxDelay:    8 * time.Second,
		MaxAttempts: 3,
		Jitter:      0.10,
	}
}

// retryWithBackoff runs fn until it succeeds, ctx is cancelled, or the
// policy's attempt budget is exhausted, using exponential backoff with
// jitter between attempts. It is a thin wrapper over
// github.com/cenkalti/backoff/v5's generic Retry so every retrying
// component in the package shares one backoff implementation.
func retryWithBackoff[T any](ctx context.Context, p BackoffPolicy, fn func() (T, error)) (T, error) {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		MaxInterval:         p.MaxDelay,
		Multiplier:          2,
		RandomizationFactor: p.Jitter,
	}
	b.Reset()
	return backoff.Retry(ctx, func() (T, error) {
		return fn()
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.MaxAttempts))
}
