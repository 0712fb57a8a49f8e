package sentinel

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// SyncQueueOption configures a SyncQueue.
type SyncQueueOption func(*SyncQueue)

// WithSyncInterval sets how often the queue drains pending operations while
// the cache is reachable. Default 30s.
func WithSyncInterval(d time.Duration) SyncQueueOption {
	return func(q *SyncQueue) { q.interval = d }
}

// WithSyncBatchSize caps how many pending operations are replayed per drain
// pass. Default 100.
func WithSyncBatchSize(n int) SyncQueueOption {
	return func(q *SyncQueue) { q.batchSize = n }
}

// WithSyncMaxAttempts sets how many failed replay attempts an operation
// tolerates before it is marked failed and skipped. Default 3.
func WithSyncMaxAttempts(n int) SyncQueueOption {
	return func(q *SyncQueue) { q.maxAttempts = n }
}

// WithSyncLogger attaches a structured logger.
func WithSyncLogger(l *slog.Logger) SyncQueueOption {
	return func(q *SyncQueue) { q.logger = l }
}

// WithSyncInstruments attaches counters for queue activity.
func WithSyncInstruments(inst *Instruments) SyncQueueOption {
	return func(q *SyncQueue) { q.inst = inst }
}

// SyncQueue is the Deferred Sync Queue (§4.D): a durable log of cache
// mutations that failed (or were skipped because the circuit breaker was
// open) at write time, replayed in FIFO-per-key order once the cache is
// reachable again. Naturally idempotent operation kinds replay freely;
// non-idempotent kinds (hincrby, hincrbyfloat, sadd, srem, zadd, zincrby,
// lpush) may over-count if the process crashes after a successful replay but
// before the row is marked synced — accepted per the spec's own stated
// default rather than paying for exactly-once semantics (open question,
// resolved in DESIGN.md).
type SyncQueue struct {
	store       Store
	cache       Cache
	breaker     *CircuitBreaker
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
	inst        *Instruments
}

// NewSyncQueue creates a queue over store and cache, gated by breaker.
func NewSyncQueue(store Store, cache Cache, breaker *CircuitBreaker, opts ...SyncQueueOption) *SyncQueue {
	q := &SyncQueue{
		store:       store,
		cache:       cache,
		breaker:     breaker,
		interval:    30 * time.Second,
		batchSize:   100,
		maxAttempts: 3,
		logger:      nopLogger,
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Enqueue durably logs op for later replay. Called on the write path when a
// best-effort cache write fails or is skipped because the breaker is open.
func (q *SyncQueue) Enqueue(ctx context.Context, op SyncOperation) error {
	op.CreatedAt = NowMillis()
	op.Status = SyncPending
	id, err := q.store.EnqueueSyncOp(ctx, op)
	if err != nil {
		return &PersistenceError{Op: "EnqueueSyncOp", Err: err}
	}
	q.logger.Debug("sync queue: enqueued", "id", id, "kind", op.Kind, "key", op.Key)
	if q.inst != nil {
		q.inst.SyncEnqueued.Add(ctx, 1)
	}
	return nil
}

// Run starts the drain loop, blocking until ctx is cancelled. Call Drain
// directly (e.g. from the ConnectivityMonitor's recovery callback) to force
// an immediate pass outside the regular tick.
func (q *SyncQueue) Run(ctx context.Context) {
	q.logger.Info("sync queue: started", "interval", q.interval)
	ticker := time.NewTicker(q.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			q.logger.Info("sync queue: stopped")
			return
		case <-ticker.C:
			q.Drain(ctx)
		}
	}
}

// Drain replays up to one batch of pending operations in FIFO-per-key order
// (the store returns rows ordered by id, which is creation order). A failure
// on one key's operation does not block progress on other keys, but leaves
// later operations for the SAME key queued behind it so that, e.g., a
// hincrby is never replayed out of order relative to an earlier del. Each
// replay is gated through Execute rather than a standalone breaker.Allow()
// check, so a HALF_OPEN probe slot consumed mid-batch is always released and
// its outcome always recorded. The batch terminates early, leaving the rest
// pending, once the breaker stops allowing calls or the batch's error ratio
// exceeds 50% (after at least two operations have been attempted).
func (q *SyncQueue) Drain(ctx context.Context) {
	ops, err := q.store.PendingSyncOps(ctx, q.batchSize)
	if err != nil {
		q.logger.Error("sync queue: list pending failed", "error", err)
		return
	}
	if len(ops) == 0 {
		return
	}

	blockedKeys := make(map[string]bool)
	var processed, failed int
	for _, op := range ops {
		if blockedKeys[op.Key] {
			continue
		}
		denied, opErr := q.replay(ctx, op)
		if denied {
			// Breaker isn't currently allowing calls; the rest of the batch
			// would be denied too, so pause here rather than burn through it.
			return
		}
		processed++
		if opErr != nil {
			failed++
			blockedKeys[op.Key] = true
		}
		if processed >= 2 && float64(failed)/float64(processed) > 0.5 {
			q.logger.Warn("sync queue: batch error ratio exceeded, deferring remainder",
				"processed", processed, "failed", failed)
			return
		}
	}
}

// replay attempts a single operation through the circuit breaker. denied is
// true when the breaker refused the call outright (no cache call was made,
// so it doesn't count toward attempts or the batch's error ratio).
func (q *SyncQueue) replay(ctx context.Context, op SyncOperation) (denied bool, err error) {
	_, applyErr := Execute(ctx, q.breaker, "sync_replay", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, ApplySyncOp(ctx, q.cache, op)
	})

	var unavailable *CacheUnavailableError
	if applyErr != nil && errors.As(applyErr, &unavailable) && unavailable.Err == nil {
		return true, nil
	}

	now := NowMillis()
	if applyErr != nil {
		attempts := op.Attempts + 1
		if attempts >= q.maxAttempts {
			if markErr := q.store.MarkSyncOpFailed(ctx, op.ID, attempts, now); markErr != nil {
				q.logger.Error("sync queue: mark failed errored", "id", op.ID, "error", markErr)
			}
			q.logger.Warn("sync queue: operation exhausted retries", "id", op.ID, "kind", op.Kind, "key", op.Key)
			if q.inst != nil {
				q.inst.SyncFailed.Add(ctx, 1)
			}
			return false, applyErr
		}
		if markErr := q.store.MarkSyncOpRetry(ctx, op.ID, attempts, now); markErr != nil {
			q.logger.Error("sync queue: mark retry errored", "id", op.ID, "error", markErr)
		}
		return false, applyErr
	}

	if markErr := q.store.MarkSyncOpSynced(ctx, op.ID); markErr != nil {
		q.logger.Error("sync queue: mark synced errored", "id", op.ID, "error", markErr)
		return false, markErr
	}
	if q.inst != nil {
		q.inst.SyncSynced.Add(ctx, 1)
	}
	return false, nil
}

// PendingCount reports how many operations remain to be synced, exposed via
// the Fallback Admin API (§6).
func (q *SyncQueue) PendingCount(ctx context.Context) (int64, error) {
	n, err := q.store.CountPendingSyncOps(ctx)
	if err != nil {
		return 0, &PersistenceError{Op: "CountPendingSyncOps", Err: err}
	}
	return n, nil
}
