package sentinel

import (
	"context"
	"time"
)

// Cache abstracts the Cache (§4.B): a best-effort hot store for aggregates
// and active-agent sets, fronted by a circuit breaker. Every method returns
// CacheUnavailableError when the breaker is open or the transport fails.
// Method names mirror the Sync Operation kinds (§3) so the Deferred Sync
// Queue can replay a logged operation by dispatching on its Kind.
type Cache interface {
	Set(ctx context.Context, key, value string) error
	SetEX(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, bool, error)
	Del(ctx context.Context, key string) error
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) error
	HIncrByFloat(ctx context.Context, key, field string, delta float64) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZIncrBy(ctx context.Context, key string, delta float64, member string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error

	// Ping performs a lightweight liveness check used by the Connectivity
	// Monitor (§4.C).
	Ping(ctx context.Context) error
	// Close releases the underlying connection.
	Close() error
}

// ApplySyncOp replays a single Sync Operation against c, dispatching on its
// Kind (§4.D). It is the single point where the Deferred Sync Queue and the
// Unified Metrics Service's best-effort write path converge on the same
// cache command implementations.
func ApplySyncOp(ctx context.Context, c Cache, op SyncOperation) error {
	switch op.Kind {
	case SyncSet:
		return c.Set(ctx, op.Key, op.Value)
	case SyncSetEX:
		return c.SetEX(ctx, op.Key, op.Value, time.Duration(op.TTLSeconds)*time.Second)
	case SyncDel:
		return c.Del(ctx, op.Key)
	case SyncHSet:
		return c.HSet(ctx, op.Key, op.Field, op.Value)
	case SyncHIncrBy:
		return c.HIncrBy(ctx, op.Key, op.Field, int64(op.Score))
	case SyncHIncrByFloat:
		return c.HIncrByFloat(ctx, op.Key, op.Field, op.Score)
	case SyncSAdd:
		return c.SAdd(ctx, op.Key, op.Value)
	case SyncSRem:
		return c.SRem(ctx, op.Key, op.Value)
	case SyncZAdd:
		return c.ZAdd(ctx, op.Key, op.Score, op.Value)
	case SyncZIncrBy:
		return c.ZIncrBy(ctx, op.Key, op.Score, op.Value)
	case SyncExpire:
		return c.Expire(ctx, op.Key, time.Duration(op.TTLSeconds)*time.Second)
	case SyncLPush:
		return c.LPush(ctx, op.Key, op.Value)
	case SyncLTrim:
		return c.LTrim(ctx, op.Key, int64(op.Score), op.TTLSeconds)
	default:
		return &ValidationError{Field: "kind", Message: "unknown sync operation kind: " + string(op.Kind)}
	}
}

// TTLs for opportunistic cache warming on read-through (§4.E).
const (
	TTLMetrics      = 60 * time.Second
	TTLTimeline     = 120 * time.Second
	TTLDistribution = 180 * time.Second
	TTLToolUsage    = 300 * time.Second
	TTLActiveAgents = 300 * time.Second
	TTLHandoff      = 30 * 24 * time.Hour
)
