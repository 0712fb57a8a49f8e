// Package sentinel is an observability backend for multi-agent
// orchestration: it ingests hook events emitted during agent execution,
// persists them durably, aggregates them into live metrics, tracks
// parent/child session relationships, and fans updates out to subscribed
// dashboards in real time.
//
// # Quick Start
//
// Wire the components together through [App]:
//
//	cache, err := redis.New("redis://localhost:6379/0")
//	if err != nil {
//		return err
//	}
//	app := sentinel.NewApp(config.Default(), sentinel.Deps{
//		Store: sqlite.New("sentinel.db"),
//		Cache: cache,
//	})
//	app.Run(ctx)
//
// # Core Interfaces
//
// The root package defines the contracts every component implements:
//
//   - [Store] — durable persistence for events, aggregates, relationships, sync queue, and handoffs
//   - [Cache] — best-effort hot store for aggregates and active-agent sets
//   - [Tracer] — span creation for ingestion and metrics operations
//
// and the components built on top of them:
//
//   - [CircuitBreaker] / [ConnectivityMonitor] — cache liveness and fail-fast
//   - [SyncQueue] — durable replay log for deferred cache writes
//   - [MetricsService] — the unified read/write façade over Store and Cache
//   - [Ingestor] — event validation, persistence, and derived lifecycle actions
//   - [RelationshipStore] — acyclic parent/child session tree construction
//   - [Bus] — subscriber registry and best-effort broadcast
//   - [HookCoverageAggregator] — rolling per-hook-type statistics
//
// # Included Implementations
//
// Storage: store/sqlite (embedded, single-writer). Cache: cache/redis.
// Observability: observer (OTEL tracing and metrics). Transport:
// internal/httpapi (REST) and internal/wsapi (the /stream WebSocket feed).
//
// See cmd/sentinel for a complete reference server.
package sentinel
