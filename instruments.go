package sentinel

import "context"

// Counter is a monotonically increasing metric. The observer package
// provides an OTEL-backed implementation; components record against the
// interface so the root package stays free of the OTEL SDK import, the same
// separation tracer.go draws for spans.
type Counter interface {
	Add(ctx context.Context, n int64)
}

// Histogram records a distribution of observed values.
type Histogram interface {
	Record(ctx context.Context, v float64)
}

// Instruments holds all metrics recorded against by the ingestion, cache,
// sync-queue, and broadcast components. A nil *Instruments (or nil field) is
// always safe to skip recording against.
type Instruments struct {
	EventsIngested   Counter
	CacheHits        Counter
	CacheMisses      Counter
	CircuitTrips     Counter
	SyncEnqueued     Counter
	SyncSynced       Counter
	SyncFailed       Counter
	BroadcastSent    Counter
	BroadcastDropped Counter

	IngestDuration Histogram
	CacheDuration  Histogram
}
