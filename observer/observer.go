// Package observer provides OTEL-based observability for the Sentinel
// ingestion, metrics, and relationship pipelines.
//
// It exposes a Tracer (see tracer.go) and a *sentinel.Instruments (counters
// and histograms) that the root sentinel package records against. Traces and
// metrics export to any OTLP-HTTP compatible backend via standard OTEL env
// vars (OTEL_EXPORTER_OTLP_ENDPOINT, etc). Structured logging is handled
// separately via log/slog — see internal/config and each component's
// WithLogger option — so no OTEL log pipeline is wired here.
package observer

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"go.opentelemetry.io/otel/metric"

	sentinel "github.com/agentlens/sentinel"
)

const scopeName = "github.com/agentlens/sentinel/observer"

// counterAdapter satisfies sentinel.Counter by discarding the variadic OTEL
// AddOption the metric.Int64Counter method accepts.
type counterAdapter struct{ c metric.Int64Counter }

func (a counterAdapter) Add(ctx context.Context, n int64) { a.c.Add(ctx, n) }

// histogramAdapter satisfies sentinel.Histogram the same way.
type histogramAdapter struct{ h metric.Float64Histogram }

func (a histogramAdapter) Record(ctx context.Context, v float64) { a.h.Record(ctx, v) }

// Init sets up OTEL trace and metric providers with OTLP HTTP exporters.
// Configuration comes from standard OTEL env vars. Returns a shutdown
// function that must be called on application exit.
func Init(ctx context.Context, serviceName string) (*sentinel.Instruments, func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceName(serviceName)),
		resource.WithFromEnv(),
	)
	if err != nil {
		return nil, nil, err
	}

	traceExp, err := otlptracehttp.New(ctx)
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExp, err := otlpmetrichttp.New(ctx)
	if err != nil {
		_ = tp.Shutdown(ctx)
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	inst, err := newInstruments()
	if err != nil {
		_ = tp.Shutdown(ctx)
		_ = mp.Shutdown(ctx)
		return nil, nil, err
	}

	shutdown := func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	return inst, shutdown, nil
}

func newInstruments() (*sentinel.Instruments, error) {
	meter := otel.Meter(scopeName)

	eventsIngested, err := meter.Int64Counter("sentinel.events.ingested",
		metric.WithDescription("Hook events successfully persisted"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, err
	}
	cacheHits, err := meter.Int64Counter("sentinel.cache.hits",
		metric.WithDescription("Cache reads satisfied without falling back to the durable store"),
		metric.WithUnit("{hit}"))
	if err != nil {
		return nil, err
	}
	cacheMisses, err := meter.Int64Counter("sentinel.cache.misses",
		metric.WithDescription("Cache reads that fell back to the durable store"),
		metric.WithUnit("{miss}"))
	if err != nil {
		return nil, err
	}
	circuitTrips, err := meter.Int64Counter("sentinel.circuit.trips",
		metric.WithDescription("Circuit breaker transitions into the OPEN state"),
		metric.WithUnit("{trip}"))
	if err != nil {
		return nil, err
	}
	syncEnqueued, err := meter.Int64Counter("sentinel.sync.enqueued",
		metric.WithDescription("Cache operations deferred to the sync queue"),
		metric.WithUnit("{op}"))
	if err != nil {
		return nil, err
	}
	syncSynced, err := meter.Int64Counter("sentinel.sync.synced",
		metric.WithDescription("Deferred operations successfully replayed"),
		metric.WithUnit("{op}"))
	if err != nil {
		return nil, err
	}
	syncFailed, err := meter.Int64Counter("sentinel.sync.failed",
		metric.WithDescription("Deferred operations that exhausted retries"),
		metric.WithUnit("{op}"))
	if err != nil {
		return nil, err
	}
	broadcastSent, err := meter.Int64Counter("sentinel.broadcast.sent",
		metric.WithDescription("Messages delivered to subscribers"),
		metric.WithUnit("{message}"))
	if err != nil {
		return nil, err
	}
	broadcastDropped, err := meter.Int64Counter("sentinel.broadcast.dropped_subscribers",
		metric.WithDescription("Subscribers ejected after a failed send"),
		metric.WithUnit("{subscriber}"))
	if err != nil {
		return nil, err
	}
	ingestDuration, err := meter.Float64Histogram("sentinel.ingest.duration",
		metric.WithDescription("End-to-end event ingestion latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	cacheDuration, err := meter.Float64Histogram("sentinel.cache.duration",
		metric.WithDescription("Cache command latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &sentinel.Instruments{
		EventsIngested:   counterAdapter{eventsIngested},
		CacheHits:        counterAdapter{cacheHits},
		CacheMisses:      counterAdapter{cacheMisses},
		CircuitTrips:     counterAdapter{circuitTrips},
		SyncEnqueued:     counterAdapter{syncEnqueued},
		SyncSynced:       counterAdapter{syncSynced},
		SyncFailed:       counterAdapter{syncFailed},
		BroadcastSent:    counterAdapter{broadcastSent},
		BroadcastDropped: counterAdapter{broadcastDropped},
		IngestDuration:   histogramAdapter{ingestDuration},
		CacheDuration:    histogramAdapter{cacheDuration},
	}, nil
}
