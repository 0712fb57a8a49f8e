package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/agentlens/sentinel/internal/config"
	"github.com/agentlens/sentinel/internal/httpapi"
	"github.com/agentlens/sentinel/internal/wsapi"
)

// Deps holds the injected dependencies an App is built from. Store and
// Cache are the only required fields; everything else wires the rest of
// the pipeline (circuit breaker, sync queue, bus, HTTP/WS listener) on
// top of them using cfg's knobs.
type Deps struct {
	Store  Store
	Cache  Cache
	Tracer Tracer
	Meter  *Instruments
	Logger *slog.Logger
}

// App assembles every Sentinel component described in §4 into one running
// server: durable store, best-effort cache, circuit breaker, deferred sync
// queue, connectivity monitor, unified metrics service, session
// relationship store, hook coverage aggregator, event ingestor, broadcast
// bus, and the HTTP+WebSocket transport.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store    Store
	cache    Cache
	breaker  *CircuitBreaker
	syncQ    *SyncQueue
	monitor  *ConnectivityMonitor
	metrics  *MetricsService
	rels     *RelationshipStore
	coverage *HookCoverageAggregator
	ingestor *Ingestor
	bus      *Bus

	httpSrv *http.Server
}

// NewApp wires deps together according to cfg. Call Run or RunWithSignal
// to start the sync-queue drain loop, the connectivity monitor, and the
// HTTP+WebSocket listener.
func NewApp(cfg config.Config, deps Deps) *App {
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}

	breaker := NewCircuitBreaker(
		WithFailureThreshold(cfg.CircuitBreaker.FailureThreshold),
		WithRecoveryTimeout(cfg.CircuitBreaker.RecoveryTimeout),
		WithMonitoringWindow(cfg.CircuitBreaker.MonitoringWindow),
		WithBreakerLogger(logger),
		WithBreakerInstruments(deps.Meter),
	)
	syncQ := NewSyncQueue(deps.Store, deps.Cache, breaker,
		WithSyncInterval(cfg.Sync.Interval),
		WithSyncBatchSize(cfg.Sync.BatchSize),
		WithSyncMaxAttempts(cfg.Sync.MaxRetries),
		WithSyncLogger(logger),
		WithSyncInstruments(deps.Meter),
	)
	monitor := NewConnectivityMonitor(deps.Cache, breaker,
		WithProbeInterval(cfg.Sync.Interval),
		WithMonitorLogger(logger),
	)
	metrics := NewMetricsService(deps.Store, deps.Cache, breaker, syncQ,
		WithMetricsLogger(logger),
		WithMetricsTracer(deps.Tracer),
		WithMetricsInstruments(deps.Meter),
	)
	rels := NewRelationshipStore(deps.Store, WithRelationshipLogger(logger))
	coverage := NewHookCoverageAggregator(deps.Store)
	bus := NewBus(
		func(ctx context.Context, limit int) ([]Event, error) { return deps.Store.RecentEvents(ctx, limit) },
		func(ctx context.Context) (any, error) { return deps.Store.ActiveAgentExecutions(ctx) },
		WithHighWaterMark(cfg.Broadcast.HighWaterMark),
		WithInitialWindow(cfg.Broadcast.InitialWindow),
		WithBusLogger(logger),
		WithBusInstruments(deps.Meter),
	)
	ingestor := NewIngestor(deps.Store, metrics, rels, bus, coverage,
		WithIngestorLogger(logger),
		WithIngestorTracer(deps.Tracer),
	)

	monitor.OnRecovered(func(ctx context.Context) { syncQ.Drain(ctx) })

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.NewServer(httpapi.Deps{
		Store:    deps.Store,
		Ingestor: ingestor,
		Metrics:  metrics,
		Rels:     rels,
		Coverage: coverage,
		SyncQ:    syncQ,
		Monitor:  monitor,
		Cache:    deps.Cache,
		Logger:   logger,
	}))
	mux.Handle("/stream", wsapi.NewHandler(bus, wsapi.WithLogger(logger)))

	return &App{
		cfg:      cfg,
		logger:   logger,
		store:    deps.Store,
		cache:    deps.Cache,
		breaker:  breaker,
		syncQ:    syncQ,
		monitor:  monitor,
		metrics:  metrics,
		rels:     rels,
		coverage: coverage,
		ingestor: ingestor,
		bus:      bus,
		httpSrv:  &http.Server{Addr: cfg.HTTP.Addr, Handler: mux},
	}
}

// Ingestor exposes the event ingestion pipeline for callers embedding the
// App rather than driving it purely over HTTP (e.g. an in-process hook
// runner).
func (a *App) Ingestor() *Ingestor { return a.ingestor }

// Bus exposes the broadcast bus for callers wiring additional subscriber
// transports beyond the bundled WebSocket feed.
func (a *App) Bus() *Bus { return a.bus }

// Run starts the background loops (sync queue drain, connectivity probe)
// and the HTTP+WebSocket listener, blocking until ctx is cancelled or the
// listener fails. On return, the listener is shut down with a bounded
// grace period.
func (a *App) Run(ctx context.Context) error {
	if err := a.store.Init(ctx); err != nil {
		return fmt.Errorf("sentinel: store init: %w", err)
	}

	go a.syncQ.Run(ctx)
	go a.monitor.Run(ctx)
	if a.cfg.Storage.RetentionDays > 0 {
		go a.runRetentionSweep(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("sentinel: listening", "addr", a.cfg.HTTP.Addr)
		if err := a.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.logger.Info("sentinel: shutting down")
		return a.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// runRetentionSweep runs the Durable Store's retention sweep once a day
// (§4.A) until ctx is cancelled.
func (a *App) runRetentionSweep(ctx context.Context) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := NowMillis() - int64(a.cfg.Storage.RetentionDays)*24*60*60*1000
			if err := a.store.Sweep(ctx, cutoff); err != nil {
				a.logger.Error("sentinel: retention sweep failed", "error", err)
			}
		}
	}
}

// RunWithSignal wraps Run with OS signal handling for graceful shutdown on
// SIGINT/SIGTERM.
func (a *App) RunWithSignal() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return a.Run(ctx)
}
