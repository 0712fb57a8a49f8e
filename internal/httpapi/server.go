// Package httpapi implements the REST surface of §6 "External Interfaces":
// ingestion, metrics, hook coverage, session relationships, and the
// fallback admin endpoints. It maps Sentinel's typed errors onto HTTP
// status codes and never encodes transport concerns into the root package.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	sentinel "github.com/agentlens/sentinel"
)

// Deps are the components the HTTP surface is wired against.
type Deps struct {
	Store     sentinel.Store
	Ingestor  *sentinel.Ingestor
	Metrics   *sentinel.MetricsService
	Rels      *sentinel.RelationshipStore
	Coverage  *sentinel.HookCoverageAggregator
	SyncQ     *sentinel.SyncQueue
	Monitor   *sentinel.ConnectivityMonitor
	Cache     sentinel.Cache
	Logger    *slog.Logger
}

// NewServer builds the routed handler. Routes follow Go 1.22+ ServeMux
// method+pattern syntax, grouped the way spec §6 groups them.
func NewServer(d Deps) http.Handler {
	if d.Logger == nil {
		d.Logger = slog.New(slog.DiscardHandler)
	}
	s := &server{d: d}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /events", s.postEvent)
	mux.HandleFunc("GET /events/recent", s.recentEvents)
	mux.HandleFunc("GET /events/filter-options", s.filterOptions)
	mux.HandleFunc("GET /events/correlated", s.correlatedEvents)

	mux.HandleFunc("GET /api/agents/metrics/current", s.metricsCurrent)
	mux.HandleFunc("GET /api/agents/metrics/timeline", s.metricsTimeline)
	mux.HandleFunc("GET /api/agents/types/distribution", s.typesDistribution)
	mux.HandleFunc("GET /api/agents/tools/usage", s.toolsUsage)
	mux.HandleFunc("POST /api/agents/start", s.agentStart)
	mux.HandleFunc("POST /api/agents/complete", s.agentComplete)

	mux.HandleFunc("GET /api/hooks/coverage", s.hookCoverage)
	mux.HandleFunc("GET /api/hooks/{type}/context", s.hookDetail)
	mux.HandleFunc("GET /api/hooks/{type}/events", s.hookDetail)
	mux.HandleFunc("GET /api/hooks/{type}/metrics", s.hookDetail)
	mux.HandleFunc("GET /api/hooks/{type}/execution-context", s.hookDetail)

	mux.HandleFunc("GET /api/sessions/{id}/relationships", s.sessionRelationships)
	mux.HandleFunc("GET /api/sessions/{id}/children", s.sessionChildren)
	mux.HandleFunc("GET /api/sessions/{id}/tree", s.sessionTree)
	mux.HandleFunc("POST /api/sessions/spawn", s.sessionSpawn)
	mux.HandleFunc("POST /api/sessions/{id}/child_completed", s.childCompleted)
	mux.HandleFunc("GET /api/relationships/stats", s.relationshipStats)

	mux.HandleFunc("GET /api/fallback/status", s.fallbackStatus)
	mux.HandleFunc("GET /api/fallback/health", s.fallbackHealth)
	mux.HandleFunc("POST /api/fallback/test-redis", s.fallbackTestRedis)
	mux.HandleFunc("POST /api/fallback/sync", s.fallbackSync)
	mux.HandleFunc("GET /api/fallback/handoffs/{project}", s.getHandoff)
	mux.HandleFunc("POST /api/fallback/handoffs/{project}", s.postHandoff)

	return withRequestLogging(d.Logger, withTracing(mux))
}

type server struct {
	d Deps
}

func withRequestLogging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "elapsed", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps a Sentinel typed error to its §7 status code.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch err.(type) {
	case *sentinel.ValidationError:
		status = http.StatusBadRequest
	case *sentinel.NotFoundError:
		status = http.StatusNotFound
	case *sentinel.ConstraintViolationError:
		status = http.StatusConflict
	case *sentinel.CacheUnavailableError:
		status = http.StatusServiceUnavailable
	case *sentinel.TimeoutError:
		status = http.StatusGatewayTimeout
	case *sentinel.CycleDetectedError:
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
