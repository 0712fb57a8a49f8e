package sentinel

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// MetricsServiceOption configures a MetricsService.
type MetricsServiceOption func(*MetricsService)

// WithMetricsLogger attaches a structured logger.
func WithMetricsLogger(l *slog.Logger) MetricsServiceOption {
	return func(s *MetricsService) { s.logger = l }
}

// WithMetricsTracer attaches a Tracer for write/read spans.
func WithMetricsTracer(t Tracer) MetricsServiceOption {
	return func(s *MetricsService) { s.tracer = t }
}

// WithMetricsInstruments attaches counters/histograms.
func WithMetricsInstruments(inst *Instruments) MetricsServiceOption {
	return func(s *MetricsService) { s.inst = inst }
}

// WithWarmupInterval overrides the minimum spacing between cache warmups.
// Default 5 minutes.
func WithWarmupInterval(d time.Duration) MetricsServiceOption {
	return func(s *MetricsService) { s.warmupInterval = d }
}

// MetricsService is the Unified Metrics Service (§4.E): a single read/write
// façade over the Durable Store and the best-effort Cache. Writes always
// land in the Store first; the Cache mirror is attempted afterward (retried
// with backoff under the circuit breaker) and falls back to the Deferred
// Sync Queue on failure, so a cache outage never fails the caller.
//
// Reads are answered from the Store. The Cache mirror exists for the
// dashboard's own direct reads (the hourly/daily hashes and sorted sets
// SyncCacheFromDatabase warms) rather than for these aggregate queries,
// which need exact range semantics the Store's indexes give for free; see
// DESIGN.md for the tradeoff.
type MetricsService struct {
	store   Store
	cache   Cache
	breaker *CircuitBreaker
	syncQ   *SyncQueue
	logger  *slog.Logger
	tracer  Tracer
	inst    *Instruments

	warmupInterval time.Duration
	warmupMu       sync.Mutex
	lastWarmup     time.Time
}

// NewMetricsService wires store, cache, breaker, and syncQ together.
func NewMetricsService(store Store, cache Cache, breaker *CircuitBreaker, syncQ *SyncQueue, opts ...MetricsServiceOption) *MetricsService {
	s := &MetricsService{
		store:          store,
		cache:          cache,
		breaker:        breaker,
		syncQ:          syncQ,
		logger:         nopLogger,
		warmupInterval: 5 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecordMetric persists a metric record and durable aggregates for e, then
// best-effort mirrors the aggregate deltas into the Cache (§4.E write path).
func (s *MetricsService) RecordMetric(ctx context.Context, e Event) error {
	if s.tracer != nil {
		var span Span
		ctx, span = s.tracer.Start(ctx, "metrics.record", StringAttr("session_id", e.SessionID), StringAttr("hook_event_type", string(e.HookEventType)))
		defer span.End()
	}

	rec := s.buildMetricRecord(e)
	if err := s.store.InsertMetricRecord(ctx, rec); err != nil {
		return &PersistenceError{Op: "InsertMetricRecord", Err: err}
	}

	hour := hourBucket(rec.Timestamp)
	day := dayBucket(rec.Timestamp)
	if err := s.store.UpsertHourlyBucket(ctx, hour, rec.AgentType, 1, rec.DurationMS, rec.Tokens, rec.EstimatedCostHundredths); err != nil {
		return &PersistenceError{Op: "UpsertHourlyBucket", Err: err}
	}
	if err := s.store.UpsertDailyBucket(ctx, day, 1, rec.DurationMS, rec.Tokens, rec.EstimatedCostHundredths); err != nil {
		return &PersistenceError{Op: "UpsertDailyBucket", Err: err}
	}
	if rec.ToolName != "" {
		if err := s.store.IncrementToolUsage(ctx, rec.ToolName, day, rec.AgentName); err != nil {
			return &PersistenceError{Op: "IncrementToolUsage", Err: err}
		}
	}

	for _, p := range timelinePointsFor(rec) {
		if err := s.store.InsertTimelinePoint(ctx, p); err != nil {
			return &PersistenceError{Op: "InsertTimelinePoint", Err: err}
		}
	}

	s.mirrorAggregates(ctx, rec, hour, day)

	if s.inst != nil {
		s.inst.EventsIngested.Add(ctx, 1)
	}
	return nil
}

// mirrorAggregates attempts the cache-side counters described in §4.E step
// 2; each failed attempt is enqueued to the Deferred Sync Queue instead of
// failing the call.
func (s *MetricsService) mirrorAggregates(ctx context.Context, rec AgentMetricRecord, hour, day string) {
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncHIncrBy, Key: keyHourly(hour), Field: rec.AgentType + ":count", Score: 1})
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncHIncrBy, Key: keyDaily(day), Field: "count", Score: 1})
	if rec.Tokens != 0 {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncHIncrBy, Key: keyHourly(hour), Field: rec.AgentType + ":tokens", Score: float64(rec.Tokens)})
	}
	if rec.ToolName != "" {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncZIncrBy, Key: keyToolUsage(day), Value: rec.ToolName, Score: 1})
	}
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncDel, Key: keyDistributionSnapshot(hour)})
}

func (s *MetricsService) applyOrQueue(ctx context.Context, op SyncOperation) {
	_, err := Execute(ctx, s.breaker, string(op.Kind), func(ctx context.Context) (struct{}, error) {
		return retryWithBackoff(ctx, DefaultCacheBackoff(), func() (struct{}, error) {
			return struct{}{}, ApplySyncOp(ctx, s.cache, op)
		})
	})
	if err == nil {
		return
	}
	s.logger.Debug("metrics: cache mirror failed, deferring", "kind", op.Kind, "key", op.Key, "error", err)
	if qerr := s.syncQ.Enqueue(ctx, op); qerr != nil {
		s.logger.Error("metrics: failed to enqueue deferred sync op", "error", qerr)
	}
}

// MarkAgentStarted records a new active Agent Execution (§4.E).
func (s *MetricsService) MarkAgentStarted(ctx context.Context, req AgentStartRequest) (string, error) {
	if req.SessionID == "" {
		return "", &ValidationError{Field: "session_id", Message: "required"}
	}
	now := req.Timestamp
	if now == 0 {
		now = NowMillis()
	}
	id := NewAgentID(time.UnixMilli(now))

	agentType := req.AgentType
	if agentType == "" {
		agentType = ClassifyAgentType(req.AgentName, nil)
	}

	exec := AgentExecution{
		ID:              id,
		AgentName:       req.AgentName,
		AgentType:       agentType,
		Status:          AgentActive,
		StartTime:       now,
		SessionID:       req.SessionID,
		TaskDescription: req.TaskDescription,
		ToolsGranted:    req.ToolsGranted,
		SourceApp:       req.SourceApp,
		Progress:        0,
	}
	if err := s.store.InsertAgentExecution(ctx, exec); err != nil {
		return "", &PersistenceError{Op: "InsertAgentExecution", Err: err}
	}

	s.applyOrQueue(ctx, SyncOperation{Kind: SyncHSet, Key: keyAgentActive(id), Field: "agent_name", Value: req.AgentName})
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncSAdd, Key: keyAgentsActiveSet, Value: id})
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncExpire, Key: keyAgentActive(id), TTLSeconds: int64(TTLActiveAgents.Seconds())})

	if err := s.RecordMetric(ctx, lifecycleEvent(exec, HookSubagentStart, now)); err != nil {
		s.logger.Error("metrics: record_metric failed for agent start", "agent_id", id, "error", err)
	}
	return id, nil
}

// MarkAgentCompleted finalizes an Agent Execution (§4.E).
func (s *MetricsService) MarkAgentCompleted(ctx context.Context, req AgentCompleteRequest) error {
	status := AgentComplete
	if !req.Success {
		status = AgentFailed
	}
	now := req.Timestamp
	if now == 0 {
		now = NowMillis()
	}

	if err := s.store.CompleteAgentExecution(ctx, req.AgentID, status, now, req.DurationMS, req.TokenUsage, 100); err != nil {
		return &PersistenceError{Op: "CompleteAgentExecution", Err: err}
	}
	exec, err := s.store.GetAgentExecution(ctx, req.AgentID)
	if err != nil {
		return &PersistenceError{Op: "GetAgentExecution", Err: err}
	}

	s.applyOrQueue(ctx, SyncOperation{Kind: SyncSRem, Key: keyAgentsActiveSet, Value: req.AgentID})
	s.applyOrQueue(ctx, SyncOperation{Kind: SyncDel, Key: keyAgentActive(req.AgentID)})

	if err := s.RecordMetric(ctx, lifecycleEvent(exec, HookSubagentStop, now)); err != nil {
		s.logger.Error("metrics: record_metric failed for agent complete", "agent_id", req.AgentID, "error", err)
	}
	return nil
}

// HourlyBuckets returns the hourly aggregate rows in [start, end] from the
// Store (§4.E read path).
func (s *MetricsService) HourlyBuckets(ctx context.Context, start, end int64) ([]HourlyBucket, error) {
	buckets, err := s.store.HourlyBuckets(ctx, start, end)
	if err != nil {
		return nil, &PersistenceError{Op: "HourlyBuckets", Err: err}
	}
	return buckets, nil
}

// DailyBuckets mirrors HourlyBuckets for the daily aggregate.
func (s *MetricsService) DailyBuckets(ctx context.Context, start, end int64) ([]DailyBucket, error) {
	buckets, err := s.store.DailyBuckets(ctx, start, end)
	if err != nil {
		return nil, &PersistenceError{Op: "DailyBuckets", Err: err}
	}
	return buckets, nil
}

// ToolUsage mirrors HourlyBuckets for the tool usage aggregate.
func (s *MetricsService) ToolUsage(ctx context.Context, start, end int64) ([]ToolUsageBucket, error) {
	buckets, err := s.store.ToolUsage(ctx, start, end)
	if err != nil {
		return nil, &PersistenceError{Op: "ToolUsage", Err: err}
	}
	return buckets, nil
}

// SyncCacheFromDatabase rebuilds the aggregate cache keys and the active-agent
// set/hash from the Store (§4.E "Cache warming"). Rate-limited to once per
// warmupInterval; concurrent calls while a warmup is in flight are no-ops.
func (s *MetricsService) SyncCacheFromDatabase(ctx context.Context) error {
	if !s.warmupMu.TryLock() {
		s.logger.Debug("metrics: warmup already in flight, skipping")
		return nil
	}
	defer s.warmupMu.Unlock()

	if !s.lastWarmup.IsZero() && time.Since(s.lastWarmup) < s.warmupInterval {
		s.logger.Debug("metrics: warmup rate-limited", "since_last", time.Since(s.lastWarmup))
		return nil
	}
	s.lastWarmup = time.Now()

	now := time.UnixMilli(NowMillis())
	hourStart := now.Add(-24 * time.Hour).UnixMilli()
	dayStart := now.Add(-30 * 24 * time.Hour).UnixMilli()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	hourly, err := s.store.HourlyBuckets(ctx, hourStart, now.UnixMilli())
	record(err)
	for _, b := range hourly {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncHSet, Key: keyHourly(b.Hour), Field: b.AgentType + ":count", Value: strconv.FormatInt(b.Count, 10)})
	}

	daily, err := s.store.DailyBuckets(ctx, dayStart, now.UnixMilli())
	record(err)
	for _, b := range daily {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncHSet, Key: keyDaily(b.Day), Field: "count", Value: strconv.FormatInt(b.Count, 10)})
	}

	tools, err := s.store.ToolUsage(ctx, dayStart, now.UnixMilli())
	record(err)
	for _, b := range tools {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncZAdd, Key: keyToolUsage(b.Date), Value: b.ToolName, Score: float64(b.UsageCount)})
	}

	active, err := s.store.ActiveAgentExecutions(ctx)
	record(err)
	for _, a := range active {
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncSAdd, Key: keyAgentsActiveSet, Value: a.ID})
		s.applyOrQueue(ctx, SyncOperation{Kind: SyncHSet, Key: keyAgentActive(a.ID), Field: "agent_name", Value: a.AgentName})
	}

	s.logger.Info("metrics: cache warmup complete", "hourly", len(hourly), "daily", len(daily), "tools", len(tools), "active_agents", len(active))
	return firstErr
}

func (s *MetricsService) buildMetricRecord(e Event) AgentMetricRecord {
	agentType, _ := e.Payload["agent_type"].(string)
	if agentType == "" {
		agentName, _ := e.Payload["agent_name"].(string)
		agentType = ClassifyAgentType(agentName, e.Payload)
	}
	agentName, _ := e.Payload["agent_name"].(string)
	tokens := intFromPayload(e.Payload, "tokens")
	costHundredths := intFromPayload(e.Payload, "estimated_cost_hundredths_cent")
	toolName, _ := e.Payload["tool_name"].(string)

	return AgentMetricRecord{
		Timestamp:               e.Timestamp,
		SessionID:               e.SessionID,
		AgentType:               agentType,
		AgentName:                agentName,
		Tokens:                  tokens,
		DurationMS:              e.DurationMS,
		Success:                 !e.Error,
		EstimatedCostHundredths: costHundredths,
		ToolName:                toolName,
		SourceApp:               e.SourceApp,
	}
}

func intFromPayload(payload map[string]any, key string) int64 {
	switch v := payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func timelinePointsFor(rec AgentMetricRecord) []TimelinePoint {
	points := []TimelinePoint{
		{Timestamp: rec.Timestamp, MetricType: TimelineExecutions, Value: 1, AgentType: rec.AgentType, SourceApp: rec.SourceApp},
	}
	if rec.Tokens != 0 {
		points = append(points, TimelinePoint{Timestamp: rec.Timestamp, MetricType: TimelineTokens, Value: float64(rec.Tokens), AgentType: rec.AgentType, SourceApp: rec.SourceApp})
	}
	if rec.DurationMS != 0 {
		points = append(points, TimelinePoint{Timestamp: rec.Timestamp, MetricType: TimelineDuration, Value: float64(rec.DurationMS), AgentType: rec.AgentType, SourceApp: rec.SourceApp})
	}
	if rec.EstimatedCostHundredths != 0 {
		points = append(points, TimelinePoint{Timestamp: rec.Timestamp, MetricType: TimelineCost, Value: float64(rec.EstimatedCostHundredths), AgentType: rec.AgentType, SourceApp: rec.SourceApp})
	}
	return points
}

// lifecycleEvent synthesizes an Event carrying the lifecycle fields of exec,
// as described in §4.E ("Both operations also invoke record_metric using a
// synthetic event with the lifecycle fields").
func lifecycleEvent(exec AgentExecution, hook HookEventType, ts int64) Event {
	return Event{
		SourceApp:     exec.SourceApp,
		SessionID:     exec.SessionID,
		HookEventType: hook,
		Timestamp:     ts,
		DurationMS:    exec.DurationMS,
		Error:         exec.Status == AgentFailed,
		Payload: map[string]any{
			"agent_id":                        exec.ID,
			"agent_name":                       exec.AgentName,
			"agent_type":                       exec.AgentType,
			"tokens":                           exec.TokenUsage.Total,
			"estimated_cost_hundredths_cent":   exec.TokenUsage.EstimatedCostHundredths,
		},
	}
}

func hourBucket(tsMillis int64) string {
	return time.UnixMilli(tsMillis).UTC().Format("2006-01-02T15")
}

func dayBucket(tsMillis int64) string {
	return time.UnixMilli(tsMillis).UTC().Format("2006-01-02")
}

func keyHourly(hour string) string              { return fmt.Sprintf("metrics:hourly:%s", hour) }
func keyDaily(day string) string                { return fmt.Sprintf("metrics:daily:%s", day) }
func keyToolUsage(date string) string           { return fmt.Sprintf("metrics:tools:%s", date) }
func keyDistributionSnapshot(hour string) string { return fmt.Sprintf("metrics:distribution:%s", hour) }
func keyAgentActive(id string) string           { return fmt.Sprintf("agent:active:%s", id) }

const keyAgentsActiveSet = "agents:active"
