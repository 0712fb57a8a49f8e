package sentinel

import (
	"context"
	"log/slog"
)

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithIngestorLogger attaches a structured logger.
func WithIngestorLogger(l *slog.Logger) IngestorOption {
	return func(in *Ingestor) { in.logger = l }
}

// WithIngestorTracer attaches a Tracer for ingestion spans.
func WithIngestorTracer(t Tracer) IngestorOption {
	return func(in *Ingestor) { in.tracer = t }
}

// Ingestor is the Event Ingestor (§4.F): the single entry point a hook
// client's event passes through. It persists the event, records metrics,
// derives session-relationship and agent-lifecycle side effects, and
// broadcasts the result plus a refreshed hook-coverage snapshot.
type Ingestor struct {
	store    Store
	metrics  *MetricsService
	rels     *RelationshipStore
	bus      *Bus
	coverage *HookCoverageAggregator
	logger   *slog.Logger
	tracer   Tracer
}

// NewIngestor wires the components an ingested event flows through.
func NewIngestor(store Store, metrics *MetricsService, rels *RelationshipStore, bus *Bus, coverage *HookCoverageAggregator, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:    store,
		metrics:  metrics,
		rels:     rels,
		bus:      bus,
		coverage: coverage,
		logger:   nopLogger,
	}
	for _, o := range opts {
		o(in)
	}
	return in
}

// Ingest accepts a candidate event and runs it through the full pipeline
// described in §4.F: persist, record metrics, derive lifecycle edges,
// broadcast.
func (in *Ingestor) Ingest(ctx context.Context, e NewEvent) (Event, error) {
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	if in.tracer != nil {
		var span Span
		ctx, span = in.tracer.Start(ctx, "ingest.event", StringAttr("session_id", e.SessionID), StringAttr("hook_event_type", string(e.HookEventType)))
		defer span.End()
	}

	saved, err := in.store.InsertEvent(ctx, e)
	if err != nil {
		return Event{}, &PersistenceError{Op: "InsertEvent", Err: err}
	}

	if err := in.metrics.RecordMetric(ctx, saved); err != nil {
		return Event{}, err
	}

	if err := in.deriveLifecycleEdges(ctx, &saved); err != nil {
		in.logger.Error("ingest: lifecycle derivation failed", "session_id", saved.SessionID, "hook_event_type", saved.HookEventType, "error", err)
	}

	in.bus.BroadcastEvent(saved)
	if snap, err := in.coverage.Snapshot(ctx); err != nil {
		in.logger.Error("ingest: hook coverage snapshot failed", "error", err)
	} else {
		in.bus.BroadcastHookCoverage(snap)
	}

	return saved, nil
}

// deriveLifecycleEdges implements §4.F step 3: session relationships on
// SessionStart/SessionEnd, agent lifecycle on SubagentStart/SubagentStop.
func (in *Ingestor) deriveLifecycleEdges(ctx context.Context, e *Event) error {
	switch e.HookEventType {
	case HookSessionStart:
		if e.ParentSessionID == "" {
			return nil
		}
		return in.insertSessionRelationship(ctx, e)

	case HookSessionEnd:
		if e.ParentSessionID == "" {
			return nil
		}
		if err := in.rels.CompleteRelationship(ctx, e.ParentSessionID, e.SessionID, e.Timestamp); err != nil {
			return err
		}
		return nil

	case HookSubagentStart:
		return in.markAgentStartedFromEvent(ctx, e)

	case HookSubagentStop:
		return in.markAgentCompletedFromEvent(ctx, e)
	}
	return nil
}

func (in *Ingestor) insertSessionRelationship(ctx context.Context, e *Event) error {
	relType := RelationParentChild
	if e.WaveID != "" {
		relType = RelationWaveMember
	}
	depth := e.SessionDepth
	if depth == 0 {
		depth = 1
	}

	parentPath := e.ParentSessionID
	if parent, err := in.rels.store.RelationshipByChild(ctx, e.ParentSessionID); err == nil {
		parentPath = parent.SessionPath
	}

	spawnReason, _ := e.Payload["spawn_reason"].(string)
	delegationType, _ := e.Payload["delegation_type"].(string)

	_, err := in.rels.InsertRelationship(ctx, SessionRelationship{
		ParentSessionID:  e.ParentSessionID,
		ChildSessionID:   e.SessionID,
		RelationshipType: relType,
		SpawnReason:      spawnReason,
		DelegationType:   DelegationType(delegationType),
		SpawnMetadata:    e.DelegationContext,
		CreatedAt:        e.Timestamp,
		DepthLevel:       depth,
		SessionPath:      parentPath + "." + e.SessionID,
	})
	return err
}

// markAgentStartedFromEvent derives a mark_agent_started call from a
// SubagentStart event's payload and stashes the assigned agent id back onto
// the event's payload for correlation, per §4.F step 3.
func (in *Ingestor) markAgentStartedFromEvent(ctx context.Context, e *Event) error {
	agentName, _ := e.Payload["agent_name"].(string)
	agentType, _ := e.Payload["agent_type"].(string)
	taskDescription, _ := e.Payload["task_description"].(string)
	tools := stringSliceFromPayload(e.Payload, "tools_granted")

	id, err := in.metrics.MarkAgentStarted(ctx, AgentStartRequest{
		AgentName:       agentName,
		AgentType:       agentType,
		SessionID:       e.SessionID,
		TaskDescription: taskDescription,
		ToolsGranted:    tools,
		SourceApp:       e.SourceApp,
		Timestamp:       e.Timestamp,
	})
	if err != nil {
		return err
	}
	e.Payload["agent_id"] = id
	return nil
}

// markAgentCompletedFromEvent derives a mark_agent_completed call from a
// SubagentStop event, recovering tools used from the session's
// PreToolUse/PostToolUse events when the payload omits them (§4.F step 3).
func (in *Ingestor) markAgentCompletedFromEvent(ctx context.Context, e *Event) error {
	agentID, _ := e.Payload["agent_id"].(string)
	if agentID == "" {
		agentName, _ := e.Payload["agent_name"].(string)
		recovered, err := in.activeAgentIDForSession(ctx, e.SessionID, agentName)
		if err != nil {
			in.logger.Warn("ingest: failed to recover agent_id from active executions", "session_id", e.SessionID, "agent_name", agentName, "error", err)
		}
		agentID = recovered
	}
	if agentID == "" {
		return &ValidationError{Field: "agent_id", Message: "required to complete a subagent"}
	}

	result, hasResult := e.Payload["result"]
	success := !e.Error
	if hasResult {
		if b, ok := result.(bool); ok && !b {
			success = false
		}
	}

	tools := stringSliceFromPayload(e.Payload, "tools_used")
	if len(tools) == 0 {
		recovered, err := in.toolsFromSessionHistory(ctx, e.SessionID)
		if err != nil {
			in.logger.Warn("ingest: failed to recover tools used from session history", "session_id", e.SessionID, "error", err)
		} else {
			tools = recovered
		}
	}

	usage := TokenUsage{
		Input:                   intFromPayload(e.Payload, "input_tokens"),
		Output:                  intFromPayload(e.Payload, "output_tokens"),
		Total:                   intFromPayload(e.Payload, "tokens_used"),
		EstimatedCostHundredths: intFromPayload(e.Payload, "estimated_cost_hundredths_cent"),
	}

	return in.metrics.MarkAgentCompleted(ctx, AgentCompleteRequest{
		AgentID:    agentID,
		Success:    success,
		DurationMS: e.DurationMS,
		TokenUsage: usage,
		ToolsUsed:  tools,
		Timestamp:  e.Timestamp,
	})
}

// activeAgentIDForSession recovers the id of the still-running Agent
// Execution matching sessionID and agentName, for a SubagentStop payload
// that omits agent_id (§4.F step 3).
func (in *Ingestor) activeAgentIDForSession(ctx context.Context, sessionID, agentName string) (string, error) {
	active, err := in.store.ActiveAgentExecutions(ctx)
	if err != nil {
		return "", &PersistenceError{Op: "ActiveAgentExecutions", Err: err}
	}
	for _, a := range active {
		if a.SessionID == sessionID && (agentName == "" || a.AgentName == agentName) {
			return a.ID, nil
		}
	}
	return "", nil
}

// toolsFromSessionHistory recovers the distinct tool names invoked during a
// session by scanning its PreToolUse/PostToolUse events, for sessions whose
// SubagentStop payload did not report them directly.
func (in *Ingestor) toolsFromSessionHistory(ctx context.Context, sessionID string) ([]string, error) {
	events, err := in.store.EventsForSession(ctx, sessionID, HookPreToolUse, HookPostToolUse)
	if err != nil {
		return nil, &PersistenceError{Op: "EventsForSession", Err: err}
	}
	seen := make(map[string]bool)
	var tools []string
	for _, e := range events {
		name, _ := e.Payload["tool_name"].(string)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		tools = append(tools, name)
	}
	return tools, nil
}

func stringSliceFromPayload(payload map[string]any, key string) []string {
	raw, ok := payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
