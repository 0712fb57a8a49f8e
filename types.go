package sentinel

// HookEventType enumerates the hook lifecycle checkpoints a client may emit.
type HookEventType string

const (
	HookSessionStart     HookEventType = "SessionStart"
	HookSessionEnd       HookEventType = "SessionEnd"
	HookUserPromptSubmit HookEventType = "UserPromptSubmit"
	HookPreToolUse       HookEventType = "PreToolUse"
	HookPostToolUse      HookEventType = "PostToolUse"
	HookSubagentStart    HookEventType = "SubagentStart"
	HookSubagentStop     HookEventType = "SubagentStop"
	HookNotification     HookEventType = "Notification"
	HookPreCompact       HookEventType = "PreCompact"
	HookStop             HookEventType = "Stop"
)

// KnownHookTypes lists every hook type the Hook Coverage Aggregator (§4.I)
// reports on, in a stable order.
var KnownHookTypes = []HookEventType{
	HookSessionStart, HookSessionEnd, HookUserPromptSubmit, HookPreToolUse,
	HookPostToolUse, HookSubagentStart, HookSubagentStop, HookNotification,
	HookPreCompact, HookStop,
}

// Event is the ingested hook record (§3 "Event").
type Event struct {
	ID                int64          `json:"id"`
	SourceApp         string         `json:"source_app"`
	SessionID         string         `json:"session_id"`
	HookEventType     HookEventType  `json:"hook_event_type"`
	Timestamp         int64          `json:"timestamp"`
	Payload           map[string]any `json:"payload"`
	ParentSessionID   string         `json:"parent_session_id,omitempty"`
	SessionDepth      int            `json:"session_depth,omitempty"`
	WaveID            string         `json:"wave_id,omitempty"`
	DelegationContext map[string]any `json:"delegation_context,omitempty"`
	CorrelationID     string         `json:"correlation_id,omitempty"`
	DurationMS        int64          `json:"duration,omitempty"`
	Error             bool           `json:"error,omitempty"`
	Summary           string         `json:"summary,omitempty"`
	Chat              map[string]any `json:"chat,omitempty"`
}

// NewEvent is the set of fields accepted from a client on ingestion, prior
// to the durable store assigning an ID.
type NewEvent struct {
	SourceApp         string
	SessionID         string
	HookEventType     HookEventType
	Timestamp         int64
	Payload           map[string]any
	ParentSessionID   string
	SessionDepth      int
	WaveID            string
	DelegationContext map[string]any
	CorrelationID     string
	DurationMS        int64
	Error             bool
	Summary           string
	Chat              map[string]any
}

// Validate checks the required fields named in spec.md §4.F and §6: source
// application, session, type, and payload.
func (e NewEvent) Validate() error {
	if e.SourceApp == "" {
		return &ValidationError{Field: "source_app", Message: "required"}
	}
	if e.SessionID == "" {
		return &ValidationError{Field: "session_id", Message: "required"}
	}
	if e.HookEventType == "" {
		return &ValidationError{Field: "hook_event_type", Message: "required"}
	}
	if e.Payload == nil {
		return &ValidationError{Field: "payload", Message: "required"}
	}
	return nil
}

// AgentStatus is the lifecycle state of an Agent Execution.
type AgentStatus string

const (
	AgentActive   AgentStatus = "active"
	AgentComplete AgentStatus = "complete"
	AgentFailed   AgentStatus = "failed"
)

// AgentExecution is one run of a subagent (§3 "Agent Execution").
type AgentExecution struct {
	ID                 string         `json:"id"`
	AgentName          string         `json:"agent_name"`
	AgentType          string         `json:"agent_type"`
	Status             AgentStatus    `json:"status"`
	StartTime          int64          `json:"start_time"`
	EndTime             int64         `json:"end_time,omitempty"`
	DurationMS          int64         `json:"duration_ms,omitempty"`
	SessionID           string        `json:"session_id"`
	TaskDescription      string       `json:"task_description,omitempty"`
	ToolsGranted         []string     `json:"tools_granted,omitempty"`
	TokenUsage           TokenUsage   `json:"token_usage"`
	PerformanceMetrics   map[string]any `json:"performance_metrics,omitempty"`
	SourceApp            string       `json:"source_app"`
	Progress             int          `json:"progress"`
}

// TokenUsage holds input/output/total token counts plus estimated cost.
// EstimatedCostCents is stored in hundredths-of-a-cent integer units,
// matching Agent Metric Record (§3) to avoid floating point drift in sums.
type TokenUsage struct {
	Input               int64 `json:"input"`
	Output               int64 `json:"output"`
	Total                int64 `json:"total"`
	EstimatedCostHundredths int64 `json:"estimated_cost_hundredths_cent"`
}

// AgentStartRequest is the payload for mark_agent_started (§4.E).
type AgentStartRequest struct {
	AgentName      string
	AgentType      string
	SessionID      string
	TaskDescription string
	ToolsGranted   []string
	SourceApp      string
	Timestamp      int64
}

// AgentCompleteRequest is the payload for mark_agent_completed (§4.E).
type AgentCompleteRequest struct {
	AgentID      string
	Success      bool
	DurationMS   int64
	TokenUsage   TokenUsage
	ToolsUsed    []string
	Timestamp    int64
}

// HourlyBucket is the hourly aggregate keyed by (hour, agent_type) (§3).
type HourlyBucket struct {
	Hour          string `json:"hour"` // YYYY-MM-DDTHH
	AgentType     string `json:"agent_type"`
	Count         int64  `json:"count"`
	DurationSumMS int64  `json:"duration_sum_ms"`
	TokenSum      int64  `json:"token_sum"`
	CostSumHundredths int64 `json:"cost_sum_hundredths_cent"`
}

// DailyBucket is the daily aggregate across all agent types (§3).
type DailyBucket struct {
	Day           string `json:"day"` // YYYY-MM-DD
	Count         int64  `json:"count"`
	DurationSumMS int64  `json:"duration_sum_ms"`
	TokenSum      int64  `json:"token_sum"`
	CostSumHundredths int64 `json:"cost_sum_hundredths_cent"`
}

// ToolUsageBucket is keyed by (tool_name, date) (§3).
type ToolUsageBucket struct {
	ToolName    string `json:"tool_name"`
	Date        string `json:"date"` // YYYY-MM-DD
	UsageCount  int64  `json:"usage_count"`
	UniqueAgents map[string]struct{} `json:"-"`
}

// AgentMetricRecord is one row per agent-terminal event (§3).
type AgentMetricRecord struct {
	ID                int64  `json:"id"`
	Timestamp         int64  `json:"timestamp"`
	SessionID         string `json:"session_id"`
	AgentType         string `json:"agent_type"`
	AgentName         string `json:"agent_name"`
	Tokens            int64  `json:"tokens"`
	DurationMS        int64  `json:"duration_ms"`
	Success           bool   `json:"success"`
	EstimatedCostHundredths int64 `json:"estimated_cost_hundredths_cent"`
	ToolName          string `json:"tool_name,omitempty"`
	SourceApp         string `json:"source_app"`
}

// TimelineMetricType enumerates the measures a Timeline Point may carry.
type TimelineMetricType string

const (
	TimelineExecutions TimelineMetricType = "executions"
	TimelineTokens     TimelineMetricType = "tokens"
	TimelineDuration   TimelineMetricType = "duration"
	TimelineCost       TimelineMetricType = "cost"
)

// TimelinePoint is one time-series sample (§3). Only non-zero values are
// written.
type TimelinePoint struct {
	Timestamp  int64              `json:"timestamp"`
	MetricType TimelineMetricType `json:"metric_type"`
	Value      float64            `json:"value"`
	AgentType  string             `json:"agent_type,omitempty"`
	SourceApp  string             `json:"source_app,omitempty"`
}

// SessionStatus is the lifecycle state of a persisted Session projection.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// Session is the persisted per-session projection maintained from Event
// insertions (§3 "Session").
type Session struct {
	ID              string         `json:"id"`
	SourceApp       string         `json:"source_app"`
	SessionType     string         `json:"session_type,omitempty"`
	ParentSessionID string         `json:"parent_session_id,omitempty"`
	StartTime       int64          `json:"start_time"`
	EndTime         int64          `json:"end_time,omitempty"`
	DurationMS      int64          `json:"duration_ms,omitempty"`
	Status          SessionStatus  `json:"status"`
	AgentCount      int64          `json:"agent_count"`
	TokenTotal      int64          `json:"token_total"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// RelationshipType distinguishes a direct parent/child edge from a
// wave-member edge (§3).
type RelationshipType string

const (
	RelationParentChild RelationshipType = "parent/child"
	RelationWaveMember  RelationshipType = "wave_member"
)

// DelegationType classifies how a child session's context was seeded.
type DelegationType string

const (
	DelegationIsolated DelegationType = "isolated"
	DelegationShared   DelegationType = "shared"
	DelegationOther    DelegationType = "other"
)

// SessionRelationship is a directed parent/child session edge (§3).
type SessionRelationship struct {
	ID               int64            `json:"id"`
	ParentSessionID  string           `json:"parent_session_id"`
	ChildSessionID   string           `json:"child_session_id"`
	RelationshipType RelationshipType `json:"relationship_type"`
	SpawnReason      string           `json:"spawn_reason,omitempty"`
	DelegationType   DelegationType   `json:"delegation_type,omitempty"`
	SpawnMetadata    map[string]any   `json:"spawn_metadata,omitempty"`
	CreatedAt        int64            `json:"created_at"`
	CompletedAt      int64            `json:"completed_at,omitempty"`
	DepthLevel       int              `json:"depth_level"`
	SessionPath      string           `json:"session_path"`
}

// SyncOpKind enumerates the cache mutation kinds the Deferred Sync Queue
// can replay (§3 "Sync Operation").
type SyncOpKind string

const (
	SyncSet        SyncOpKind = "set"
	SyncSetEX      SyncOpKind = "setex"
	SyncDel        SyncOpKind = "del"
	SyncHSet       SyncOpKind = "hset"
	SyncHIncrBy    SyncOpKind = "hincrby"
	SyncHIncrByFloat SyncOpKind = "hincrbyfloat"
	SyncSAdd       SyncOpKind = "sadd"
	SyncSRem       SyncOpKind = "srem"
	SyncZAdd       SyncOpKind = "zadd"
	SyncZIncrBy    SyncOpKind = "zincrby"
	SyncExpire     SyncOpKind = "expire"
	SyncLPush      SyncOpKind = "lpush"
	SyncLTrim      SyncOpKind = "ltrim"
)

// naturallyIdempotentKinds are safe to replay more than once without
// over-counting (§4.D).
var naturallyIdempotentKinds = map[SyncOpKind]bool{
	SyncSet: true, SyncSetEX: true, SyncHSet: true, SyncExpire: true,
	SyncDel: true, SyncLTrim: true,
}

// IsNaturallyIdempotent reports whether replaying k more than once leaves
// the cache in the same state as replaying it once.
func (k SyncOpKind) IsNaturallyIdempotent() bool {
	return naturallyIdempotentKinds[k]
}

// SyncOpStatus is the lifecycle state of a pending cache mutation.
type SyncOpStatus string

const (
	SyncPending SyncOpStatus = "pending"
	SyncSynced  SyncOpStatus = "synced"
	SyncFailedStatus SyncOpStatus = "failed"
)

// SyncOperation is a pending cache mutation durably logged by the Deferred
// Sync Queue (§3, §4.D).
type SyncOperation struct {
	ID          int64        `json:"id"`
	Kind        SyncOpKind   `json:"kind"`
	Key         string       `json:"key"`
	Value       string       `json:"value,omitempty"`
	Score       float64      `json:"score,omitempty"`
	Field       string       `json:"field,omitempty"`
	TTLSeconds  int64        `json:"ttl_seconds,omitempty"`
	CreatedAt   int64        `json:"created_at"`
	Status      SyncOpStatus `json:"status"`
	Attempts    int          `json:"attempts"`
	LastAttempt int64        `json:"last_attempt,omitempty"`
}

// HandoffBlob is per-project content saved to a content file plus a
// "latest" pointer, optionally mirrored to the cache (§3).
type HandoffBlob struct {
	Project   string `json:"project"`
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"`
}
