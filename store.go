package sentinel

import "context"

// Store abstracts the Durable Store (§4.A): authoritative, single-writer
// persistence for events, agent executions, aggregates, timeline points,
// sessions, relationships, the sync queue, and handoff blobs. Implementations
// map I/O failures to PersistenceError and constraint violations to
// ConstraintViolationError.
type Store interface {
	// --- Events ---
	InsertEvent(ctx context.Context, e NewEvent) (Event, error)
	RecentEvents(ctx context.Context, limit int) ([]Event, error)
	FilterOptions(ctx context.Context) (sourceApps []string, hookTypes []string, err error)
	CorrelatedEvents(ctx context.Context, correlationID string) ([]Event, error)
	EventsForSession(ctx context.Context, sessionID string, types ...HookEventType) ([]Event, error)
	EventsSince(ctx context.Context, since int64) ([]Event, error)

	// --- Agent executions ---
	InsertAgentExecution(ctx context.Context, a AgentExecution) error
	CompleteAgentExecution(ctx context.Context, id string, status AgentStatus, endTime, durationMS int64, usage TokenUsage, progress int) error
	GetAgentExecution(ctx context.Context, id string) (AgentExecution, error)
	ActiveAgentExecutions(ctx context.Context) ([]AgentExecution, error)

	// --- Aggregates ---
	UpsertHourlyBucket(ctx context.Context, hour, agentType string, count int64, durationMS, tokens, costHundredths int64) error
	UpsertDailyBucket(ctx context.Context, day string, count int64, durationMS, tokens, costHundredths int64) error
	IncrementToolUsage(ctx context.Context, tool, date, agentID string) error
	HourlyBuckets(ctx context.Context, start, end int64) ([]HourlyBucket, error)
	DailyBuckets(ctx context.Context, start, end int64) ([]DailyBucket, error)
	ToolUsage(ctx context.Context, start, end int64) ([]ToolUsageBucket, error)

	// --- Metric records + timeline ---
	InsertMetricRecord(ctx context.Context, r AgentMetricRecord) error
	MetricRecords(ctx context.Context, start, end int64) ([]AgentMetricRecord, error)
	InsertTimelinePoint(ctx context.Context, p TimelinePoint) error
	TimelinePoints(ctx context.Context, start, end int64) ([]TimelinePoint, error)

	// --- Sessions ---
	UpsertSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, id string) (Session, error)

	// --- Relationships ---
	InsertRelationship(ctx context.Context, r SessionRelationship) (SessionRelationship, error)
	CompleteRelationship(ctx context.Context, parent, child string, ts int64) error
	RelationshipsByParent(ctx context.Context, parent string) ([]SessionRelationship, error)
	RelationshipByChild(ctx context.Context, child string) (SessionRelationship, error)
	AllRelationships(ctx context.Context, start, end int64) ([]SessionRelationship, error)

	// --- Sync queue ---
	EnqueueSyncOp(ctx context.Context, op SyncOperation) (int64, error)
	PendingSyncOps(ctx context.Context, limit int) ([]SyncOperation, error)
	MarkSyncOpSynced(ctx context.Context, id int64) error
	MarkSyncOpRetry(ctx context.Context, id int64, attempts int, lastAttempt int64) error
	MarkSyncOpFailed(ctx context.Context, id int64, attempts int, lastAttempt int64) error
	CountPendingSyncOps(ctx context.Context) (int64, error)

	// --- Handoffs ---
	SaveHandoff(ctx context.Context, h HandoffBlob) error
	LatestHandoff(ctx context.Context, project string) (HandoffBlob, error)

	// --- Retention ---
	// Sweep deletes events, metric records, timeline points, and hourly/daily
	// aggregates older than cutoffMillis; synced sync-queue rows older than
	// one day; and handoff files older than cutoffMillis except "latest"
	// (§4.A "Retention sweep").
	Sweep(ctx context.Context, cutoffMillis int64) error

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
