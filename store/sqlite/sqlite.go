// Package sqlite implements sentinel.Store using pure-Go SQLite, the
// Durable Store (§4.A) that every write ultimately lands in.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	sentinel "github.com/agentlens/sentinel"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements sentinel.Store backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ sentinel.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections —
// the Durable Store is single-writer by design (§5).
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			panic(fmt.Sprintf("sqlite: %s: %v", pragma, err))
		}
	}
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// DB returns the underlying connection pool, for callers that need to share
// it with another component opened against the same file.
func (s *Store) DB() *sql.DB { return s.db }

// Init creates all required tables and indexes.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source_app TEXT NOT NULL,
			session_id TEXT NOT NULL,
			hook_event_type TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			payload TEXT,
			parent_session_id TEXT,
			session_depth INTEGER,
			wave_id TEXT,
			delegation_context TEXT,
			correlation_id TEXT,
			duration_ms INTEGER,
			error INTEGER NOT NULL DEFAULT 0,
			summary TEXT,
			chat TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_session ON events(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_hook_type ON events(hook_event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_events_correlation ON events(correlation_id)`,

		`CREATE TABLE IF NOT EXISTS agent_executions (
			id TEXT PRIMARY KEY,
			agent_name TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			status TEXT NOT NULL,
			start_time INTEGER NOT NULL,
			end_time INTEGER,
			duration_ms INTEGER,
			session_id TEXT NOT NULL,
			task_description TEXT,
			tools_granted TEXT,
			token_input INTEGER DEFAULT 0,
			token_output INTEGER DEFAULT 0,
			token_total INTEGER DEFAULT 0,
			token_cost_hundredths INTEGER DEFAULT 0,
			performance_metrics TEXT,
			source_app TEXT,
			progress INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_session ON agent_executions(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_agents_status ON agent_executions(status)`,

		`CREATE TABLE IF NOT EXISTS hourly_buckets (
			hour TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			count INTEGER NOT NULL DEFAULT 0,
			duration_sum_ms INTEGER NOT NULL DEFAULT 0,
			token_sum INTEGER NOT NULL DEFAULT 0,
			cost_sum_hundredths INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (hour, agent_type)
		)`,
		`CREATE TABLE IF NOT EXISTS daily_buckets (
			day TEXT PRIMARY KEY,
			count INTEGER NOT NULL DEFAULT 0,
			duration_sum_ms INTEGER NOT NULL DEFAULT 0,
			token_sum INTEGER NOT NULL DEFAULT 0,
			cost_sum_hundredths INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS tool_usage (
			tool_name TEXT NOT NULL,
			date TEXT NOT NULL,
			usage_count INTEGER NOT NULL DEFAULT 0,
			agents TEXT,
			PRIMARY KEY (tool_name, date)
		)`,

		`CREATE TABLE IF NOT EXISTS metric_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			agent_type TEXT NOT NULL,
			agent_name TEXT,
			tokens INTEGER NOT NULL DEFAULT 0,
			duration_ms INTEGER NOT NULL DEFAULT 0,
			success INTEGER NOT NULL DEFAULT 1,
			cost_hundredths INTEGER NOT NULL DEFAULT 0,
			tool_name TEXT,
			source_app TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_records_timestamp ON metric_records(timestamp)`,

		`CREATE TABLE IF NOT EXISTS timeline_points (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp INTEGER NOT NULL,
			metric_type TEXT NOT NULL,
			value REAL NOT NULL,
			agent_type TEXT,
			source_app TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_timeline_timestamp ON timeline_points(timestamp)`,

		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			source_app TEXT,
			session_type TEXT,
			parent_session_id TEXT,
			start_time INTEGER,
			end_time INTEGER,
			duration_ms INTEGER,
			status TEXT NOT NULL,
			agent_count INTEGER NOT NULL DEFAULT 0,
			token_total INTEGER NOT NULL DEFAULT 0,
			metadata TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS relationships (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			parent_session_id TEXT NOT NULL,
			child_session_id TEXT NOT NULL,
			relationship_type TEXT NOT NULL,
			spawn_reason TEXT,
			delegation_type TEXT,
			spawn_metadata TEXT,
			created_at INTEGER NOT NULL,
			completed_at INTEGER,
			depth_level INTEGER NOT NULL DEFAULT 1,
			session_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_rel_parent ON relationships(parent_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_rel_child ON relationships(child_session_id)`,

		`CREATE TABLE IF NOT EXISTS sync_ops (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT,
			score REAL,
			field TEXT,
			ttl_seconds INTEGER,
			created_at INTEGER NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			last_attempt INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_ops_status ON sync_ops(status)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_ops_key ON sync_ops(key)`,

		`CREATE TABLE IF NOT EXISTS handoffs (
			project TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			PRIMARY KEY (project, created_at)
		)`,
	}

	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			s.logger.Error("sqlite: init failed", "error", err, "duration", time.Since(start))
			return fmt.Errorf("create schema: %w", err)
		}
	}
	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// --- Events ---

// InsertEvent persists a new event and returns it with its assigned id.
func (s *Store) InsertEvent(ctx context.Context, e sentinel.NewEvent) (sentinel.Event, error) {
	start := time.Now()
	payload, err := marshalJSON(e.Payload)
	if err != nil {
		return sentinel.Event{}, fmt.Errorf("marshal payload: %w", err)
	}
	delegation, err := marshalJSON(e.DelegationContext)
	if err != nil {
		return sentinel.Event{}, fmt.Errorf("marshal delegation_context: %w", err)
	}
	chat, err := marshalJSON(e.Chat)
	if err != nil {
		return sentinel.Event{}, fmt.Errorf("marshal chat: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (source_app, session_id, hook_event_type, timestamp, payload, parent_session_id, session_depth, wave_id, delegation_context, correlation_id, duration_ms, error, summary, chat)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.SourceApp, e.SessionID, string(e.HookEventType), e.Timestamp, payload, e.ParentSessionID, e.SessionDepth, e.WaveID, delegation, e.CorrelationID, e.DurationMS, boolToInt(e.Error), e.Summary, chat,
	)
	if err != nil {
		s.logger.Error("sqlite: insert event failed", "error", err, "duration", time.Since(start))
		return sentinel.Event{}, fmt.Errorf("insert event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return sentinel.Event{}, fmt.Errorf("insert event: last insert id: %w", err)
	}

	s.logger.Debug("sqlite: insert event ok", "id", id, "session_id", e.SessionID, "hook_event_type", e.HookEventType, "duration", time.Since(start))
	return sentinel.Event{
		ID: id, SourceApp: e.SourceApp, SessionID: e.SessionID, HookEventType: e.HookEventType,
		Timestamp: e.Timestamp, Payload: e.Payload, ParentSessionID: e.ParentSessionID,
		SessionDepth: e.SessionDepth, WaveID: e.WaveID, DelegationContext: e.DelegationContext,
		CorrelationID: e.CorrelationID, DurationMS: e.DurationMS, Error: e.Error, Summary: e.Summary, Chat: e.Chat,
	}, nil
}

const eventColumns = `id, source_app, session_id, hook_event_type, timestamp, payload, parent_session_id, session_depth, wave_id, delegation_context, correlation_id, duration_ms, error, summary, chat`

func scanEvent(row interface{ Scan(...any) error }) (sentinel.Event, error) {
	var e sentinel.Event
	var payload, delegation, chat sql.NullString
	var hookType string
	var errInt int
	if err := row.Scan(&e.ID, &e.SourceApp, &e.SessionID, &hookType, &e.Timestamp, &payload, &e.ParentSessionID, &e.SessionDepth, &e.WaveID, &delegation, &e.CorrelationID, &e.DurationMS, &errInt, &e.Summary, &chat); err != nil {
		return sentinel.Event{}, err
	}
	e.HookEventType = sentinel.HookEventType(hookType)
	e.Error = errInt != 0
	if payload.Valid {
		_ = json.Unmarshal([]byte(payload.String), &e.Payload)
	}
	if delegation.Valid {
		_ = json.Unmarshal([]byte(delegation.String), &e.DelegationContext)
	}
	if chat.Valid {
		_ = json.Unmarshal([]byte(chat.String), &e.Chat)
	}
	return e, nil
}

// RecentEvents returns the most recently inserted events, newest first.
func (s *Store) RecentEvents(ctx context.Context, limit int) ([]sentinel.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]sentinel.Event, error) {
	var out []sentinel.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// FilterOptions returns the distinct source applications and hook types
// currently present in the event log, for populating dashboard filters.
func (s *Store) FilterOptions(ctx context.Context) ([]string, []string, error) {
	apps, err := queryDistinct(ctx, s.db, `SELECT DISTINCT source_app FROM events ORDER BY source_app`)
	if err != nil {
		return nil, nil, fmt.Errorf("filter options: source apps: %w", err)
	}
	hooks, err := queryDistinct(ctx, s.db, `SELECT DISTINCT hook_event_type FROM events ORDER BY hook_event_type`)
	if err != nil {
		return nil, nil, fmt.Errorf("filter options: hook types: %w", err)
	}
	return apps, hooks, nil
}

func queryDistinct(ctx context.Context, db *sql.DB, query string) ([]string, error) {
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// CorrelatedEvents returns every event sharing correlationID, in insertion order.
func (s *Store) CorrelatedEvents(ctx context.Context, correlationID string) ([]sentinel.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE correlation_id = ? ORDER BY id ASC`, correlationID)
	if err != nil {
		return nil, fmt.Errorf("correlated events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsForSession returns a session's events, optionally filtered to the
// given hook types, in insertion order.
func (s *Store) EventsForSession(ctx context.Context, sessionID string, types ...sentinel.HookEventType) ([]sentinel.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE session_id = ?`
	args := []any{sessionID}
	if len(types) > 0 {
		query += ` AND hook_event_type IN (` + placeholders(len(types)) + `)`
		for _, t := range types {
			args = append(args, string(t))
		}
	}
	query += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("events for session: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// EventsSince returns every event with timestamp >= since, oldest first.
func (s *Store) EventsSince(ctx context.Context, since int64) ([]sentinel.Event, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+eventColumns+` FROM events WHERE timestamp >= ? ORDER BY timestamp ASC`, since)
	if err != nil {
		return nil, fmt.Errorf("events since: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// --- Agent executions ---

// InsertAgentExecution persists a newly started agent execution.
func (s *Store) InsertAgentExecution(ctx context.Context, a sentinel.AgentExecution) error {
	tools, err := marshalJSON(a.ToolsGranted)
	if err != nil {
		return fmt.Errorf("marshal tools_granted: %w", err)
	}
	perf, err := marshalJSON(a.PerformanceMetrics)
	if err != nil {
		return fmt.Errorf("marshal performance_metrics: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO agent_executions (id, agent_name, agent_type, status, start_time, session_id, task_description, tools_granted, performance_metrics, source_app, progress)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.AgentName, a.AgentType, string(a.Status), a.StartTime, a.SessionID, a.TaskDescription, tools, perf, a.SourceApp, a.Progress,
	)
	if err != nil {
		return fmt.Errorf("insert agent execution: %w", err)
	}
	return nil
}

// CompleteAgentExecution finalizes an agent execution's terminal fields.
func (s *Store) CompleteAgentExecution(ctx context.Context, id string, status sentinel.AgentStatus, endTime, durationMS int64, usage sentinel.TokenUsage, progress int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agent_executions SET status = ?, end_time = ?, duration_ms = ?, token_input = ?, token_output = ?, token_total = ?, token_cost_hundredths = ?, progress = ? WHERE id = ?`,
		string(status), endTime, durationMS, usage.Input, usage.Output, usage.Total, usage.EstimatedCostHundredths, progress, id,
	)
	if err != nil {
		return fmt.Errorf("complete agent execution: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete agent execution: rows affected: %w", err)
	}
	if n == 0 {
		return &sentinel.NotFoundError{Kind: "agent_execution", ID: id}
	}
	return nil
}

const agentColumns = `id, agent_name, agent_type, status, start_time, end_time, duration_ms, session_id, task_description, tools_granted, token_input, token_output, token_total, token_cost_hundredths, performance_metrics, source_app, progress`

func scanAgent(row interface{ Scan(...any) error }) (sentinel.AgentExecution, error) {
	var a sentinel.AgentExecution
	var status string
	var endTime, durationMS sql.NullInt64
	var tools, perf sql.NullString
	if err := row.Scan(&a.ID, &a.AgentName, &a.AgentType, &status, &a.StartTime, &endTime, &durationMS, &a.SessionID, &a.TaskDescription, &tools, &a.TokenUsage.Input, &a.TokenUsage.Output, &a.TokenUsage.Total, &a.TokenUsage.EstimatedCostHundredths, &perf, &a.SourceApp, &a.Progress); err != nil {
		return sentinel.AgentExecution{}, err
	}
	a.Status = sentinel.AgentStatus(status)
	a.EndTime = endTime.Int64
	a.DurationMS = durationMS.Int64
	if tools.Valid {
		_ = json.Unmarshal([]byte(tools.String), &a.ToolsGranted)
	}
	if perf.Valid {
		_ = json.Unmarshal([]byte(perf.String), &a.PerformanceMetrics)
	}
	return a, nil
}

// GetAgentExecution fetches a single agent execution by id.
func (s *Store) GetAgentExecution(ctx context.Context, id string) (sentinel.AgentExecution, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+agentColumns+` FROM agent_executions WHERE id = ?`, id)
	a, err := scanAgent(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return sentinel.AgentExecution{}, &sentinel.NotFoundError{Kind: "agent_execution", ID: id}
		}
		return sentinel.AgentExecution{}, fmt.Errorf("get agent execution: %w", err)
	}
	return a, nil
}

// ActiveAgentExecutions returns every agent execution currently active.
func (s *Store) ActiveAgentExecutions(ctx context.Context) ([]sentinel.AgentExecution, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+agentColumns+` FROM agent_executions WHERE status = ? ORDER BY start_time ASC`, string(sentinel.AgentActive))
	if err != nil {
		return nil, fmt.Errorf("active agent executions: %w", err)
	}
	defer rows.Close()
	var out []sentinel.AgentExecution
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan agent execution: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// --- Aggregates ---

// UpsertHourlyBucket adds count/durationMS/tokens/costHundredths onto the
// (hour, agentType) row, creating it if absent.
func (s *Store) UpsertHourlyBucket(ctx context.Context, hour, agentType string, count int64, durationMS, tokens, costHundredths int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hourly_buckets (hour, agent_type, count, duration_sum_ms, token_sum, cost_sum_hundredths)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(hour, agent_type) DO UPDATE SET
		   count = count + excluded.count,
		   duration_sum_ms = duration_sum_ms + excluded.duration_sum_ms,
		   token_sum = token_sum + excluded.token_sum,
		   cost_sum_hundredths = cost_sum_hundredths + excluded.cost_sum_hundredths`,
		hour, agentType, count, durationMS, tokens, costHundredths,
	)
	if err != nil {
		return fmt.Errorf("upsert hourly bucket: %w", err)
	}
	return nil
}

// UpsertDailyBucket adds count/durationMS/tokens/costHundredths onto day.
func (s *Store) UpsertDailyBucket(ctx context.Context, day string, count int64, durationMS, tokens, costHundredths int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_buckets (day, count, duration_sum_ms, token_sum, cost_sum_hundredths)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(day) DO UPDATE SET
		   count = count + excluded.count,
		   duration_sum_ms = duration_sum_ms + excluded.duration_sum_ms,
		   token_sum = token_sum + excluded.token_sum,
		   cost_sum_hundredths = cost_sum_hundredths + excluded.cost_sum_hundredths`,
		day, count, durationMS, tokens, costHundredths,
	)
	if err != nil {
		return fmt.Errorf("upsert daily bucket: %w", err)
	}
	return nil
}

// IncrementToolUsage bumps a tool's usage count for date and records agentID
// in its distinct-agents set.
func (s *Store) IncrementToolUsage(ctx context.Context, tool, date, agentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("increment tool usage: begin tx: %w", err)
	}
	defer tx.Rollback()

	var agentsJSON sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT agents FROM tool_usage WHERE tool_name = ? AND date = ?`, tool, date).Scan(&agentsJSON)
	agents := map[string]struct{}{}
	if err == nil && agentsJSON.Valid {
		var list []string
		_ = json.Unmarshal([]byte(agentsJSON.String), &list)
		for _, a := range list {
			agents[a] = struct{}{}
		}
	} else if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("increment tool usage: lookup: %w", err)
	}
	if agentID != "" {
		agents[agentID] = struct{}{}
	}
	list := make([]string, 0, len(agents))
	for a := range agents {
		list = append(list, a)
	}
	encoded, _ := json.Marshal(list)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO tool_usage (tool_name, date, usage_count, agents) VALUES (?, ?, 1, ?)
		 ON CONFLICT(tool_name, date) DO UPDATE SET usage_count = usage_count + 1, agents = excluded.agents`,
		tool, date, string(encoded),
	)
	if err != nil {
		return fmt.Errorf("increment tool usage: upsert: %w", err)
	}
	return tx.Commit()
}

// HourlyBuckets returns hourly aggregates whose hour lies between the hours
// of start and end, both inclusive, when compared lexicographically (hour
// strings are YYYY-MM-DDTHH).
func (s *Store) HourlyBuckets(ctx context.Context, start, end int64) ([]sentinel.HourlyBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hour, agent_type, count, duration_sum_ms, token_sum, cost_sum_hundredths FROM hourly_buckets WHERE hour >= ? AND hour <= ? ORDER BY hour ASC`,
		hourKey(start), hourKey(end))
	if err != nil {
		return nil, fmt.Errorf("hourly buckets: %w", err)
	}
	defer rows.Close()
	var out []sentinel.HourlyBucket
	for rows.Next() {
		var b sentinel.HourlyBucket
		if err := rows.Scan(&b.Hour, &b.AgentType, &b.Count, &b.DurationSumMS, &b.TokenSum, &b.CostSumHundredths); err != nil {
			return nil, fmt.Errorf("scan hourly bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// DailyBuckets returns daily aggregates whose day lies between the days of
// start and end, both inclusive.
func (s *Store) DailyBuckets(ctx context.Context, start, end int64) ([]sentinel.DailyBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, count, duration_sum_ms, token_sum, cost_sum_hundredths FROM daily_buckets WHERE day >= ? AND day <= ? ORDER BY day ASC`,
		dayKey(start), dayKey(end))
	if err != nil {
		return nil, fmt.Errorf("daily buckets: %w", err)
	}
	defer rows.Close()
	var out []sentinel.DailyBucket
	for rows.Next() {
		var b sentinel.DailyBucket
		if err := rows.Scan(&b.Day, &b.Count, &b.DurationSumMS, &b.TokenSum, &b.CostSumHundredths); err != nil {
			return nil, fmt.Errorf("scan daily bucket: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// ToolUsage returns tool usage rows whose date lies between the days of start
// and end, both inclusive.
func (s *Store) ToolUsage(ctx context.Context, start, end int64) ([]sentinel.ToolUsageBucket, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tool_name, date, usage_count, agents FROM tool_usage WHERE date >= ? AND date <= ? ORDER BY date ASC, tool_name ASC`,
		dayKey(start), dayKey(end))
	if err != nil {
		return nil, fmt.Errorf("tool usage: %w", err)
	}
	defer rows.Close()
	var out []sentinel.ToolUsageBucket
	for rows.Next() {
		var b sentinel.ToolUsageBucket
		var agentsJSON sql.NullString
		if err := rows.Scan(&b.ToolName, &b.Date, &b.UsageCount, &agentsJSON); err != nil {
			return nil, fmt.Errorf("scan tool usage: %w", err)
		}
		b.UniqueAgents = map[string]struct{}{}
		if agentsJSON.Valid {
			var list []string
			_ = json.Unmarshal([]byte(agentsJSON.String), &list)
			for _, a := range list {
				b.UniqueAgents[a] = struct{}{}
			}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// --- Metric records + timeline ---

// InsertMetricRecord persists one agent-terminal metric row.
func (s *Store) InsertMetricRecord(ctx context.Context, r sentinel.AgentMetricRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO metric_records (timestamp, session_id, agent_type, agent_name, tokens, duration_ms, success, cost_hundredths, tool_name, source_app)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.Timestamp, r.SessionID, r.AgentType, r.AgentName, r.Tokens, r.DurationMS, boolToInt(r.Success), r.EstimatedCostHundredths, r.ToolName, r.SourceApp,
	)
	if err != nil {
		return fmt.Errorf("insert metric record: %w", err)
	}
	return nil
}

// MetricRecords returns metric records with timestamp in [start, end).
func (s *Store) MetricRecords(ctx context.Context, start, end int64) ([]sentinel.AgentMetricRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, session_id, agent_type, agent_name, tokens, duration_ms, success, cost_hundredths, tool_name, source_app
		 FROM metric_records WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("metric records: %w", err)
	}
	defer rows.Close()
	var out []sentinel.AgentMetricRecord
	for rows.Next() {
		var r sentinel.AgentMetricRecord
		var success int
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.SessionID, &r.AgentType, &r.AgentName, &r.Tokens, &r.DurationMS, &success, &r.EstimatedCostHundredths, &r.ToolName, &r.SourceApp); err != nil {
			return nil, fmt.Errorf("scan metric record: %w", err)
		}
		r.Success = success != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// InsertTimelinePoint persists one time-series sample.
func (s *Store) InsertTimelinePoint(ctx context.Context, p sentinel.TimelinePoint) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO timeline_points (timestamp, metric_type, value, agent_type, source_app) VALUES (?, ?, ?, ?, ?)`,
		p.Timestamp, string(p.MetricType), p.Value, p.AgentType, p.SourceApp,
	)
	if err != nil {
		return fmt.Errorf("insert timeline point: %w", err)
	}
	return nil
}

// TimelinePoints returns timeline points with timestamp in [start, end).
func (s *Store) TimelinePoints(ctx context.Context, start, end int64) ([]sentinel.TimelinePoint, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT timestamp, metric_type, value, agent_type, source_app FROM timeline_points WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("timeline points: %w", err)
	}
	defer rows.Close()
	var out []sentinel.TimelinePoint
	for rows.Next() {
		var p sentinel.TimelinePoint
		var metricType string
		if err := rows.Scan(&p.Timestamp, &metricType, &p.Value, &p.AgentType, &p.SourceApp); err != nil {
			return nil, fmt.Errorf("scan timeline point: %w", err)
		}
		p.MetricType = sentinel.TimelineMetricType(metricType)
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Sessions ---

// UpsertSession writes or replaces the session projection.
func (s *Store) UpsertSession(ctx context.Context, sess sentinel.Session) error {
	meta, err := marshalJSON(sess.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, source_app, session_type, parent_session_id, start_time, end_time, duration_ms, status, agent_count, token_total, metadata)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   source_app = excluded.source_app, session_type = excluded.session_type,
		   parent_session_id = excluded.parent_session_id, end_time = excluded.end_time,
		   duration_ms = excluded.duration_ms, status = excluded.status,
		   agent_count = excluded.agent_count, token_total = excluded.token_total, metadata = excluded.metadata`,
		sess.ID, sess.SourceApp, sess.SessionType, sess.ParentSessionID, sess.StartTime, sess.EndTime, sess.DurationMS, string(sess.Status), sess.AgentCount, sess.TokenTotal, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetSession fetches a session projection by id.
func (s *Store) GetSession(ctx context.Context, id string) (sentinel.Session, error) {
	var sess sentinel.Session
	var status string
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source_app, session_type, parent_session_id, start_time, end_time, duration_ms, status, agent_count, token_total, metadata FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.SourceApp, &sess.SessionType, &sess.ParentSessionID, &sess.StartTime, &sess.EndTime, &sess.DurationMS, &status, &sess.AgentCount, &sess.TokenTotal, &meta)
	if err != nil {
		if err == sql.ErrNoRows {
			return sentinel.Session{}, &sentinel.NotFoundError{Kind: "session", ID: id}
		}
		return sentinel.Session{}, fmt.Errorf("get session: %w", err)
	}
	sess.Status = sentinel.SessionStatus(status)
	if meta.Valid {
		_ = json.Unmarshal([]byte(meta.String), &sess.Metadata)
	}
	return sess, nil
}

// --- Relationships ---

// InsertRelationship writes edge and returns it with its assigned id.
func (s *Store) InsertRelationship(ctx context.Context, r sentinel.SessionRelationship) (sentinel.SessionRelationship, error) {
	meta, err := marshalJSON(r.SpawnMetadata)
	if err != nil {
		return sentinel.SessionRelationship{}, fmt.Errorf("marshal spawn_metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO relationships (parent_session_id, child_session_id, relationship_type, spawn_reason, delegation_type, spawn_metadata, created_at, depth_level, session_path)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ParentSessionID, r.ChildSessionID, string(r.RelationshipType), r.SpawnReason, string(r.DelegationType), meta, r.CreatedAt, r.DepthLevel, r.SessionPath,
	)
	if err != nil {
		return sentinel.SessionRelationship{}, fmt.Errorf("insert relationship: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return sentinel.SessionRelationship{}, fmt.Errorf("insert relationship: last insert id: %w", err)
	}
	r.ID = id
	return r, nil
}

// CompleteRelationship sets completed_at on a parent/child edge.
func (s *Store) CompleteRelationship(ctx context.Context, parent, child string, ts int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE relationships SET completed_at = ? WHERE parent_session_id = ? AND child_session_id = ?`, ts, parent, child)
	if err != nil {
		return fmt.Errorf("complete relationship: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("complete relationship: rows affected: %w", err)
	}
	if n == 0 {
		return &sentinel.NotFoundError{Kind: "relationship", ID: parent + "->" + child}
	}
	return nil
}

const relColumns = `id, parent_session_id, child_session_id, relationship_type, spawn_reason, delegation_type, spawn_metadata, created_at, completed_at, depth_level, session_path`

func scanRelationship(row interface{ Scan(...any) error }) (sentinel.SessionRelationship, error) {
	var r sentinel.SessionRelationship
	var relType, delegationType string
	var spawnReason, sessionPath sql.NullString
	var completedAt sql.NullInt64
	var meta sql.NullString
	if err := row.Scan(&r.ID, &r.ParentSessionID, &r.ChildSessionID, &relType, &spawnReason, &delegationType, &meta, &r.CreatedAt, &completedAt, &r.DepthLevel, &sessionPath); err != nil {
		return sentinel.SessionRelationship{}, err
	}
	r.RelationshipType = sentinel.RelationshipType(relType)
	r.DelegationType = sentinel.DelegationType(delegationType)
	r.SpawnReason = spawnReason.String
	r.SessionPath = sessionPath.String
	r.CompletedAt = completedAt.Int64
	if meta.Valid {
		_ = json.Unmarshal([]byte(meta.String), &r.SpawnMetadata)
	}
	return r, nil
}

// RelationshipsByParent returns a parent's children in creation order.
func (s *Store) RelationshipsByParent(ctx context.Context, parent string) ([]sentinel.SessionRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE parent_session_id = ? ORDER BY created_at ASC, id ASC`, parent)
	if err != nil {
		return nil, fmt.Errorf("relationships by parent: %w", err)
	}
	defer rows.Close()
	var out []sentinel.SessionRelationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RelationshipByChild returns the most recently created edge whose child is
// child.
func (s *Store) RelationshipByChild(ctx context.Context, child string) (sentinel.SessionRelationship, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE child_session_id = ? ORDER BY created_at DESC LIMIT 1`, child)
	r, err := scanRelationship(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return sentinel.SessionRelationship{}, &sentinel.NotFoundError{Kind: "relationship", ID: child}
		}
		return sentinel.SessionRelationship{}, fmt.Errorf("relationship by child: %w", err)
	}
	return r, nil
}

// AllRelationships returns every edge created in [start, end].
func (s *Store) AllRelationships(ctx context.Context, start, end int64) ([]sentinel.SessionRelationship, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+relColumns+` FROM relationships WHERE created_at >= ? AND created_at <= ? ORDER BY created_at ASC`, start, end)
	if err != nil {
		return nil, fmt.Errorf("all relationships: %w", err)
	}
	defer rows.Close()
	var out []sentinel.SessionRelationship
	for rows.Next() {
		r, err := scanRelationship(rows)
		if err != nil {
			return nil, fmt.Errorf("scan relationship: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- Sync queue ---

// EnqueueSyncOp persists a deferred cache mutation and returns its id.
func (s *Store) EnqueueSyncOp(ctx context.Context, op sentinel.SyncOperation) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_ops (kind, key, value, score, field, ttl_seconds, created_at, status, attempts, last_attempt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(op.Kind), op.Key, op.Value, op.Score, op.Field, op.TTLSeconds, op.CreatedAt, string(op.Status), op.Attempts, op.LastAttempt,
	)
	if err != nil {
		return 0, fmt.Errorf("enqueue sync op: %w", err)
	}
	return res.LastInsertId()
}

// PendingSyncOps returns up to limit pending sync operations, oldest first.
func (s *Store) PendingSyncOps(ctx context.Context, limit int) ([]sentinel.SyncOperation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, key, value, score, field, ttl_seconds, created_at, status, attempts, last_attempt
		 FROM sync_ops WHERE status = ? ORDER BY created_at ASC, id ASC LIMIT ?`, string(sentinel.SyncPending), limit)
	if err != nil {
		return nil, fmt.Errorf("pending sync ops: %w", err)
	}
	defer rows.Close()
	var out []sentinel.SyncOperation
	for rows.Next() {
		var op sentinel.SyncOperation
		var kind, status string
		var value, field sql.NullString
		var score sql.NullFloat64
		var ttl, lastAttempt sql.NullInt64
		if err := rows.Scan(&op.ID, &kind, &op.Key, &value, &score, &field, &ttl, &op.CreatedAt, &status, &op.Attempts, &lastAttempt); err != nil {
			return nil, fmt.Errorf("scan sync op: %w", err)
		}
		op.Kind = sentinel.SyncOpKind(kind)
		op.Status = sentinel.SyncOpStatus(status)
		op.Value = value.String
		op.Field = field.String
		op.Score = score.Float64
		op.TTLSeconds = ttl.Int64
		op.LastAttempt = lastAttempt.Int64
		out = append(out, op)
	}
	return out, rows.Err()
}

// MarkSyncOpSynced marks a sync op as successfully replayed.
func (s *Store) MarkSyncOpSynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_ops SET status = ? WHERE id = ?`, string(sentinel.SyncSynced), id)
	if err != nil {
		return fmt.Errorf("mark sync op synced: %w", err)
	}
	return nil
}

// MarkSyncOpRetry records a failed replay attempt, leaving the op pending.
func (s *Store) MarkSyncOpRetry(ctx context.Context, id int64, attempts int, lastAttempt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_ops SET attempts = ?, last_attempt = ? WHERE id = ?`, attempts, lastAttempt, id)
	if err != nil {
		return fmt.Errorf("mark sync op retry: %w", err)
	}
	return nil
}

// MarkSyncOpFailed marks a sync op as permanently failed after max attempts.
func (s *Store) MarkSyncOpFailed(ctx context.Context, id int64, attempts int, lastAttempt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sync_ops SET status = ?, attempts = ?, last_attempt = ? WHERE id = ?`, string(sentinel.SyncFailedStatus), attempts, lastAttempt, id)
	if err != nil {
		return fmt.Errorf("mark sync op failed: %w", err)
	}
	return nil
}

// CountPendingSyncOps reports the current backlog depth.
func (s *Store) CountPendingSyncOps(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_ops WHERE status = ?`, string(sentinel.SyncPending)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending sync ops: %w", err)
	}
	return n, nil
}

// --- Handoffs ---

// SaveHandoff appends a new handoff blob for a project.
func (s *Store) SaveHandoff(ctx context.Context, h sentinel.HandoffBlob) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO handoffs (project, content, created_at) VALUES (?, ?, ?)`, h.Project, h.Content, h.CreatedAt)
	if err != nil {
		return fmt.Errorf("save handoff: %w", err)
	}
	return nil
}

// LatestHandoff returns the most recently saved handoff for project.
func (s *Store) LatestHandoff(ctx context.Context, project string) (sentinel.HandoffBlob, error) {
	var h sentinel.HandoffBlob
	err := s.db.QueryRowContext(ctx,
		`SELECT project, content, created_at FROM handoffs WHERE project = ? ORDER BY created_at DESC LIMIT 1`, project,
	).Scan(&h.Project, &h.Content, &h.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return sentinel.HandoffBlob{}, &sentinel.NotFoundError{Kind: "handoff", ID: project}
		}
		return sentinel.HandoffBlob{}, fmt.Errorf("latest handoff: %w", err)
	}
	return h, nil
}

// --- Retention ---

// Sweep deletes events, metric records, timeline points, and hourly/daily
// aggregates older than cutoffMillis; synced sync-queue rows older than one
// day; and handoff rows older than cutoffMillis except each project's latest
// (§4.A "Retention sweep").
func (s *Store) Sweep(ctx context.Context, cutoffMillis int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sweep: begin tx: %w", err)
	}
	defer tx.Rollback()

	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM events WHERE timestamp < ?`, []any{cutoffMillis}},
		{`DELETE FROM metric_records WHERE timestamp < ?`, []any{cutoffMillis}},
		{`DELETE FROM timeline_points WHERE timestamp < ?`, []any{cutoffMillis}},
		{`DELETE FROM hourly_buckets WHERE hour < ?`, []any{hourKey(cutoffMillis)}},
		{`DELETE FROM daily_buckets WHERE day < ?`, []any{dayKey(cutoffMillis)}},
		{`DELETE FROM sync_ops WHERE status = ? AND created_at < ?`, []any{string(sentinel.SyncSynced), cutoffMillis - int64(24*time.Hour/time.Millisecond)}},
		{`DELETE FROM handoffs WHERE created_at < ? AND created_at NOT IN (SELECT MAX(created_at) FROM handoffs GROUP BY project)`, []any{cutoffMillis}},
	}
	for _, st := range stmts {
		if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("sweep: %w", err)
		}
	}
	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalJSON(v any) (string, error) {
	if v == nil {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

func hourKey(tsMillis int64) string { return time.UnixMilli(tsMillis).UTC().Format("2006-01-02T15") }
func dayKey(tsMillis int64) string  { return time.UnixMilli(tsMillis).UTC().Format("2006-01-02") }
