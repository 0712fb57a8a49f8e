package sentinel

import (
	"context"
	"sort"
	"sync"
)

// fakeStore is a complete in-memory Store used across this package's unit
// tests, standing in for store/sqlite in isolation from a real database.
type fakeStore struct {
	mu sync.Mutex

	events       []Event
	nextEventID  int64
	agents       map[string]AgentExecution
	hourly       map[string]HourlyBucket // key: hour|agentType
	daily        map[string]DailyBucket  // key: day
	toolUsage    map[string]ToolUsageBucket // key: tool|date
	metricRecs   []AgentMetricRecord
	nextMetricID int64
	timeline     []TimelinePoint
	sessions     map[string]Session
	rels         []SessionRelationship
	nextRelID    int64
	syncOps      map[int64]SyncOperation
	nextSyncID   int64
	handoffs     map[string][]HandoffBlob
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		agents:     make(map[string]AgentExecution),
		hourly:     make(map[string]HourlyBucket),
		daily:      make(map[string]DailyBucket),
		toolUsage:  make(map[string]ToolUsageBucket),
		sessions:   make(map[string]Session),
		syncOps:    make(map[int64]SyncOperation),
		handoffs:   make(map[string][]HandoffBlob),
	}
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                   { return nil }

func (s *fakeStore) InsertEvent(ctx context.Context, e NewEvent) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextEventID++
	ev := Event{
		ID: s.nextEventID, SourceApp: e.SourceApp, SessionID: e.SessionID,
		HookEventType: e.HookEventType, Timestamp: e.Timestamp, Payload: e.Payload,
		ParentSessionID: e.ParentSessionID, SessionDepth: e.SessionDepth, WaveID: e.WaveID,
		DelegationContext: e.DelegationContext, CorrelationID: e.CorrelationID,
		DurationMS: e.DurationMS, Error: e.Error, Summary: e.Summary, Chat: e.Chat,
	}
	s.events = append(s.events, ev)
	return ev, nil
}

func (s *fakeStore) RecentEvents(ctx context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.events)
	if n > limit {
		n = limit
	}
	out := make([]Event, n)
	copy(out, s.events[len(s.events)-n:])
	return out, nil
}

func (s *fakeStore) FilterOptions(ctx context.Context) ([]string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	appsSeen := map[string]bool{}
	hooksSeen := map[string]bool{}
	var apps, hooks []string
	for _, e := range s.events {
		if !appsSeen[e.SourceApp] {
			appsSeen[e.SourceApp] = true
			apps = append(apps, e.SourceApp)
		}
		if !hooksSeen[string(e.HookEventType)] {
			hooksSeen[string(e.HookEventType)] = true
			hooks = append(hooks, string(e.HookEventType))
		}
	}
	return apps, hooks, nil
}

func (s *fakeStore) CorrelatedEvents(ctx context.Context, correlationID string) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.CorrelationID == correlationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) EventsForSession(ctx context.Context, sessionID string, types ...HookEventType) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := map[HookEventType]bool{}
	for _, t := range types {
		wanted[t] = true
	}
	var out []Event
	for _, e := range s.events {
		if e.SessionID != sessionID {
			continue
		}
		if len(wanted) > 0 && !wanted[e.HookEventType] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *fakeStore) EventsSince(ctx context.Context, since int64) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, e := range s.events {
		if e.Timestamp >= since {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertAgentExecution(ctx context.Context, a AgentExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[a.ID] = a
	return nil
}

func (s *fakeStore) CompleteAgentExecution(ctx context.Context, id string, status AgentStatus, endTime, durationMS int64, usage TokenUsage, progress int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return &NotFoundError{Kind: "agent_execution", ID: id}
	}
	a.Status = status
	a.EndTime = endTime
	a.DurationMS = durationMS
	a.TokenUsage = usage
	a.Progress = progress
	s.agents[id] = a
	return nil
}

func (s *fakeStore) GetAgentExecution(ctx context.Context, id string) (AgentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return AgentExecution{}, &NotFoundError{Kind: "agent_execution", ID: id}
	}
	return a, nil
}

func (s *fakeStore) ActiveAgentExecutions(ctx context.Context) ([]AgentExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AgentExecution
	for _, a := range s.agents {
		if a.Status == AgentActive {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (s *fakeStore) UpsertHourlyBucket(ctx context.Context, hour, agentType string, count int64, durationMS, tokens, costHundredths int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := hour + "|" + agentType
	b := s.hourly[k]
	b.Hour, b.AgentType = hour, agentType
	b.Count += count
	b.DurationSumMS += durationMS
	b.TokenSum += tokens
	b.CostSumHundredths += costHundredths
	s.hourly[k] = b
	return nil
}

func (s *fakeStore) UpsertDailyBucket(ctx context.Context, day string, count int64, durationMS, tokens, costHundredths int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.daily[day]
	b.Day = day
	b.Count += count
	b.DurationSumMS += durationMS
	b.TokenSum += tokens
	b.CostSumHundredths += costHundredths
	s.daily[day] = b
	return nil
}

func (s *fakeStore) IncrementToolUsage(ctx context.Context, tool, date, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := tool + "|" + date
	b := s.toolUsage[k]
	b.ToolName, b.Date = tool, date
	b.UsageCount++
	if b.UniqueAgents == nil {
		b.UniqueAgents = make(map[string]struct{})
	}
	b.UniqueAgents[agentID] = struct{}{}
	s.toolUsage[k] = b
	return nil
}

func (s *fakeStore) HourlyBuckets(ctx context.Context, start, end int64) ([]HourlyBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HourlyBucket, 0, len(s.hourly))
	for _, b := range s.hourly {
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) DailyBuckets(ctx context.Context, start, end int64) ([]DailyBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]DailyBucket, 0, len(s.daily))
	for _, b := range s.daily {
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) ToolUsage(ctx context.Context, start, end int64) ([]ToolUsageBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ToolUsageBucket, 0, len(s.toolUsage))
	for _, b := range s.toolUsage {
		out = append(out, b)
	}
	return out, nil
}

func (s *fakeStore) InsertMetricRecord(ctx context.Context, r AgentMetricRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMetricID++
	r.ID = s.nextMetricID
	s.metricRecs = append(s.metricRecs, r)
	return nil
}

func (s *fakeStore) MetricRecords(ctx context.Context, start, end int64) ([]AgentMetricRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AgentMetricRecord
	for _, r := range s.metricRecs {
		if r.Timestamp >= start && r.Timestamp <= end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) InsertTimelinePoint(ctx context.Context, p TimelinePoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeline = append(s.timeline, p)
	return nil
}

func (s *fakeStore) TimelinePoints(ctx context.Context, start, end int64) ([]TimelinePoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []TimelinePoint
	for _, p := range s.timeline {
		if p.Timestamp >= start && p.Timestamp <= end {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakeStore) UpsertSession(ctx context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return Session{}, &NotFoundError{Kind: "session", ID: id}
	}
	return sess, nil
}

func (s *fakeStore) InsertRelationship(ctx context.Context, r SessionRelationship) (SessionRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextRelID++
	r.ID = s.nextRelID
	s.rels = append(s.rels, r)
	return r, nil
}

func (s *fakeStore) CompleteRelationship(ctx context.Context, parent, child string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.rels {
		if r.ParentSessionID == parent && r.ChildSessionID == child {
			s.rels[i].CompletedAt = ts
			return nil
		}
	}
	return &NotFoundError{Kind: "relationship", ID: parent + "->" + child}
}

func (s *fakeStore) RelationshipsByParent(ctx context.Context, parent string) ([]SessionRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionRelationship
	for _, r := range s.rels {
		if r.ParentSessionID == parent {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) RelationshipByChild(ctx context.Context, child string) (SessionRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.rels {
		if r.ChildSessionID == child {
			return r, nil
		}
	}
	return SessionRelationship{}, &NotFoundError{Kind: "relationship", ID: child}
}

func (s *fakeStore) AllRelationships(ctx context.Context, start, end int64) ([]SessionRelationship, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []SessionRelationship
	for _, r := range s.rels {
		if r.CreatedAt >= start && r.CreatedAt <= end {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) EnqueueSyncOp(ctx context.Context, op SyncOperation) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSyncID++
	op.ID = s.nextSyncID
	s.syncOps[op.ID] = op
	return op.ID, nil
}

func (s *fakeStore) PendingSyncOps(ctx context.Context, limit int) ([]SyncOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []int64
	for id, op := range s.syncOps {
		if op.Status == SyncPending {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	if len(ids) > limit {
		ids = ids[:limit]
	}
	out := make([]SyncOperation, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.syncOps[id])
	}
	return out, nil
}

func (s *fakeStore) MarkSyncOpSynced(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.syncOps[id]
	op.Status = SyncSynced
	s.syncOps[id] = op
	return nil
}

func (s *fakeStore) MarkSyncOpRetry(ctx context.Context, id int64, attempts int, lastAttempt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.syncOps[id]
	op.Attempts = attempts
	op.LastAttempt = lastAttempt
	s.syncOps[id] = op
	return nil
}

func (s *fakeStore) MarkSyncOpFailed(ctx context.Context, id int64, attempts int, lastAttempt int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := s.syncOps[id]
	op.Status = SyncFailedStatus
	op.Attempts = attempts
	op.LastAttempt = lastAttempt
	s.syncOps[id] = op
	return nil
}

func (s *fakeStore) CountPendingSyncOps(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, op := range s.syncOps {
		if op.Status == SyncPending {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) SaveHandoff(ctx context.Context, h HandoffBlob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handoffs[h.Project] = append(s.handoffs[h.Project], h)
	return nil
}

func (s *fakeStore) LatestHandoff(ctx context.Context, project string) (HandoffBlob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blobs := s.handoffs[project]
	if len(blobs) == 0 {
		return HandoffBlob{}, &NotFoundError{Kind: "handoff", ID: project}
	}
	return blobs[len(blobs)-1], nil
}

func (s *fakeStore) Sweep(ctx context.Context, cutoffMillis int64) error {
	return nil
}

var _ Store = (*fakeStore)(nil)
