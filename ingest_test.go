package sentinel

import (
	"context"
	"testing"
)

func newTestIngestor() (*Ingestor, *fakeStore) {
	store := newFakeStore()
	cache := newFakeCache()
	breaker := NewCircuitBreaker()
	syncQ := NewSyncQueue(store, cache, breaker)
	metrics := NewMetricsService(store, cache, breaker, syncQ)
	rels := NewRelationshipStore(store)
	bus := NewBus(
		func(ctx context.Context, limit int) ([]Event, error) { return store.RecentEvents(ctx, limit) },
		func(ctx context.Context) (any, error) { return store.ActiveAgentExecutions(ctx) },
	)
	coverage := NewHookCoverageAggregator(store)
	return NewIngestor(store, metrics, rels, bus, coverage), store
}

func TestIngestPersistsAndBroadcasts(t *testing.T) {
	in, store := newTestIngestor()
	saved, err := in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookUserPromptSubmit,
		Timestamp: 1_700_000_000_000, Payload: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if saved.ID == 0 {
		t.Error("expected assigned event id")
	}
	if len(store.metricRecs) != 1 {
		t.Fatalf("expected a metric record, got %d", len(store.metricRecs))
	}
}

func TestIngestRejectsMissingRequiredFields(t *testing.T) {
	in, _ := newTestIngestor()
	_, err := in.Ingest(context.Background(), NewEvent{SessionID: "s1"})
	var valErr *ValidationError
	if !errAsValidation(err, &valErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func errAsValidation(err error, target **ValidationError) bool {
	v, ok := err.(*ValidationError)
	if ok {
		*target = v
	}
	return ok
}

func TestIngestSessionStartInsertsRelationship(t *testing.T) {
	in, store := newTestIngestor()
	_, err := in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "child1", HookEventType: HookSessionStart,
		Timestamp: 1000, ParentSessionID: "parent1", SessionDepth: 2, Payload: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	rel, err := store.RelationshipByChild(context.Background(), "child1")
	if err != nil {
		t.Fatalf("expected relationship persisted: %v", err)
	}
	if rel.ParentSessionID != "parent1" {
		t.Errorf("got parent %q, want parent1", rel.ParentSessionID)
	}
	if rel.DepthLevel != 2 {
		t.Errorf("got depth %d, want 2", rel.DepthLevel)
	}
	if rel.SessionPath != "parent1.child1" {
		t.Errorf("got path %q, want parent1.child1", rel.SessionPath)
	}
}

func TestIngestSessionEndCompletesRelationship(t *testing.T) {
	in, store := newTestIngestor()
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "p", ChildSessionID: "c", CreatedAt: 1})

	_, err := in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "c", HookEventType: HookSessionEnd,
		Timestamp: 2000, ParentSessionID: "p", Payload: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	rel, err := store.RelationshipByChild(context.Background(), "c")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if rel.CompletedAt != 2000 {
		t.Errorf("got completed_at %d, want 2000", rel.CompletedAt)
	}
}

func TestIngestSubagentLifecycle(t *testing.T) {
	in, store := newTestIngestor()

	startedEvent, err := in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookSubagentStart,
		Timestamp: 1000, Payload: map[string]any{"agent_name": "code-debugger"},
	})
	if err != nil {
		t.Fatalf("Ingest start: %v", err)
	}
	agentID, _ := startedEvent.Payload["agent_id"].(string)
	if agentID == "" {
		t.Fatal("expected agent_id stashed onto the persisted event payload")
	}

	store.InsertEvent(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookPostToolUse,
		Timestamp: 1500, Payload: map[string]any{"tool_name": "grep"},
	})

	_, err = in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookSubagentStop,
		Timestamp: 2000, Payload: map[string]any{"agent_id": agentID},
	})
	if err != nil {
		t.Fatalf("Ingest stop: %v", err)
	}
	exec := store.agents[agentID]
	if exec.Status != AgentComplete {
		t.Errorf("got status %q, want complete", exec.Status)
	}
}

func TestIngestBroadcastsToSubscribers(t *testing.T) {
	in, _ := newTestIngestor()
	sub := newFakeSubscriber("sub1")
	in.bus.Subscribe(context.Background(), sub)

	_, err := in.Ingest(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookNotification,
		Timestamp: 1000, Payload: map[string]any{},
	})
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	var sawEvent, sawCoverage bool
	for _, m := range sub.sent {
		switch m.Type {
		case "event":
			sawEvent = true
		case "hook_status_update":
			sawCoverage = true
		}
	}
	if !sawEvent {
		t.Error("expected an event broadcast")
	}
	if !sawCoverage {
		t.Error("expected a hook_status_update broadcast")
	}
}

type fakeSubscriber struct {
	id   string
	sent []BusMessage
}

func newFakeSubscriber(id string) *fakeSubscriber { return &fakeSubscriber{id: id} }

func (s *fakeSubscriber) ID() string { return s.id }
func (s *fakeSubscriber) Send(msg BusMessage) error {
	s.sent = append(s.sent, msg)
	return nil
}
func (s *fakeSubscriber) QueueDepth() int { return 0 }
