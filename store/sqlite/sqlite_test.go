package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	sentinel "github.com/agentlens/sentinel"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestInsertAndRecentEvents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.InsertEvent(ctx, sentinel.NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: sentinel.HookPostToolUse,
		Timestamp: 1000, Payload: map[string]any{"tool_name": "grep"},
	})
	if err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected assigned id")
	}

	recent, err := s.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d events, want 1", len(recent))
	}
	if recent[0].Payload["tool_name"] != "grep" {
		t.Errorf("got payload %v, want tool_name=grep", recent[0].Payload)
	}
}

func TestEventsForSessionFiltersByHookType(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.InsertEvent(ctx, sentinel.NewEvent{SourceApp: "a", SessionID: "s1", HookEventType: sentinel.HookPreToolUse, Timestamp: 1, Payload: map[string]any{}})
	s.InsertEvent(ctx, sentinel.NewEvent{SourceApp: "a", SessionID: "s1", HookEventType: sentinel.HookPostToolUse, Timestamp: 2, Payload: map[string]any{}})
	s.InsertEvent(ctx, sentinel.NewEvent{SourceApp: "a", SessionID: "s1", HookEventType: sentinel.HookNotification, Timestamp: 3, Payload: map[string]any{}})

	events, err := s.EventsForSession(ctx, "s1", sentinel.HookPreToolUse, sentinel.HookPostToolUse)
	if err != nil {
		t.Fatalf("EventsForSession: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
}

func TestAgentExecutionLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	exec := sentinel.AgentExecution{ID: "a1", AgentName: "code-debugger", AgentType: "debugger", Status: sentinel.AgentActive, StartTime: 1000, SessionID: "s1"}
	if err := s.InsertAgentExecution(ctx, exec); err != nil {
		t.Fatalf("InsertAgentExecution: %v", err)
	}

	if err := s.CompleteAgentExecution(ctx, "a1", sentinel.AgentComplete, 2000, 1000, sentinel.TokenUsage{Total: 42}, 100); err != nil {
		t.Fatalf("CompleteAgentExecution: %v", err)
	}

	got, err := s.GetAgentExecution(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAgentExecution: %v", err)
	}
	if got.Status != sentinel.AgentComplete {
		t.Errorf("got status %q, want complete", got.Status)
	}
	if got.TokenUsage.Total != 42 {
		t.Errorf("got tokens %d, want 42", got.TokenUsage.Total)
	}

	if err := s.CompleteAgentExecution(ctx, "missing", sentinel.AgentComplete, 2000, 1000, sentinel.TokenUsage{}, 100); err == nil {
		t.Error("expected NotFoundError for unknown agent")
	}
}

func TestHourlyBucketUpsertAccumulates(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	hour := "2026-01-01T00"

	if err := s.UpsertHourlyBucket(ctx, hour, "debugger", 1, 100, 10, 5); err != nil {
		t.Fatalf("UpsertHourlyBucket: %v", err)
	}
	if err := s.UpsertHourlyBucket(ctx, hour, "debugger", 1, 200, 20, 5); err != nil {
		t.Fatalf("UpsertHourlyBucket: %v", err)
	}

	buckets, err := s.HourlyBuckets(ctx, 0, 9999999999999)
	if err != nil {
		t.Fatalf("HourlyBuckets: %v", err)
	}
	if len(buckets) != 1 {
		t.Fatalf("got %d buckets, want 1", len(buckets))
	}
	if buckets[0].Count != 2 || buckets[0].TokenSum != 30 {
		t.Errorf("got %+v, want count=2 token_sum=30", buckets[0])
	}
}

func TestToolUsageTracksDistinctAgents(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	date := "2026-01-01"

	if err := s.IncrementToolUsage(ctx, "grep", date, "agent-1"); err != nil {
		t.Fatalf("IncrementToolUsage: %v", err)
	}
	if err := s.IncrementToolUsage(ctx, "grep", date, "agent-2"); err != nil {
		t.Fatalf("IncrementToolUsage: %v", err)
	}
	if err := s.IncrementToolUsage(ctx, "grep", date, "agent-1"); err != nil {
		t.Fatalf("IncrementToolUsage: %v", err)
	}

	usage, err := s.ToolUsage(ctx, 0, 9999999999999)
	if err != nil {
		t.Fatalf("ToolUsage: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("got %d rows, want 1", len(usage))
	}
	if usage[0].UsageCount != 3 {
		t.Errorf("got usage count %d, want 3", usage[0].UsageCount)
	}
	if len(usage[0].UniqueAgents) != 2 {
		t.Errorf("got %d unique agents, want 2", len(usage[0].UniqueAgents))
	}
}

func TestRelationshipInsertAndQuery(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	saved, err := s.InsertRelationship(ctx, sentinel.SessionRelationship{
		ParentSessionID: "p1", ChildSessionID: "c1", RelationshipType: sentinel.RelationParentChild,
		CreatedAt: 1000, DepthLevel: 1, SessionPath: "p1.c1",
	})
	if err != nil {
		t.Fatalf("InsertRelationship: %v", err)
	}
	if saved.ID == 0 {
		t.Fatal("expected assigned id")
	}

	children, err := s.RelationshipsByParent(ctx, "p1")
	if err != nil {
		t.Fatalf("RelationshipsByParent: %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("got %d children, want 1", len(children))
	}

	if err := s.CompleteRelationship(ctx, "p1", "c1", 2000); err != nil {
		t.Fatalf("CompleteRelationship: %v", err)
	}
	edge, err := s.RelationshipByChild(ctx, "c1")
	if err != nil {
		t.Fatalf("RelationshipByChild: %v", err)
	}
	if edge.CompletedAt != 2000 {
		t.Errorf("got completed_at %d, want 2000", edge.CompletedAt)
	}
}

func TestSyncOpLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.EnqueueSyncOp(ctx, sentinel.SyncOperation{Kind: sentinel.SyncHIncrBy, Key: "k1", Field: "count", Score: 1, CreatedAt: 1000, Status: sentinel.SyncPending})
	if err != nil {
		t.Fatalf("EnqueueSyncOp: %v", err)
	}

	n, err := s.CountPendingSyncOps(ctx)
	if err != nil {
		t.Fatalf("CountPendingSyncOps: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d pending, want 1", n)
	}

	pending, err := s.PendingSyncOps(ctx, 10)
	if err != nil {
		t.Fatalf("PendingSyncOps: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("got %+v, want one op with id %d", pending, id)
	}

	if err := s.MarkSyncOpSynced(ctx, id); err != nil {
		t.Fatalf("MarkSyncOpSynced: %v", err)
	}
	n, err = s.CountPendingSyncOps(ctx)
	if err != nil {
		t.Fatalf("CountPendingSyncOps: %v", err)
	}
	if n != 0 {
		t.Errorf("got %d pending after sync, want 0", n)
	}
}

func TestHandoffLatestReturnsMostRecent(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	if err := s.SaveHandoff(ctx, sentinel.HandoffBlob{Project: "p", Content: "first", CreatedAt: 1000}); err != nil {
		t.Fatalf("SaveHandoff: %v", err)
	}
	if err := s.SaveHandoff(ctx, sentinel.HandoffBlob{Project: "p", Content: "second", CreatedAt: 2000}); err != nil {
		t.Fatalf("SaveHandoff: %v", err)
	}

	latest, err := s.LatestHandoff(ctx, "p")
	if err != nil {
		t.Fatalf("LatestHandoff: %v", err)
	}
	if latest.Content != "second" {
		t.Errorf("got content %q, want second", latest.Content)
	}
}

func TestSweepRemovesOldRows(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	s.InsertEvent(ctx, sentinel.NewEvent{SourceApp: "a", SessionID: "s1", HookEventType: sentinel.HookNotification, Timestamp: 1000, Payload: map[string]any{}})
	s.InsertEvent(ctx, sentinel.NewEvent{SourceApp: "a", SessionID: "s1", HookEventType: sentinel.HookNotification, Timestamp: 5_000_000_000_000, Payload: map[string]any{}})

	if err := s.Sweep(ctx, 1_000_000_000_000); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	recent, err := s.RecentEvents(ctx, 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(recent) != 1 {
		t.Fatalf("got %d events after sweep, want 1", len(recent))
	}
}
