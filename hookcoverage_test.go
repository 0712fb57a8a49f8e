package sentinel

import (
	"context"
	"testing"
)

func TestHookCoverageSnapshotInactiveWhenNoEvents(t *testing.T) {
	store := newFakeStore()
	agg := NewHookCoverageAggregator(store)

	snap, err := agg.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.InactiveCount != len(KnownHookTypes) {
		t.Errorf("got %d inactive, want %d", snap.InactiveCount, len(KnownHookTypes))
	}
	if snap.ActiveCount != 0 || snap.ErrorCount != 0 {
		t.Errorf("expected zero active/error, got active=%d error=%d", snap.ActiveCount, snap.ErrorCount)
	}
}

func TestHookCoverageSnapshotActiveAndErrorClassification(t *testing.T) {
	store := newFakeStore()
	now := NowMillis()

	store.InsertEvent(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookPostToolUse,
		Timestamp: now, DurationMS: 120, Payload: map[string]any{},
	})
	store.InsertEvent(context.Background(), NewEvent{
		SourceApp: "claude-code", SessionID: "s1", HookEventType: HookPreToolUse,
		Timestamp: now, DurationMS: 10, Error: true, Summary: "boom", Payload: map[string]any{},
	})

	agg := NewHookCoverageAggregator(store)
	snap, err := agg.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	var postStatus, preStatus *HookStatus
	for i := range snap.Hooks {
		switch snap.Hooks[i].HookType {
		case HookPostToolUse:
			postStatus = &snap.Hooks[i]
		case HookPreToolUse:
			preStatus = &snap.Hooks[i]
		}
	}
	if postStatus == nil || postStatus.Status != HookStatusActive {
		t.Errorf("expected PostToolUse active, got %+v", postStatus)
	}
	if preStatus == nil || preStatus.Status != HookStatusError {
		t.Errorf("expected PreToolUse error, got %+v", preStatus)
	}
	if preStatus.LastError != "boom" {
		t.Errorf("got last error %q, want boom", preStatus.LastError)
	}
	if postStatus.SuccessRate != 1 {
		t.Errorf("got success rate %v, want 1", postStatus.SuccessRate)
	}
	if preStatus.SuccessRate != 0 {
		t.Errorf("got success rate %v, want 0", preStatus.SuccessRate)
	}
}
