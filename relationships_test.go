package sentinel

import (
	"context"
	"testing"
)

func TestInsertRelationshipBasic(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)

	saved, err := r.InsertRelationship(context.Background(), SessionRelationship{
		ParentSessionID: "p1", ChildSessionID: "c1", RelationshipType: RelationParentChild,
		DepthLevel: 1, SessionPath: "p1.c1", CreatedAt: 1000,
	})
	if err != nil {
		t.Fatalf("InsertRelationship: %v", err)
	}
	if saved.ID == 0 {
		t.Error("expected non-zero assigned id")
	}
}

func TestInsertRelationshipRejectsSelfLoop(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	_, err := r.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "s1", ChildSessionID: "s1"})
	var cycleErr *CycleDetectedError
	if !asCycleErr(err, &cycleErr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
}

func TestInsertRelationshipRejectsCycle(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)

	// a -> b -> c already exists.
	must(t, r.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "a", ChildSessionID: "b", CreatedAt: 1}))
	must(t, r.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "b", ChildSessionID: "c", CreatedAt: 2}))

	// c -> a would close the cycle.
	_, err := r.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "c", ChildSessionID: "a", CreatedAt: 3})
	var cycleErr *CycleDetectedError
	if !asCycleErr(err, &cycleErr) {
		t.Fatalf("expected CycleDetectedError for c->a, got %v", err)
	}
}

func must(t *testing.T, _ SessionRelationship, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func asCycleErr(err error, target **CycleDetectedError) bool {
	c, ok := err.(*CycleDetectedError)
	if ok {
		*target = c
	}
	return ok
}

func TestGetLineageWalksToRoot(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "root", ChildSessionID: "mid", CreatedAt: 1})
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "mid", ChildSessionID: "leaf", CreatedAt: 2})

	lineage, err := r.GetLineage(context.Background(), "leaf")
	if err != nil {
		t.Fatalf("GetLineage: %v", err)
	}
	want := []string{"leaf", "mid", "root"}
	if len(lineage) != len(want) {
		t.Fatalf("got %v, want %v", lineage, want)
	}
	for i := range want {
		if lineage[i] != want[i] {
			t.Errorf("got %v, want %v", lineage, want)
			break
		}
	}
}

func TestBuildSessionTree(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "root", ChildSessionID: "child1", RelationshipType: RelationParentChild, CreatedAt: 1})
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "root", ChildSessionID: "child2", RelationshipType: RelationParentChild, CreatedAt: 2})

	tree, err := r.BuildSessionTree(context.Background(), "root", -1)
	if err != nil {
		t.Fatalf("BuildSessionTree: %v", err)
	}
	if tree == nil {
		t.Fatal("expected non-nil tree")
	}
	if len(tree.Children) != 2 {
		t.Fatalf("got %d children, want 2", len(tree.Children))
	}
}

func TestBuildSessionTreeZeroMaxDepthReturnsRootOnly(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "root", ChildSessionID: "child1", RelationshipType: RelationParentChild, CreatedAt: 1})

	tree, err := r.BuildSessionTree(context.Background(), "root", 0)
	if err != nil {
		t.Fatalf("BuildSessionTree: %v", err)
	}
	if tree == nil {
		t.Fatal("expected non-nil tree")
	}
	if len(tree.Children) != 0 {
		t.Fatalf("got %d children, want 0 for maxDepth=0", len(tree.Children))
	}
}

func TestGetRelationshipsMaxDepthZeroOmitsChildren(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "root", ChildSessionID: "child1", RelationshipType: RelationParentChild, CreatedAt: 1})

	view, err := r.GetRelationships(context.Background(), "root", RelationshipViewOptions{IncludeChildren: true, MaxDepth: 0})
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(view.Children) != 0 {
		t.Fatalf("got %d children, want 0 for MaxDepth=0", len(view.Children))
	}

	view, err = r.GetRelationships(context.Background(), "root", RelationshipViewOptions{IncludeChildren: true, MaxDepth: -1})
	if err != nil {
		t.Fatalf("GetRelationships: %v", err)
	}
	if len(view.Children) != 1 {
		t.Fatalf("got %d children, want 1 for MaxDepth=-1", len(view.Children))
	}
}

func TestGetStatsComputesCompletionRate(t *testing.T) {
	store := newFakeStore()
	r := NewRelationshipStore(store)
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "p", ChildSessionID: "c1", RelationshipType: RelationParentChild, DepthLevel: 1, CreatedAt: 10})
	store.InsertRelationship(context.Background(), SessionRelationship{ParentSessionID: "p", ChildSessionID: "c2", RelationshipType: RelationWaveMember, DepthLevel: 2, CreatedAt: 20})
	r.CompleteRelationship(context.Background(), "p", "c1", 100)

	stats, err := r.GetStats(context.Background(), 0, 1000)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.CompletionRate != 0.5 {
		t.Errorf("got completion rate %v, want 0.5", stats.CompletionRate)
	}
	if stats.MaxDepth != 2 {
		t.Errorf("got max depth %d, want 2", stats.MaxDepth)
	}
}
