package sentinel

import (
	"context"
	"log/slog"
)

// RelationshipStoreOption configures a RelationshipStore.
type RelationshipStoreOption func(*RelationshipStore)

// WithRelationshipLogger attaches a structured logger.
func WithRelationshipLogger(l *slog.Logger) RelationshipStoreOption {
	return func(r *RelationshipStore) { r.logger = l }
}

// RelationshipStore maintains the acyclic parent/child session tree (§4.G).
// All graph traversal happens in memory against Store reads; InsertRelationship
// rejects an edge that would introduce a cycle by checking whether the
// parent is already reachable from the child.
type RelationshipStore struct {
	store  Store
	logger *slog.Logger
}

// NewRelationshipStore creates a RelationshipStore over store.
func NewRelationshipStore(store Store, opts ...RelationshipStoreOption) *RelationshipStore {
	r := &RelationshipStore{store: store, logger: nopLogger}
	for _, o := range opts {
		o(r)
	}
	return r
}

// InsertRelationship writes edge after verifying it would not create a
// cycle (§4.G "insert_relationship").
func (r *RelationshipStore) InsertRelationship(ctx context.Context, edge SessionRelationship) (SessionRelationship, error) {
	if edge.ParentSessionID == edge.ChildSessionID {
		return SessionRelationship{}, &CycleDetectedError{SessionID: edge.ChildSessionID}
	}
	reachable, err := r.isReachable(ctx, edge.ChildSessionID, edge.ParentSessionID, make(map[string]bool))
	if err != nil {
		return SessionRelationship{}, err
	}
	if reachable {
		return SessionRelationship{}, &CycleDetectedError{SessionID: edge.ChildSessionID}
	}

	saved, err := r.store.InsertRelationship(ctx, edge)
	if err != nil {
		return SessionRelationship{}, &PersistenceError{Op: "InsertRelationship", Err: err}
	}
	return saved, nil
}

// isReachable reports whether target is reachable from start by walking
// child edges, guarding against cycles already present in the data with a
// visited set.
func (r *RelationshipStore) isReachable(ctx context.Context, start, target string, visited map[string]bool) (bool, error) {
	if start == target {
		return true, nil
	}
	if visited[start] {
		return false, nil
	}
	visited[start] = true

	children, err := r.store.RelationshipsByParent(ctx, start)
	if err != nil {
		return false, &PersistenceError{Op: "RelationshipsByParent", Err: err}
	}
	for _, c := range children {
		ok, err := r.isReachable(ctx, c.ChildSessionID, target, visited)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// CompleteRelationship sets the completion time on the parent/child edge.
func (r *RelationshipStore) CompleteRelationship(ctx context.Context, parent, child string, ts int64) error {
	if ts == 0 {
		ts = NowMillis()
	}
	if err := r.store.CompleteRelationship(ctx, parent, child, ts); err != nil {
		return &PersistenceError{Op: "CompleteRelationship", Err: err}
	}
	return nil
}

// RelationshipView is the response shape for get_relationships (§4.G).
type RelationshipView struct {
	Session  string                `json:"session"`
	Parent   *SessionRelationship  `json:"parent,omitempty"`
	Children []SessionRelationship `json:"children"`
	Siblings []SessionRelationship `json:"siblings"`
	Depth    int                   `json:"depth"`
	Path     string                `json:"path"`
}

// RelationshipViewOptions controls which sections GetRelationships fills in.
type RelationshipViewOptions struct {
	IncludeParent   bool
	IncludeChildren bool
	IncludeSiblings bool
	MaxDepth        int
}

// GetRelationships answers the §4.G "get_relationships" query.
func (r *RelationshipStore) GetRelationships(ctx context.Context, session string, opts RelationshipViewOptions) (RelationshipView, error) {
	view := RelationshipView{Session: session, Children: []SessionRelationship{}, Siblings: []SessionRelationship{}}

	var parentEdge *SessionRelationship
	edge, err := r.store.RelationshipByChild(ctx, session)
	if err == nil {
		e := edge
		parentEdge = &e
		view.Depth = edge.DepthLevel
		view.Path = edge.SessionPath
	} else if !isNotFound(err) {
		return view, &PersistenceError{Op: "RelationshipByChild", Err: err}
	}

	if opts.IncludeParent {
		view.Parent = parentEdge
	}

	if opts.IncludeChildren && opts.MaxDepth != 0 {
		children, err := r.store.RelationshipsByParent(ctx, session)
		if err != nil {
			return view, &PersistenceError{Op: "RelationshipsByParent", Err: err}
		}
		view.Children = children
	}

	if opts.IncludeSiblings && parentEdge != nil {
		siblingEdges, err := r.store.RelationshipsByParent(ctx, parentEdge.ParentSessionID)
		if err != nil {
			return view, &PersistenceError{Op: "RelationshipsByParent", Err: err}
		}
		for _, s := range siblingEdges {
			if s.ChildSessionID != session {
				view.Siblings = append(view.Siblings, s)
			}
		}
	}

	return view, nil
}

// SessionTreeNode is one node of the tree built_session_tree returns (§4.G).
type SessionTreeNode struct {
	SessionID        string             `json:"session_id"`
	RelationshipType RelationshipType   `json:"relationship_type,omitempty"`
	SpawnReason      string             `json:"spawn_reason,omitempty"`
	Children         []*SessionTreeNode `json:"children,omitempty"`
}

// BuildSessionTree performs the DFS described in §4.G, returning nil if a
// cycle is detected via the visited set.
func (r *RelationshipStore) BuildSessionTree(ctx context.Context, root string, maxDepth int) (*SessionTreeNode, error) {
	visited := make(map[string]bool)
	return r.buildTreeNode(ctx, root, "", "", 0, maxDepth, visited)
}

func (r *RelationshipStore) buildTreeNode(ctx context.Context, session string, relType RelationshipType, spawnReason string, depth, maxDepth int, visited map[string]bool) (*SessionTreeNode, error) {
	if visited[session] {
		return nil, nil
	}
	visited[session] = true

	node := &SessionTreeNode{SessionID: session, RelationshipType: relType, SpawnReason: spawnReason}
	// maxDepth < 0 means unlimited; maxDepth == 0 means the root only.
	if maxDepth >= 0 && depth >= maxDepth {
		return node, nil
	}

	children, err := r.store.RelationshipsByParent(ctx, session)
	if err != nil {
		return nil, &PersistenceError{Op: "RelationshipsByParent", Err: err}
	}
	for _, c := range children {
		child, err := r.buildTreeNode(ctx, c.ChildSessionID, c.RelationshipType, c.SpawnReason, depth+1, maxDepth, visited)
		if err != nil {
			return nil, err
		}
		if child == nil {
			return nil, nil
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

// GetLineage walks parent pointers to the root, returning the ordered
// ancestor list including session itself (§4.G "get_lineage").
func (r *RelationshipStore) GetLineage(ctx context.Context, session string) ([]string, error) {
	visited := map[string]bool{session: true}
	lineage := []string{session}

	current := session
	for {
		edge, err := r.store.RelationshipByChild(ctx, current)
		if err != nil {
			if isNotFound(err) {
				break
			}
			return nil, &PersistenceError{Op: "RelationshipByChild", Err: err}
		}
		if visited[edge.ParentSessionID] {
			return nil, &CycleDetectedError{SessionID: edge.ParentSessionID}
		}
		visited[edge.ParentSessionID] = true
		lineage = append(lineage, edge.ParentSessionID)
		current = edge.ParentSessionID
	}
	return lineage, nil
}

// RelationshipStats summarizes the relationship graph for get_stats (§4.G).
type RelationshipStats struct {
	CountByRelationshipType map[RelationshipType]int64 `json:"count_by_relationship_type"`
	CountBySpawnReason      map[string]int64           `json:"count_by_spawn_reason"`
	CountByDelegationType   map[DelegationType]int64   `json:"count_by_delegation_type"`
	AverageDepth            float64                    `json:"average_depth"`
	MaxDepth                int                        `json:"max_depth"`
	CompletionRate          float64                    `json:"completion_rate"`
}

// GetStats computes aggregate statistics over relationships created in
// [start, end] (§4.G "get_stats").
func (r *RelationshipStore) GetStats(ctx context.Context, start, end int64) (RelationshipStats, error) {
	edges, err := r.store.AllRelationships(ctx, start, end)
	if err != nil {
		return RelationshipStats{}, &PersistenceError{Op: "AllRelationships", Err: err}
	}

	stats := RelationshipStats{
		CountByRelationshipType: make(map[RelationshipType]int64),
		CountBySpawnReason:      make(map[string]int64),
		CountByDelegationType:   make(map[DelegationType]int64),
	}
	if len(edges) == 0 {
		return stats, nil
	}

	var depthSum int64
	var completed int64
	for _, e := range edges {
		stats.CountByRelationshipType[e.RelationshipType]++
		if e.SpawnReason != "" {
			stats.CountBySpawnReason[e.SpawnReason]++
		}
		if e.DelegationType != "" {
			stats.CountByDelegationType[e.DelegationType]++
		}
		depthSum += int64(e.DepthLevel)
		if e.DepthLevel > stats.MaxDepth {
			stats.MaxDepth = e.DepthLevel
		}
		if e.CompletedAt != 0 {
			completed++
		}
	}
	stats.AverageDepth = float64(depthSum) / float64(len(edges))
	stats.CompletionRate = float64(completed) / float64(len(edges))
	return stats, nil
}

func isNotFound(err error) bool {
	_, ok := err.(*NotFoundError)
	return ok
}
