package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	sentinel "github.com/agentlens/sentinel"
)

// parseMaxDepth reads a maxDepth query param where an explicit 0 ("root
// only") must be distinguished from the param being absent ("unlimited").
// queryInt can't represent that since it treats any parsed value <= 0 as
// invalid and falls back to its default.
func parseMaxDepth(r *http.Request) int {
	v := r.URL.Query().Get("maxDepth")
	if v == "" {
		return -1
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

func (s *server) sessionRelationships(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	q := r.URL.Query()
	opts := sentinel.RelationshipViewOptions{
		IncludeParent:   q.Has("includeParent"),
		IncludeChildren: q.Has("includeChildren"),
		IncludeSiblings: q.Has("includeSiblings"),
		MaxDepth:        parseMaxDepth(r),
	}
	view, err := s.d.Rels.GetRelationships(r.Context(), id, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *server) sessionChildren(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	view, err := s.d.Rels.GetRelationships(r.Context(), id, sentinel.RelationshipViewOptions{IncludeChildren: true, MaxDepth: -1})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view.Children)
}

func (s *server) sessionTree(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	maxDepth := parseMaxDepth(r)
	tree, err := s.d.Rels.BuildSessionTree(r.Context(), id, maxDepth)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type spawnRequest struct {
	ParentSessionID string         `json:"parent_session_id"`
	SpawnContext    map[string]any `json:"spawn_context"`
}

func (s *server) sessionSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	if req.ParentSessionID == "" {
		writeError(w, &sentinel.ValidationError{Field: "parent_session_id", Message: "required"})
		return
	}

	childID := sentinel.NewID()
	spawnReason, _ := req.SpawnContext["spawn_reason"].(string)
	delegationType, _ := req.SpawnContext["delegation_type"].(string)

	edge, err := s.d.Rels.InsertRelationship(r.Context(), sentinel.SessionRelationship{
		ParentSessionID: req.ParentSessionID,
		ChildSessionID:  childID,
		RelationshipType: sentinel.RelationParentChild,
		SpawnReason:      spawnReason,
		DelegationType:   sentinel.DelegationType(delegationType),
		SpawnMetadata:    req.SpawnContext,
		CreatedAt:        sentinel.NowMillis(),
		DepthLevel:       1,
		SessionPath:      req.ParentSessionID + "." + childID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"child_session_id": childID, "relationship": edge})
}

type childCompletedRequest struct {
	ChildSessionID string `json:"child_session_id"`
}

func (s *server) childCompleted(w http.ResponseWriter, r *http.Request) {
	parentID := r.PathValue("id")
	var req childCompletedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	if err := s.d.Rels.CompleteRelationship(r.Context(), parentID, req.ChildSessionID, sentinel.NowMillis()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *server) relationshipStats(w http.ResponseWriter, r *http.Request) {
	start, end := timeRange(r)
	stats, err := s.d.Rels.GetStats(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
