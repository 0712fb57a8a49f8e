package httpapi

import (
	"encoding/json"
	"net/http"

	sentinel "github.com/agentlens/sentinel"
)

func (s *server) fallbackStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := s.d.SyncQ.PendingCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"connection_status": s.d.Monitor.Status().String(),
		"pending_sync_ops":  pending,
	})
}

func (s *server) fallbackHealth(w http.ResponseWriter, r *http.Request) {
	err := s.d.Cache.Ping(r.Context())
	status := "ok"
	code := http.StatusOK
	if err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func (s *server) fallbackTestRedis(w http.ResponseWriter, r *http.Request) {
	status := s.d.Monitor.ProbeNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"connection_status": status.String()})
}

func (s *server) fallbackSync(w http.ResponseWriter, r *http.Request) {
	s.d.SyncQ.Drain(r.Context())
	pending, err := s.d.SyncQ.PendingCount(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending_sync_ops": pending})
}

func (s *server) getHandoff(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	h, err := s.d.Store.LatestHandoff(r.Context(), project)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

type postHandoffRequest struct {
	Content string `json:"content"`
}

func (s *server) postHandoff(w http.ResponseWriter, r *http.Request) {
	project := r.PathValue("project")
	var req postHandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	h := sentinel.HandoffBlob{Project: project, Content: req.Content, CreatedAt: sentinel.NowMillis()}
	if err := s.d.Store.SaveHandoff(r.Context(), h); err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "SaveHandoff", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, h)
}
