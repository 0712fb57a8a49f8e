package httpapi

import (
	"net/http"

	sentinel "github.com/agentlens/sentinel"
)

func (s *server) hookCoverage(w http.ResponseWriter, r *http.Request) {
	snap, err := s.d.Coverage.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// hookDetail serves every §6 "enhanced per-hook analytics" variant
// (context|events|metrics|execution-context) from the same 24h window and
// per-type HookStatus row — the four paths differ only in which subset of
// that data the dashboard cares to render.
func (s *server) hookDetail(w http.ResponseWriter, r *http.Request) {
	hookType := sentinel.HookEventType(r.PathValue("type"))

	now := sentinel.NowMillis()
	dayAgo := now - 24*60*60*1000
	events, err := s.d.Store.EventsSince(r.Context(), dayAgo)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "EventsSince", Err: err})
		return
	}
	var filtered []sentinel.Event
	for _, e := range events {
		if e.HookEventType == hookType {
			filtered = append(filtered, e)
		}
	}

	snap, err := s.d.Coverage.Snapshot(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	var status sentinel.HookStatus
	for _, h := range snap.Hooks {
		if h.HookType == hookType {
			status = h
			break
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"hook_type": hookType,
		"status":    status,
		"events":    filtered,
	})
}
