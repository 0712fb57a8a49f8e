package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	sentinel "github.com/agentlens/sentinel"
)

type eventRequest struct {
	SourceApp         string         `json:"source_app"`
	SessionID         string         `json:"session_id"`
	HookEventType     string         `json:"hook_event_type"`
	Payload           map[string]any `json:"payload"`
	ParentSessionID   string         `json:"parent_session_id"`
	SessionDepth      int            `json:"session_depth"`
	WaveID            string         `json:"wave_id"`
	DelegationContext map[string]any `json:"delegation_context"`
	CorrelationID     string         `json:"correlation_id"`
	Timestamp         int64          `json:"timestamp"`
	DurationMS        int64          `json:"duration"`
	Error             bool           `json:"error"`
}

func (s *server) postEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}

	ts := req.Timestamp
	if ts == 0 {
		ts = sentinel.NowMillis()
	}
	saved, err := s.d.Ingestor.Ingest(r.Context(), sentinel.NewEvent{
		SourceApp:         req.SourceApp,
		SessionID:         req.SessionID,
		HookEventType:     sentinel.HookEventType(req.HookEventType),
		Timestamp:         ts,
		Payload:           req.Payload,
		ParentSessionID:   req.ParentSessionID,
		SessionDepth:      req.SessionDepth,
		WaveID:            req.WaveID,
		DelegationContext: req.DelegationContext,
		CorrelationID:     req.CorrelationID,
		DurationMS:        req.DurationMS,
		Error:             req.Error,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *server) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)
	if limit > 2000 {
		limit = 2000
	}
	events, err := s.d.Store.RecentEvents(r.Context(), limit)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "RecentEvents", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *server) filterOptions(w http.ResponseWriter, r *http.Request) {
	sourceApps, hookTypes, err := s.d.Store.FilterOptions(r.Context())
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "FilterOptions", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"source_apps": sourceApps, "hook_event_types": hookTypes})
}

func (s *server) correlatedEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlation_id")
	if correlationID == "" {
		writeError(w, &sentinel.ValidationError{Field: "correlation_id", Message: "required"})
		return
	}
	events, err := s.d.Store.CorrelatedEvents(r.Context(), correlationID)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "CorrelatedEvents", Err: err})
		return
	}
	limit := queryInt(r, "limit", len(events))
	if limit < len(events) {
		events = events[:limit]
	}
	writeJSON(w, http.StatusOK, events)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryInt64(r *http.Request, key string, def int64) int64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
