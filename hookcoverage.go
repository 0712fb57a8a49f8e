package sentinel

import (
	"context"
	"time"
)

// HookStatusClass is the health classification of a hook type (§4.I).
type HookStatusClass string

const (
	HookStatusActive   HookStatusClass = "active"
	HookStatusInactive HookStatusClass = "inactive"
	HookStatusError    HookStatusClass = "error"
)

// HookStatus is the per-hook-type rolling statistics row (§4.I).
type HookStatus struct {
	HookType             HookEventType   `json:"hook_type"`
	ExecutionCount       int64           `json:"execution_count"`
	ExecutionRatePerDay  float64         `json:"execution_rate_per_day"`
	LastExecution        int64           `json:"last_execution,omitempty"`
	SuccessRate          float64         `json:"success_rate"`
	AverageExecutionTime float64         `json:"average_execution_time_ms"`
	Status               HookStatusClass `json:"status"`
	LastError            string          `json:"last_error,omitempty"`
}

// HookCoverageSnapshot is the overall coverage picture pushed after every
// event insertion (§4.I).
type HookCoverageSnapshot struct {
	Hooks              []HookStatus `json:"hooks"`
	ActiveCount        int          `json:"active_count"`
	InactiveCount      int          `json:"inactive_count"`
	ErrorCount         int          `json:"error_count"`
	MeanSuccessRate    float64      `json:"mean_success_rate"`
	ComputedAt         int64        `json:"computed_at"`
}

// HookCoverageAggregator computes HookCoverageSnapshot from the event log
// (§4.I). It holds no state of its own; every call recomputes from Store.
type HookCoverageAggregator struct {
	store Store
}

// NewHookCoverageAggregator creates an aggregator over store.
func NewHookCoverageAggregator(store Store) *HookCoverageAggregator {
	return &HookCoverageAggregator{store: store}
}

// Snapshot computes the current coverage picture across all known hook
// types, as of now.
func (a *HookCoverageAggregator) Snapshot(ctx context.Context) (HookCoverageSnapshot, error) {
	now := NowMillis()
	dayAgo := now - int64(24*time.Hour/time.Millisecond)

	allTime, err := a.store.EventsSince(ctx, 0)
	if err != nil {
		return HookCoverageSnapshot{}, &PersistenceError{Op: "EventsSince", Err: err}
	}
	recent, err := a.store.EventsSince(ctx, dayAgo)
	if err != nil {
		return HookCoverageSnapshot{}, &PersistenceError{Op: "EventsSince", Err: err}
	}

	byType := make(map[HookEventType][]Event, len(KnownHookTypes))
	for _, e := range allTime {
		byType[e.HookEventType] = append(byType[e.HookEventType], e)
	}
	recentByType := make(map[HookEventType][]Event, len(KnownHookTypes))
	for _, e := range recent {
		recentByType[e.HookEventType] = append(recentByType[e.HookEventType], e)
	}

	snap := HookCoverageSnapshot{ComputedAt: now}
	var successRateSum float64

	for _, hookType := range KnownHookTypes {
		status := computeHookStatus(hookType, byType[hookType], recentByType[hookType])
		snap.Hooks = append(snap.Hooks, status)
		successRateSum += status.SuccessRate
		switch status.Status {
		case HookStatusActive:
			snap.ActiveCount++
		case HookStatusInactive:
			snap.InactiveCount++
		case HookStatusError:
			snap.ErrorCount++
		}
	}
	if len(KnownHookTypes) > 0 {
		snap.MeanSuccessRate = successRateSum / float64(len(KnownHookTypes))
	}
	return snap, nil
}

func computeHookStatus(hookType HookEventType, all, recent []Event) HookStatus {
	status := HookStatus{HookType: hookType, ExecutionCount: int64(len(all))}
	if len(all) == 0 {
		status.Status = HookStatusInactive
		return status
	}

	var successCount int64
	var durationSum int64
	var durationCount int64
	var lastExecution int64
	for _, e := range all {
		if !e.Error {
			successCount++
		}
		if e.DurationMS > 0 {
			durationSum += e.DurationMS
			durationCount++
		}
		if e.Timestamp > lastExecution {
			lastExecution = e.Timestamp
		}
	}
	status.SuccessRate = float64(successCount) / float64(len(all))
	if durationCount > 0 {
		status.AverageExecutionTime = float64(durationSum) / float64(durationCount)
	}
	status.LastExecution = lastExecution
	status.ExecutionRatePerDay = float64(len(recent))

	hasRecentError := false
	var lastError string
	var lastErrorTs int64
	for _, e := range recent {
		if e.Error {
			hasRecentError = true
			if e.Timestamp >= lastErrorTs {
				lastErrorTs = e.Timestamp
				lastError = e.Summary
			}
		}
	}
	status.LastError = lastError

	switch {
	case hasRecentError:
		status.Status = HookStatusError
	default:
		status.Status = HookStatusActive
	}
	return status
}
