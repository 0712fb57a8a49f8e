package httpapi

import (
	"encoding/json"
	"net/http"
	"sort"

	sentinel "github.com/agentlens/sentinel"
)

func timeRange(r *http.Request) (start, end int64) {
	end = sentinel.NowMillis()
	start = end - 24*60*60*1000
	if v := queryInt64(r, "start", 0); v != 0 {
		start = v
	}
	if v := queryInt64(r, "end", 0); v != 0 {
		end = v
	}
	if hours := queryInt(r, "hours", 0); hours != 0 {
		start = end - int64(hours)*60*60*1000
	}
	return start, end
}

type agentTypeBreakdown struct {
	Type  string `json:"type"`
	Count int64  `json:"count"`
}

func (s *server) metricsCurrent(w http.ResponseWriter, r *http.Request) {
	start, end := timeRange(r)
	ctx := r.Context()

	active, err := s.d.Store.ActiveAgentExecutions(ctx)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "ActiveAgentExecutions", Err: err})
		return
	}
	daily, err := s.d.Metrics.DailyBuckets(ctx, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	hourly, err := s.d.Metrics.HourlyBuckets(ctx, start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	var executions, tokens, costHundredths, durationSum, successCount int64
	byType := map[string]int64{}
	for _, b := range daily {
		executions += b.Count
		tokens += b.TokenSum
		costHundredths += b.CostSumHundredths
		durationSum += b.DurationSumMS
	}
	for _, b := range hourly {
		byType[b.AgentType] += b.Count
	}

	records, err := s.d.Store.MetricRecords(ctx, start, end)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "MetricRecords", Err: err})
		return
	}
	for _, rec := range records {
		if rec.Success {
			successCount++
		}
	}
	successRate := 0.0
	if len(records) > 0 {
		successRate = float64(successCount) / float64(len(records))
	}
	avgDuration := 0.0
	if executions > 0 {
		avgDuration = float64(durationSum) / float64(executions)
	}

	breakdown := make([]agentTypeBreakdown, 0, len(byType))
	for t, c := range byType {
		breakdown = append(breakdown, agentTypeBreakdown{Type: t, Count: c})
	}
	sort.Slice(breakdown, func(i, j int) bool { return breakdown[i].Count > breakdown[j].Count })

	writeJSON(w, http.StatusOK, map[string]any{
		"active_agents":          len(active),
		"executions_today":       executions,
		"success_rate":           successRate,
		"avg_duration_ms":        avgDuration,
		"tokens_used_today":      tokens,
		"estimated_cost_today":   float64(costHundredths) / 10000,
		"agent_type_breakdown":   breakdown,
	})
}

type timelineEntry struct {
	Timestamp         string  `json:"timestamp"`
	Executions        int64   `json:"executions"`
	Tokens            int64   `json:"tokens"`
	Cost              float64 `json:"cost"`
	AvgDurationMS     float64 `json:"avg_duration_ms"`
	AgentTypesCount   int     `json:"agent_types_count"`
	DominantAgentType string  `json:"dominant_agent_type"`
}

func (s *server) metricsTimeline(w http.ResponseWriter, r *http.Request) {
	start, end := timeRange(r)
	hourly, err := s.d.Metrics.HourlyBuckets(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	type acc struct {
		executions, tokens, costHundredths, duration int64
		byType                                        map[string]int64
	}
	byHour := map[string]*acc{}
	var order []string
	for _, b := range hourly {
		a, ok := byHour[b.Hour]
		if !ok {
			a = &acc{byType: map[string]int64{}}
			byHour[b.Hour] = a
			order = append(order, b.Hour)
		}
		a.executions += b.Count
		a.tokens += b.TokenSum
		a.costHundredths += b.CostSumHundredths
		a.duration += b.DurationSumMS
		a.byType[b.AgentType] += b.Count
	}
	sort.Strings(order)

	timeline := make([]timelineEntry, 0, len(order))
	for _, hour := range order {
		a := byHour[hour]
		dominant, dominantCount := "", int64(-1)
		for t, c := range a.byType {
			if c > dominantCount {
				dominant, dominantCount = t, c
			}
		}
		avg := 0.0
		if a.executions > 0 {
			avg = float64(a.duration) / float64(a.executions)
		}
		timeline = append(timeline, timelineEntry{
			Timestamp:         hour,
			Executions:        a.executions,
			Tokens:            a.tokens,
			Cost:              float64(a.costHundredths) / 10000,
			AvgDurationMS:     avg,
			AgentTypesCount:   len(a.byType),
			DominantAgentType: dominant,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"timeline": timeline})
}

type typeDistributionEntry struct {
	Type          string   `json:"type"`
	Count         int64    `json:"count"`
	Percentage    float64  `json:"percentage"`
	AvgDurationMS float64  `json:"avg_duration_ms"`
	SuccessRate   float64  `json:"success_rate"`
	CommonTools   []string `json:"common_tools"`
}

func (s *server) typesDistribution(w http.ResponseWriter, r *http.Request) {
	start, end := timeRange(r)
	records, err := s.d.Store.MetricRecords(r.Context(), start, end)
	if err != nil {
		writeError(w, &sentinel.PersistenceError{Op: "MetricRecords", Err: err})
		return
	}

	type acc struct {
		count, success, duration int64
		tools                    map[string]int64
	}
	byType := map[string]*acc{}
	var total int64
	for _, rec := range records {
		a, ok := byType[rec.AgentType]
		if !ok {
			a = &acc{tools: map[string]int64{}}
			byType[rec.AgentType] = a
		}
		a.count++
		a.duration += rec.DurationMS
		if rec.Success {
			a.success++
		}
		if rec.ToolName != "" {
			a.tools[rec.ToolName]++
		}
		total++
	}

	dist := make([]typeDistributionEntry, 0, len(byType))
	for t, a := range byType {
		pct := 0.0
		if total > 0 {
			pct = float64(a.count) / float64(total)
		}
		avg := 0.0
		if a.count > 0 {
			avg = float64(a.duration) / float64(a.count)
		}
		sr := 0.0
		if a.count > 0 {
			sr = float64(a.success) / float64(a.count)
		}
		dist = append(dist, typeDistributionEntry{
			Type: t, Count: a.count, Percentage: pct, AvgDurationMS: avg,
			SuccessRate: sr, CommonTools: topTools(a.tools, 5),
		})
	}
	sort.Slice(dist, func(i, j int) bool { return dist[i].Count > dist[j].Count })
	writeJSON(w, http.StatusOK, map[string]any{"distribution": dist})
}

func topTools(tools map[string]int64, n int) []string {
	type kv struct {
		k string
		v int64
	}
	kvs := make([]kv, 0, len(tools))
	for k, v := range tools {
		kvs = append(kvs, kv{k, v})
	}
	sort.Slice(kvs, func(i, j int) bool { return kvs[i].v > kvs[j].v })
	if len(kvs) > n {
		kvs = kvs[:n]
	}
	out := make([]string, len(kvs))
	for i, e := range kvs {
		out[i] = e.k
	}
	return out
}

type toolUsageEntry struct {
	Name             string  `json:"name"`
	UsageCount       int64   `json:"usage_count"`
	Percentage       float64 `json:"percentage"`
	AgentTypesUsing  int     `json:"agent_types_using"`
	AvgPerExecution  float64 `json:"avg_per_execution"`
}

func (s *server) toolsUsage(w http.ResponseWriter, r *http.Request) {
	start, end := timeRange(r)
	buckets, err := s.d.Metrics.ToolUsage(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	type acc struct {
		count int64
		agents map[string]struct{}
	}
	byTool := map[string]*acc{}
	var total int64
	for _, b := range buckets {
		a, ok := byTool[b.ToolName]
		if !ok {
			a = &acc{agents: map[string]struct{}{}}
			byTool[b.ToolName] = a
		}
		a.count += b.UsageCount
		for agent := range b.UniqueAgents {
			a.agents[agent] = struct{}{}
		}
		total += b.UsageCount
	}

	tools := make([]toolUsageEntry, 0, len(byTool))
	var mostUsed, leastUsed string
	var mostCount, leastCount int64 = -1, -1
	for name, a := range byTool {
		pct := 0.0
		if total > 0 {
			pct = float64(a.count) / float64(total) * 100
		}
		avg := 0.0
		if len(a.agents) > 0 {
			avg = float64(a.count) / float64(len(a.agents))
		}
		tools = append(tools, toolUsageEntry{
			Name: name, UsageCount: a.count, Percentage: pct,
			AgentTypesUsing: len(a.agents), AvgPerExecution: avg,
		})
		if a.count > mostCount {
			mostUsed, mostCount = name, a.count
		}
		if leastCount == -1 || a.count < leastCount {
			leastUsed, leastCount = name, a.count
		}
	}
	sort.Slice(tools, func(i, j int) bool { return tools[i].UsageCount > tools[j].UsageCount })

	writeJSON(w, http.StatusOK, map[string]any{
		"period": map[string]int64{"start": start, "end": end},
		"tools":  tools,
		"insights": map[string]any{
			"most_used_tool":   mostUsed,
			"least_used_tool":  leastUsed,
			"total_unique_tools": len(byTool),
		},
	})
}

type agentStartRequestBody struct {
	AgentName       string   `json:"agent_name"`
	AgentType       string   `json:"agent_type"`
	SessionID       string   `json:"session_id"`
	TaskDescription string   `json:"task_description"`
	ToolsGranted    []string `json:"tools_granted"`
	SourceApp       string   `json:"source_app"`
	Timestamp       int64    `json:"timestamp"`
}

func (s *server) agentStart(w http.ResponseWriter, r *http.Request) {
	var req agentStartRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	id, err := s.d.Metrics.MarkAgentStarted(r.Context(), sentinel.AgentStartRequest{
		AgentName: req.AgentName, AgentType: req.AgentType, SessionID: req.SessionID,
		TaskDescription: req.TaskDescription, ToolsGranted: req.ToolsGranted,
		SourceApp: req.SourceApp, Timestamp: req.Timestamp,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"agent_id": id})
}

type agentCompleteRequestBody struct {
	AgentID    string              `json:"agent_id"`
	Success    bool                `json:"success"`
	DurationMS int64               `json:"duration_ms"`
	TokenUsage sentinel.TokenUsage `json:"token_usage"`
	ToolsUsed  []string            `json:"tools_used"`
	Timestamp  int64               `json:"timestamp"`
}

func (s *server) agentComplete(w http.ResponseWriter, r *http.Request) {
	var req agentCompleteRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &sentinel.ValidationError{Field: "body", Message: "malformed JSON"})
		return
	}
	if err := s.d.Metrics.MarkAgentCompleted(r.Context(), sentinel.AgentCompleteRequest{
		AgentID: req.AgentID, Success: req.Success, DurationMS: req.DurationMS,
		TokenUsage: req.TokenUsage, ToolsUsed: req.ToolsUsed, Timestamp: req.Timestamp,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
