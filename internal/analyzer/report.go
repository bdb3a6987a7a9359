package analyzer

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"cogniscope/internal/protocol"
)

// TimeRange bounds a report. Zero values mean "last 24 hours ending now".
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// MethodCount is one entry of a method frequency table.
type MethodCount struct {
	Method string `json:"method"`
	Count  int    `json:"count"`
}

// FrictionPoint is a method whose error rate within the report range
// exceeds the configured threshold.
type FrictionPoint struct {
	Method    string  `json:"method"`
	Calls     int     `json:"calls"`
	Errors    int     `json:"errors"`
	ErrorRate float64 `json:"error_rate"`
}

// TraceReport summarizes traffic and interaction quality over a range.
type TraceReport struct {
	GeneratedAt       time.Time       `json:"generated_at"`
	Range             TimeRange       `json:"range"`
	TotalMessages     int             `json:"total_messages"`
	TotalInteractions int             `json:"total_interactions"`
	AvgCognitiveLoad  float64         `json:"avg_cognitive_load"`
	SuccessRate       float64         `json:"success_rate"`
	TopMethods        []MethodCount   `json:"top_methods"`
	ServersTouched    []string        `json:"servers_touched"`
	AvgLatencyMs      float64         `json:"avg_latency_ms"`
	FrictionPoints    []FrictionPoint `json:"friction_points"`
}

// UsabilityReport is a host-scoped view combining the rolling score with
// template-selected findings.
type UsabilityReport struct {
	Host            string          `json:"host"`
	GeneratedAt     time.Time       `json:"generated_at"`
	Range           TimeRange       `json:"range"`
	Score           ScoreComponents `json:"score"`
	Strengths       []string        `json:"strengths"`
	Weaknesses      []string        `json:"weaknesses"`
	Recommendations []string        `json:"recommendations"`
	Comparison      string          `json:"comparison"`
}

// resolve fills in the default last-24h range.
func (r TimeRange) resolve(now time.Time) TimeRange {
	if r.End.IsZero() {
		r.End = now
	}
	if r.Start.IsZero() {
		r.Start = r.End.Add(-24 * time.Hour)
	}
	return r
}

func (r TimeRange) contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

// GenerateTraceReport aggregates messages and interactions within the
// range. The caller always gets a well-formed report; persistence failures
// are logged and swallowed.
func (a *Analyzer) GenerateTraceReport(rng TimeRange) *TraceReport {
	a.mu.Lock()
	now := a.now()
	rng = rng.resolve(now)

	interactions := make([]Interaction, 0, len(a.interactions))
	for _, in := range a.interactions {
		if rng.contains(in.EndTime) {
			interactions = append(interactions, in)
		}
	}
	history := a.history
	store := a.store
	a.mu.Unlock()

	report := &TraceReport{
		GeneratedAt: now,
		Range:       rng,
	}

	var messages []protocol.InterceptedMessage
	if history != nil {
		for _, msg := range history.Recent(0) {
			if rng.contains(msg.Timestamp) {
				messages = append(messages, msg)
			}
		}
	}
	report.TotalMessages = len(messages)
	report.TotalInteractions = len(interactions)

	methodCounts := make(map[string]int)
	servers := make(map[string]struct{})
	var latencySum float64
	var latencyCount int
	for _, msg := range messages {
		if msg.Payload != nil && msg.Payload.Method != "" {
			methodCounts[msg.Payload.Method]++
		}
		servers[msg.Server] = struct{}{}
		if msg.LatencyMs > 0 {
			latencySum += float64(msg.LatencyMs)
			latencyCount++
		}
	}

	var loadSum float64
	successes := 0
	interactionErrors := make(map[string]int)
	interactionCalls := make(map[string]int)
	for _, in := range interactions {
		loadSum += in.CognitiveLoad
		if in.SuccessRate >= 1 {
			successes++
		}
		if in.Method != "" {
			interactionCalls[in.Method]++
			if in.SuccessRate < 1 {
				interactionErrors[in.Method]++
			}
		}
		if in.DurationMs > 0 {
			latencySum += float64(in.DurationMs)
			latencyCount++
		}
	}
	if len(interactions) > 0 {
		report.AvgCognitiveLoad = loadSum / float64(len(interactions))
		report.SuccessRate = float64(successes) / float64(len(interactions))
	}
	if latencyCount > 0 {
		report.AvgLatencyMs = latencySum / float64(latencyCount)
	}

	for m, c := range methodCounts {
		report.TopMethods = append(report.TopMethods, MethodCount{Method: m, Count: c})
	}
	sort.Slice(report.TopMethods, func(i, j int) bool {
		if report.TopMethods[i].Count != report.TopMethods[j].Count {
			return report.TopMethods[i].Count > report.TopMethods[j].Count
		}
		return report.TopMethods[i].Method < report.TopMethods[j].Method
	})
	if len(report.TopMethods) > 5 {
		report.TopMethods = report.TopMethods[:5]
	}

	for s := range servers {
		report.ServersTouched = append(report.ServersTouched, s)
	}
	sort.Strings(report.ServersTouched)

	for method, calls := range interactionCalls {
		errors := interactionErrors[method]
		rate := float64(errors) / float64(calls)
		if rate > a.rules.FrictionErrorRate {
			report.FrictionPoints = append(report.FrictionPoints, FrictionPoint{
				Method:    method,
				Calls:     calls,
				Errors:    errors,
				ErrorRate: rate,
			})
		}
	}
	sort.Slice(report.FrictionPoints, func(i, j int) bool {
		return report.FrictionPoints[i].ErrorRate > report.FrictionPoints[j].ErrorRate
	})

	if store != nil {
		if err := store.SaveTraceReport(report); err != nil {
			a.log.Warn("Failed to persist trace report", zap.Error(err))
		}
	}
	return report
}

// GenerateUsabilityReport produces a host-scoped report with findings
// selected by fixed error-rate and latency rules.
func (a *Analyzer) GenerateUsabilityReport(host string, rng TimeRange) *UsabilityReport {
	a.mu.Lock()
	now := a.now()
	rng = rng.resolve(now)
	score := a.score

	calls := 0
	errors := 0
	var latencySum float64
	var latencyCount int
	for _, in := range a.interactions {
		if in.Host != host || !rng.contains(in.EndTime) {
			continue
		}
		calls++
		if in.SuccessRate < 1 {
			errors++
		}
		if in.DurationMs > 0 {
			latencySum += float64(in.DurationMs)
			latencyCount++
		}
	}
	store := a.store
	a.mu.Unlock()

	report := &UsabilityReport{
		Host:        host,
		GeneratedAt: now,
		Range:       rng,
		Score:       score,
		Comparison:  "no baseline captured yet",
	}

	errorRate := 0.0
	if calls > 0 {
		errorRate = float64(errors) / float64(calls)
	}
	avgLatency := 0.0
	if latencyCount > 0 {
		avgLatency = latencySum / float64(latencyCount)
	}

	switch {
	case calls == 0:
		report.Weaknesses = append(report.Weaknesses,
			"no tool interactions observed for this host in the selected range")
		report.Recommendations = append(report.Recommendations,
			"verify the host configuration is discovered and its servers are running")
	case errorRate <= 0.05:
		report.Strengths = append(report.Strengths,
			fmt.Sprintf("tool calls are reliable (%.0f%% success)", (1-errorRate)*100))
	case errorRate > 0.25:
		report.Weaknesses = append(report.Weaknesses,
			fmt.Sprintf("high tool error rate (%.0f%%)", errorRate*100))
		report.Recommendations = append(report.Recommendations,
			"review the failing servers' credentials and configuration")
	default:
		report.Weaknesses = append(report.Weaknesses,
			fmt.Sprintf("intermittent tool errors (%.0f%%)", errorRate*100))
	}

	switch {
	case calls > 0 && avgLatency > 0 && avgLatency <= 500:
		report.Strengths = append(report.Strengths,
			fmt.Sprintf("responsive tools (avg %.0f ms)", avgLatency))
	case avgLatency > 2000:
		report.Weaknesses = append(report.Weaknesses,
			fmt.Sprintf("slow tool responses (avg %.0f ms)", avgLatency))
		report.Recommendations = append(report.Recommendations,
			"consider caching or splitting slow tools")
	}

	if score.RetryFrustration >= 60 {
		report.Weaknesses = append(report.Weaknesses,
			"the agent retries the same methods frequently")
		report.Recommendations = append(report.Recommendations,
			"improve tool descriptions or error messages so the agent can self-correct")
	}
	if score.Overall < 40 && calls > 0 {
		report.Strengths = append(report.Strengths,
			"overall cognitive load is low")
	}

	if store != nil {
		if err := store.SaveUsabilityReport(report); err != nil {
			a.log.Warn("Failed to persist usability report", zap.Error(err))
		}
	}
	return report
}
