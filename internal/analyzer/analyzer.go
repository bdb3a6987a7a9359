// Package analyzer computes deterministic cognitive-friction scores from
// intercepted protocol traffic. All scoring is fixed arithmetic over the
// rule tables in config; replaying an identical message sequence always
// yields identical scores.
package analyzer

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"cogniscope/internal/config"
	"cogniscope/internal/protocol"
)

// MessageSource provides a read-only view of retained messages for report
// generation. The message bus implements it.
type MessageSource interface {
	Recent(limit int) []protocol.InterceptedMessage
}

// ReportStore persists report artifacts and insights. All methods are
// best-effort: a persistence failure never affects in-memory state.
type ReportStore interface {
	SaveTraceReport(r *TraceReport) error
	SaveUsabilityReport(r *UsabilityReport) error
	SaveInsight(ins protocol.Insight) error
}

// InsightFunc receives emitted friction insights. Fire-and-forget; the
// analyzer does not care whether anyone is listening.
type InsightFunc func(protocol.Insight)

// Analyzer owns the sliding window, interaction history, and current score.
// It has exactly two states: running and idle. While idle, AnalyzeMessage
// is a no-op. All mutation happens on the single ingestion path; no
// external caller touches the window or history directly.
type Analyzer struct {
	mu sync.Mutex

	running bool
	rules   *config.RulesConfig
	ret     config.RetentionConfig

	traces        []TraceRecord
	recentMethods []string
	interactions  []Interaction
	score         ScoreComponents

	history   MessageSource
	store     ReportStore
	listeners []InsightFunc

	log *zap.Logger
	now func() time.Time
}

// New creates an analyzer with the given rule tables and retention bounds.
// history and store may be nil; reports then cover interactions only and
// nothing is persisted.
func New(cfg *config.Config, history MessageSource, store ReportStore, log *zap.Logger) *Analyzer {
	if log == nil {
		log = zap.NewNop()
	}
	a := &Analyzer{
		rules:   &cfg.Rules,
		ret:     cfg.Retention,
		history: history,
		store:   store,
		log:     log,
		now:     time.Now,
	}
	a.score = computeScores(nil, a.rules)
	return a
}

// Start moves the analyzer to the running state.
func (a *Analyzer) Start() {
	a.mu.Lock()
	a.running = true
	a.mu.Unlock()
	a.log.Info("Analyzer started")
}

// Stop moves the analyzer to idle. Idempotent.
func (a *Analyzer) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	a.mu.Unlock()
	a.log.Info("Analyzer stopped")
}

// Running reports the lifecycle state.
func (a *Analyzer) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

// OnInsight registers a listener for emitted insights.
func (a *Analyzer) OnInsight(fn InsightFunc) {
	if fn == nil {
		return
	}
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// AnalyzeMessage processes one accepted message: builds its trace, derives
// an interaction when the frame bears a result or error, recomputes the
// rolling score from the window, and runs friction-pattern detection.
// Never raises to the caller; while idle it is a no-op.
func (a *Analyzer) AnalyzeMessage(msg protocol.InterceptedMessage) {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}

	trace := newTrace(msg)

	if trace.Type == TraceResponse {
		req := a.lastRequestLocked(trace.Host, trace.Server)
		inter := synthesizeInteraction(trace, req, a.rules)
		a.interactions = append(a.interactions, inter)
		if len(a.interactions) > a.ret.InteractionHistory {
			a.interactions = a.interactions[1:]
		}
	}

	a.traces = append(a.traces, trace)
	if len(a.traces) > a.ret.WindowSize {
		a.traces = a.traces[1:]
	}

	a.score = computeScores(a.traces, a.rules)

	insights := a.detectPatternsLocked(trace)
	listeners := a.listeners
	store := a.store
	a.mu.Unlock()

	for _, ins := range insights {
		for _, fn := range listeners {
			fn(ins)
		}
		if store != nil {
			if err := store.SaveInsight(ins); err != nil {
				a.log.Warn("Failed to persist insight", zap.Error(err))
			}
		}
	}
}

// lastRequestLocked returns the most recent request trace for the given
// (host, server), or nil. Best-effort correlation only.
func (a *Analyzer) lastRequestLocked(host, server string) *TraceRecord {
	for i := len(a.traces) - 1; i >= 0; i-- {
		t := a.traces[i]
		if t.Type == TraceRequest && t.Host == host && t.Server == server {
			req := t
			return &req
		}
	}
	return nil
}

// detectPatternsLocked runs the per-message friction detectors and returns
// the insights to emit.
func (a *Analyzer) detectPatternsLocked(trace TraceRecord) []protocol.Insight {
	var insights []protocol.Insight

	a.recentMethods = append(a.recentMethods, trace.Method)
	if len(a.recentMethods) > a.ret.PatternLookback {
		a.recentMethods = a.recentMethods[1:]
	}

	if trace.Method != "" {
		repeats := 0
		for _, m := range a.recentMethods {
			if m == trace.Method {
				repeats++
			}
		}
		if repeats >= 3 {
			insights = append(insights, protocol.Insight{
				Type:     protocol.InsightRetryPattern,
				Severity: protocol.SeverityHigh,
				Message:  "Repeated calls to " + trace.Method + " suggest the agent is retrying",
				Details: map[string]interface{}{
					"method": trace.Method,
					"host":   trace.Host,
					"server": trace.Server,
					"count":  repeats,
				},
				Recommendation: "Check whether " + trace.Method + " is failing silently or returning unusable output",
			})
		}
	}

	if trace.isError() {
		insights = append(insights, protocol.Insight{
			Type:     protocol.InsightErrorPattern,
			Severity: protocol.SeverityMedium,
			Message:  "Protocol error from " + trace.Server,
			Details: map[string]interface{}{
				"host":    trace.Host,
				"server":  trace.Server,
				"code":    trace.Error.Code,
				"message": trace.Error.Message,
			},
			Recommendation: "Inspect server logs for " + trace.Host + "/" + trace.Server,
		})
	}
	return insights
}

// Score returns the current rolling score set.
func (a *Analyzer) Score() ScoreComponents {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.score
}

// InteractionCount returns the number of retained interactions.
func (a *Analyzer) InteractionCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.interactions)
}

// Interactions returns a copy of the retained interaction history.
func (a *Analyzer) Interactions() []Interaction {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Interaction, len(a.interactions))
	copy(out, a.interactions)
	return out
}

// WindowSnapshot returns a copy of the current sliding window. Test and
// report plumbing only; the window itself is never exposed for mutation.
func (a *Analyzer) WindowSnapshot() []TraceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]TraceRecord, len(a.traces))
	copy(out, a.traces)
	return out
}
