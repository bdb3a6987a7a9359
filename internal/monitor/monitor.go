// Package monitor wires the interception-and-scoring pipeline together:
// discovered sources feed the interceptor, raw chunks flow through the
// reassembler (stdout) and the fallback scanner (stderr), completed frames
// enter the bus, and the bus drives the analyzer and external observers.
package monitor

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cogniscope/internal/analyzer"
	"cogniscope/internal/bus"
	"cogniscope/internal/config"
	"cogniscope/internal/intercept"
	"cogniscope/internal/protocol"
	"cogniscope/internal/sink"
)

// Status is the top-level view a caller gets from Status(). Always
// well-formed, degraded rather than absent on partial failure.
type Status struct {
	IsRunning        bool    `json:"is_running"`
	MessageCount     uint64  `json:"message_count"`
	InteractionCount int     `json:"interaction_count"`
	CognitiveLoad    float64 `json:"cognitive_load"`
	ActiveSources    int     `json:"active_sources"`
	SpawnFailures    int     `json:"spawn_failures"`
}

// Monitor owns the full pipeline and exposes the public surface.
type Monitor struct {
	mu sync.Mutex

	cfg         *config.Config
	log         *zap.Logger
	interceptor *intercept.Interceptor
	reassembler *intercept.Reassembler
	registry    *intercept.ToolRegistry
	scanner     *intercept.ActivityScanner
	bus         *bus.MessageBus
	analyzer    *analyzer.Analyzer

	// ingestMu serializes frame ingestion so messages reach the analyzer
	// in the order their frames were completed, globally.
	ingestMu sync.Mutex

	running bool
}

// New builds a monitor. store may be nil to disable persistence; sinks may
// be nil.
func New(cfg *config.Config, store analyzer.ReportStore, insights sink.InsightSink, log *zap.Logger) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	m := &Monitor{
		cfg:         cfg,
		log:         log,
		reassembler: intercept.NewReassembler(cfg.Retention.ReassemblyBufferMax, log),
		registry:    intercept.NewToolRegistry(),
	}
	m.scanner = intercept.NewActivityScanner(m.registry, cfg.Rules.WellKnownMethods)

	var history analyzer.MessageSource
	m.bus = bus.NewMessageBus(cfg.Retention.MessageHistory, nil, log)
	history = m.bus

	m.analyzer = analyzer.New(cfg, history, store, log)
	m.bus.SetHandler(m.analyzer)

	if insights != nil {
		m.analyzer.OnInsight(func(ins protocol.Insight) {
			insights.SendInsight(ins)
		})
	}

	m.interceptor = intercept.NewInterceptor(m.handleChunk, log)
	return m
}

// handleChunk routes raw stream chunks: stdout is reassembled directly;
// stderr is line-buffered and then scanned, since servers interleave
// protocol frames with arbitrary console output there.
func (m *Monitor) handleChunk(host, server string, stream protocol.StreamKind, chunk []byte) {
	if stream == protocol.StreamStdout {
		for _, frame := range m.reassembler.Push(host, server, stream, chunk) {
			m.ingestFrame(host, server, frame)
		}
		return
	}

	// Fallback path: the reassembler still cuts lines, but lines that are
	// not clean frames go through the scanner.
	frames := m.reassembler.Push(host, server, stream, chunk)
	if len(frames) == 0 {
		frames = m.scanner.Scan(host, server, string(chunk))
	}
	for _, frame := range frames {
		m.ingestFrame(host, server, frame)
	}
}

// ingestFrame updates the tool registry and pushes the frame onto the bus.
func (m *Monitor) ingestFrame(host, server string, frame *protocol.Frame) {
	m.ingestMu.Lock()
	defer m.ingestMu.Unlock()

	m.registry.UpdateFromFrame(host, server, frame)
	m.bus.Accept(protocol.NewMessage(host, server, frame))
}

// Start spawns the given sources and begins scoring. No-op when already
// running. Per-source spawn failures are contained and reflected in Status.
func (m *Monitor) Start(ctx context.Context, sources []intercept.Source) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.running = true
	m.mu.Unlock()

	m.bus.Start()
	m.analyzer.Start()
	return m.interceptor.Start(ctx, sources)
}

// Stop terminates all sources and idles the pipeline. Safe to call
// multiple times.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.interceptor.Stop()
	m.analyzer.Stop()
	m.bus.Stop()
	m.log.Info("Monitor stopped")
}

// AnalyzeMessage injects an already-parsed frame directly, bypassing
// capture. Invalid frames are dropped silently, matching the framing-noise
// policy.
func (m *Monitor) AnalyzeMessage(frame *protocol.Frame, host, server string) {
	if frame == nil || !frame.Valid() {
		return
	}
	m.ingestFrame(host, server, frame)
}

// Status reports the pipeline state. Always well-formed.
func (m *Monitor) Status() Status {
	active, failures := m.interceptor.Stats()
	return Status{
		IsRunning:        m.analyzer.Running(),
		MessageCount:     m.bus.Status().MessageCount,
		InteractionCount: m.analyzer.InteractionCount(),
		CognitiveLoad:    m.analyzer.Score().Overall,
		ActiveSources:    active,
		SpawnFailures:    failures,
	}
}

// RecentMessages returns a read-only snapshot of the most recent messages.
func (m *Monitor) RecentMessages(limit int) []protocol.InterceptedMessage {
	return m.bus.Recent(limit)
}

// OnInsight subscribes a callback to friction insights.
func (m *Monitor) OnInsight(fn analyzer.InsightFunc) {
	m.analyzer.OnInsight(fn)
}

// Subscribe attaches an external observer to the message stream. Delivery
// is non-blocking; a stalled observer only loses its own messages.
func (m *Monitor) Subscribe() <-chan protocol.InterceptedMessage {
	return m.bus.Subscribe()
}

// Score returns the current rolling score set.
func (m *Monitor) Score() analyzer.ScoreComponents {
	return m.analyzer.Score()
}

// GenerateTraceReport aggregates traffic within the range (default last
// 24 hours).
func (m *Monitor) GenerateTraceReport(rng analyzer.TimeRange) *analyzer.TraceReport {
	return m.analyzer.GenerateTraceReport(rng)
}

// GenerateUsabilityReport produces the host-scoped usability view.
func (m *Monitor) GenerateUsabilityReport(host string, rng analyzer.TimeRange) *analyzer.UsabilityReport {
	return m.analyzer.GenerateUsabilityReport(host, rng)
}

// Registry exposes the advisory tool registry.
func (m *Monitor) Registry() *intercept.ToolRegistry {
	return m.registry
}
