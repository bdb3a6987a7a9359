// Package sink defines the outbound integration surface: anything that
// wants computed insights or alerts implements InsightSink. Delivery is
// best-effort and fire-and-forget; the core owns no retry or ack contract.
package sink

import (
	"go.uber.org/zap"

	"cogniscope/internal/protocol"
)

// InsightSink receives friction insights and alerts from the analyzer.
type InsightSink interface {
	SendInsight(ins protocol.Insight)
	SendAlert(alert protocol.AlertData)
}

// LogSink writes insights and alerts to the structured log.
type LogSink struct {
	log *zap.Logger
}

// NewLogSink creates a sink logging at Info level.
func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) SendInsight(ins protocol.Insight) {
	s.log.Info("Insight",
		zap.String("type", ins.Type),
		zap.String("severity", ins.Severity),
		zap.String("message", ins.Message),
		zap.Any("details", ins.Details))
}

func (s *LogSink) SendAlert(alert protocol.AlertData) {
	s.log.Warn("Alert",
		zap.String("title", alert.Title),
		zap.String("severity", alert.Severity),
		zap.String("host", alert.Host),
		zap.String("server", alert.Server))
}

// InsightSaver is the slice of the persistence layer a StoreSink needs.
type InsightSaver interface {
	SaveInsight(ins protocol.Insight) error
}

// StoreSink persists insights. Alerts are transient and are not stored.
// Save failures are logged and swallowed.
type StoreSink struct {
	saver InsightSaver
	log   *zap.Logger
}

func NewStoreSink(saver InsightSaver, log *zap.Logger) *StoreSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &StoreSink{saver: saver, log: log}
}

func (s *StoreSink) SendInsight(ins protocol.Insight) {
	if err := s.saver.SaveInsight(ins); err != nil {
		s.log.Warn("Insight persistence failed", zap.Error(err))
	}
}

func (s *StoreSink) SendAlert(protocol.AlertData) {}

// MultiSink fans out to several sinks. A nil or panicking member must not
// affect the others, so each delivery is isolated.
type MultiSink struct {
	sinks []InsightSink
}

// NewMultiSink creates a fan-out sink. Nil members are dropped.
func NewMultiSink(sinks ...InsightSink) *MultiSink {
	kept := make([]InsightSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiSink{sinks: kept}
}

func (m *MultiSink) SendInsight(ins protocol.Insight) {
	for _, s := range m.sinks {
		deliver(func() { s.SendInsight(ins) })
	}
}

func (m *MultiSink) SendAlert(alert protocol.AlertData) {
	for _, s := range m.sinks {
		deliver(func() { s.SendAlert(alert) })
	}
}

func deliver(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

var _ InsightSink = (*LogSink)(nil)
var _ InsightSink = (*StoreSink)(nil)
var _ InsightSink = (*MultiSink)(nil)
