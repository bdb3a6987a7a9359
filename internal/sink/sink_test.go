package sink

import (
	"errors"
	"sync"
	"testing"

	"cogniscope/internal/protocol"
)

type countingSink struct {
	mu       sync.Mutex
	insights int
	alerts   int
}

func (c *countingSink) SendInsight(protocol.Insight) {
	c.mu.Lock()
	c.insights++
	c.mu.Unlock()
}

func (c *countingSink) SendAlert(protocol.AlertData) {
	c.mu.Lock()
	c.alerts++
	c.mu.Unlock()
}

type panickySink struct{}

func (panickySink) SendInsight(protocol.Insight) { panic("broken sink") }
func (panickySink) SendAlert(protocol.AlertData) { panic("broken sink") }

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := NewMultiSink(a, nil, b)

	m.SendInsight(protocol.Insight{Type: protocol.InsightRetryPattern})
	m.SendAlert(protocol.AlertData{Title: "x"})

	if a.insights != 1 || b.insights != 1 {
		t.Fatalf("insights = %d/%d, want 1/1", a.insights, b.insights)
	}
	if a.alerts != 1 || b.alerts != 1 {
		t.Fatalf("alerts = %d/%d, want 1/1", a.alerts, b.alerts)
	}
}

type fakeSaver struct {
	saved int
	err   error
}

func (f *fakeSaver) SaveInsight(protocol.Insight) error {
	f.saved++
	return f.err
}

func TestStoreSinkPersistsInsights(t *testing.T) {
	saver := &fakeSaver{}
	s := NewStoreSink(saver, nil)

	s.SendInsight(protocol.Insight{Type: protocol.InsightRetryPattern})
	s.SendAlert(protocol.AlertData{Title: "ignored"})

	if saver.saved != 1 {
		t.Fatalf("saved = %d, want 1 (alerts are not persisted)", saver.saved)
	}
}

func TestStoreSinkSwallowsSaveFailure(t *testing.T) {
	saver := &fakeSaver{err: errors.New("disk full")}
	s := NewStoreSink(saver, nil)

	s.SendInsight(protocol.Insight{Type: protocol.InsightErrorPattern})

	if saver.saved != 1 {
		t.Fatalf("saved attempts = %d, want 1", saver.saved)
	}
}

func TestMultiSinkIsolatesPanickingMember(t *testing.T) {
	healthy := &countingSink{}
	m := NewMultiSink(panickySink{}, healthy)

	m.SendInsight(protocol.Insight{Type: protocol.InsightErrorPattern})

	if healthy.insights != 1 {
		t.Fatalf("healthy sink got %d deliveries, want 1", healthy.insights)
	}
}
