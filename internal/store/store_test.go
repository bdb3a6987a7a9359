package store

import (
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cogniscope/internal/analyzer"
	"cogniscope/internal/protocol"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cogniscope.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreTraceReportRoundTrip(t *testing.T) {
	s := newTestStore(t)

	report := &analyzer.TraceReport{
		GeneratedAt:       time.Now(),
		Range:             analyzer.TimeRange{Start: time.Now().Add(-time.Hour), End: time.Now()},
		TotalMessages:     42,
		TotalInteractions: 7,
		SuccessRate:       0.71,
		FrictionPoints: []analyzer.FrictionPoint{
			{Method: "tools/call", Calls: 7, Errors: 3, ErrorRate: 0.43},
		},
	}
	if err := s.SaveTraceReport(report); err != nil {
		t.Fatalf("SaveTraceReport failed: %v", err)
	}

	reports, err := s.ListReports("trace", 10)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 1 {
		t.Fatalf("got %d reports, want 1", len(reports))
	}
	if reports[0].Kind != "trace" {
		t.Fatalf("kind = %q", reports[0].Kind)
	}
	if reports[0].Payload == "" {
		t.Fatal("payload empty")
	}
}

func TestStoreUsabilityReportListedByKind(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveUsabilityReport(&analyzer.UsabilityReport{
		Host:        "cursor",
		GeneratedAt: time.Now(),
		Strengths:   []string{"reliable"},
	}); err != nil {
		t.Fatalf("SaveUsabilityReport failed: %v", err)
	}

	reports, err := s.ListReports("usability", 10)
	if err != nil {
		t.Fatalf("ListReports failed: %v", err)
	}
	if len(reports) != 1 || reports[0].Host != "cursor" {
		t.Fatalf("reports = %+v", reports)
	}

	if none, err := s.ListReports("trace", 10); err != nil || len(none) != 0 {
		t.Fatalf("kind filter leaked: %v %+v", err, none)
	}
}

func TestStoreInsightRoundTrip(t *testing.T) {
	s := newTestStore(t)

	ins := protocol.Insight{
		Type:           protocol.InsightRetryPattern,
		Severity:       protocol.SeverityHigh,
		Message:        "Repeated calls to tools/call",
		Details:        map[string]interface{}{"method": "tools/call"},
		Recommendation: "check the tool output",
	}
	if err := s.SaveInsight(ins); err != nil {
		t.Fatalf("SaveInsight failed: %v", err)
	}

	got, err := s.RecentInsights(5)
	if err != nil {
		t.Fatalf("RecentInsights failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d insights, want 1", len(got))
	}
	if got[0].Type != ins.Type || got[0].Message != ins.Message {
		t.Fatalf("insight = %+v", got[0])
	}
	if got[0].Details["method"] != "tools/call" {
		t.Fatalf("details = %+v", got[0].Details)
	}
}
