// Package store persists report artifacts, insights, and friction events to
// SQLite. Persistence is strictly best-effort: every caller treats a write
// failure as a log line, never as pipeline state.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"cogniscope/internal/analyzer"
	"cogniscope/internal/protocol"
)

// Store provides SQLite-backed persistence for cogniscope artifacts.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if necessary) the artifact database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// initialize creates the schema.
func (s *Store) initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS reports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			host TEXT,
			generated_at DATETIME NOT NULL,
			range_start DATETIME,
			range_end DATETIME,
			payload TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS insights (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			details TEXT,
			recommendation TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create insights table: %w", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS friction_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			method TEXT NOT NULL,
			calls INTEGER NOT NULL,
			errors INTEGER NOT NULL,
			error_rate REAL NOT NULL,
			range_start DATETIME,
			range_end DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create friction_events table: %w", err)
	}
	return nil
}

// SaveTraceReport persists a trace report and its friction points.
func (s *Store) SaveTraceReport(r *analyzer.TraceReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal trace report: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO reports (kind, host, generated_at, range_start, range_end, payload)
		 VALUES ('trace', '', ?, ?, ?, ?)`,
		r.GeneratedAt, r.Range.Start, r.Range.End, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save trace report: %w", err)
	}

	for _, fp := range r.FrictionPoints {
		_, err = s.db.Exec(
			`INSERT INTO friction_events (method, calls, errors, error_rate, range_start, range_end)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			fp.Method, fp.Calls, fp.Errors, fp.ErrorRate, r.Range.Start, r.Range.End)
		if err != nil {
			return fmt.Errorf("failed to save friction event: %w", err)
		}
	}
	return nil
}

// SaveUsabilityReport persists a usability report.
func (s *Store) SaveUsabilityReport(r *analyzer.UsabilityReport) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal usability report: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO reports (kind, host, generated_at, range_start, range_end, payload)
		 VALUES ('usability', ?, ?, ?, ?, ?)`,
		r.Host, r.GeneratedAt, r.Range.Start, r.Range.End, string(payload))
	if err != nil {
		return fmt.Errorf("failed to save usability report: %w", err)
	}
	return nil
}

// SaveInsight persists an emitted insight.
func (s *Store) SaveInsight(ins protocol.Insight) error {
	details := ""
	if len(ins.Details) > 0 {
		if b, err := json.Marshal(ins.Details); err == nil {
			details = string(b)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO insights (type, severity, message, details, recommendation)
		 VALUES (?, ?, ?, ?, ?)`,
		ins.Type, ins.Severity, ins.Message, details, ins.Recommendation)
	if err != nil {
		return fmt.Errorf("failed to save insight: %w", err)
	}
	return nil
}

// StoredReport is one persisted report row.
type StoredReport struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	Host        string    `json:"host,omitempty"`
	GeneratedAt time.Time `json:"generated_at"`
	Payload     string    `json:"payload"`
}

// ListReports returns the most recent reports of the given kind, newest
// first. kind may be empty to list all kinds.
func (s *Store) ListReports(kind string, limit int) ([]StoredReport, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, kind, host, generated_at, payload FROM reports`
	args := []interface{}{}
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var out []StoredReport
	for rows.Next() {
		var r StoredReport
		if err := rows.Scan(&r.ID, &r.Kind, &r.Host, &r.GeneratedAt, &r.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentInsights returns the most recent persisted insights, newest first.
func (s *Store) RecentInsights(limit int) ([]protocol.Insight, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT type, severity, message, details, recommendation
		 FROM insights ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query insights: %w", err)
	}
	defer rows.Close()

	var out []protocol.Insight
	for rows.Next() {
		var ins protocol.Insight
		var details string
		if err := rows.Scan(&ins.Type, &ins.Severity, &ins.Message, &details, &ins.Recommendation); err != nil {
			return nil, fmt.Errorf("failed to scan insight: %w", err)
		}
		if details != "" {
			_ = json.Unmarshal([]byte(details), &ins.Details)
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
