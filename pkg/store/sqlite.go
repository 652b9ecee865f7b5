package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// Store is the SQLite report archive.
type Store struct {
	db *sql.DB
}

var _ ReportStore = (*Store)(nil)

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	// Listing columns are denormalised; the full report lives in the JSON
	// columns.
	query := `
	CREATE TABLE IF NOT EXISTS reports (
		report_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		note TEXT,

		primary_cause TEXT,
		cause_count INTEGER NOT NULL,
		step_count INTEGER NOT NULL,
		dump_key TEXT,

		summary JSON NOT NULL,
		causes JSON NOT NULL,
		plan JSON NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reports_created_at ON reports(created_at);
	CREATE INDEX IF NOT EXISTS idx_reports_run_id ON reports(run_id);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create reports table: %w", err)
	}
	return nil
}

// SaveReport inserts or replaces a report.
func (s *Store) SaveReport(ctx context.Context, r Report) error {
	if r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	summary, err := json.Marshal(r.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}
	causes, err := json.Marshal(r.Causes)
	if err != nil {
		return fmt.Errorf("failed to marshal causes: %w", err)
	}
	plan, err := json.Marshal(r.Plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	m := r.Meta()
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO reports (
			report_id, run_id, created_at, note,
			primary_cause, cause_count, step_count, dump_key,
			summary, causes, plan
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.RunID, r.CreatedAt.UTC(), r.Note,
		string(m.PrimaryCause), m.CauseCount, m.StepCount, r.DumpKey,
		string(summary), string(causes), string(plan))
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return nil
}

// GetReport loads a full report.
func (s *Store) GetReport(ctx context.Context, id string) (*Report, error) {
	var (
		r                     Report
		note, dumpKey         sql.NullString
		summary, causes, plan string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT report_id, run_id, created_at, note, dump_key, summary, causes, plan
		FROM reports WHERE report_id = ?
	`, id).Scan(&r.ID, &r.RunID, &r.CreatedAt, &note, &dumpKey, &summary, &causes, &plan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrReportNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query report: %w", err)
	}
	r.Note = note.String
	r.DumpKey = dumpKey.String

	if err := json.Unmarshal([]byte(summary), &r.Summary); err != nil {
		return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
	}
	if err := json.Unmarshal([]byte(causes), &r.Causes); err != nil {
		return nil, fmt.Errorf("failed to unmarshal causes: %w", err)
	}
	if err := json.Unmarshal([]byte(plan), &r.Plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal plan: %w", err)
	}
	return &r, nil
}

// ListReports returns report metadata, newest first.
func (s *Store) ListReports(ctx context.Context, filter ReportFilter) ([]ReportMeta, error) {
	query := `
		SELECT report_id, run_id, created_at, note, primary_cause, cause_count, step_count
		FROM reports`
	var args []interface{}
	if filter.RunID != "" {
		query += ` WHERE run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC, report_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	out := make([]ReportMeta, 0)
	for rows.Next() {
		var (
			m           ReportMeta
			note, cause sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.RunID, &m.CreatedAt, &note, &cause, &m.CauseCount, &m.StepCount); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		m.Note = note.String
		m.PrimaryCause = graph.EntityID(cause.String)
		out = append(out, m)
	}
	return out, rows.Err()
}

// PruneReports deletes reports created before the cutoff.
func (s *Store) PruneReports(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune reports: %w", err)
	}
	return res.RowsAffected()
}
