package store

import (
	"context"
	"errors"
	"time"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// ErrReportNotFound is returned when a report id is unknown.
var ErrReportNotFound = errors.New("report not found")

// Report is the archived outcome of one investigation run. Reports are an
// audit trail only; nothing rebuilds a graph from them.
type Report struct {
	ID        string               `json:"id"`
	RunID     string               `json:"run_id"`
	CreatedAt time.Time            `json:"created_at"`
	Note      string               `json:"note,omitempty"`
	Summary   graph.Summary        `json:"summary"`
	Causes    []engine.RankedCause `json:"causes"`
	Plan      engine.Plan          `json:"plan"`
	// DumpKey locates the text dump in the blob store, if one was archived.
	DumpKey string `json:"dump_key,omitempty"`
}

// PrimaryCause returns the top-ranked entity, or "" when nothing was ranked.
func (r Report) PrimaryCause() graph.EntityID {
	if len(r.Causes) == 0 {
		return ""
	}
	return r.Causes[0].EntityID
}

// ReportMeta is the listing view of a report.
type ReportMeta struct {
	ID           string         `json:"id"`
	RunID        string         `json:"run_id"`
	CreatedAt    time.Time      `json:"created_at"`
	PrimaryCause graph.EntityID `json:"primary_cause,omitempty"`
	CauseCount   int            `json:"cause_count"`
	StepCount    int            `json:"step_count"`
	Note         string         `json:"note,omitempty"`
}

// Meta derives the listing view.
func (r Report) Meta() ReportMeta {
	return ReportMeta{
		ID:           r.ID,
		RunID:        r.RunID,
		CreatedAt:    r.CreatedAt,
		PrimaryCause: r.PrimaryCause(),
		CauseCount:   len(r.Causes),
		StepCount:    len(r.Plan.Steps),
		Note:         r.Note,
	}
}

// ReportFilter narrows ListReports. Zero values match everything; Limit 0
// means no limit.
type ReportFilter struct {
	RunID string
	Limit int
}

// ReportStore archives investigation reports.
type ReportStore interface {
	// SaveReport stores a report; saving an existing id replaces it.
	SaveReport(ctx context.Context, r Report) error

	// GetReport returns ErrReportNotFound for unknown ids.
	GetReport(ctx context.Context, id string) (*Report, error)

	// ListReports returns reports newest first.
	ListReports(ctx context.Context, filter ReportFilter) ([]ReportMeta, error)

	// PruneReports deletes reports created before the cutoff.
	PruneReports(ctx context.Context, before time.Time) (int64, error)
}
