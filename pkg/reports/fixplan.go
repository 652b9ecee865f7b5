package reports

import (
	"context"
	"fmt"
	"io"
	"strconv"
)

// FixPlanReport exports the remediation plan, superseded steps last.
type FixPlanReport struct {
	src Source
}

// NewFixPlanReport creates a new FixPlanReport generator.
func NewFixPlanReport(src Source) *FixPlanReport {
	return &FixPlanReport{src: src}
}

func (r *FixPlanReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newCSVTable("step", "target_entity", "description", "tier", "severity", "issue_id", "rationale", "superseded_by")
	if err != nil {
		return nil, err
	}

	inv, err := r.src.Investigate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to build fix plan: %w", err)
	}

	for _, s := range inv.Plan.Steps {
		err := t.row(strconv.Itoa(s.Step), string(s.TargetEntity), s.Description,
			string(s.Tier), string(s.Severity), s.IssueID, s.Rationale, "")
		if err != nil {
			return nil, err
		}
	}
	for _, s := range inv.Plan.Superseded {
		err := t.row("", string(s.TargetEntity), s.Description,
			string(s.Tier), string(s.Severity), s.IssueID, s.Rationale, strconv.Itoa(s.SupersededBy))
		if err != nil {
			return nil, err
		}
	}
	return t.reader()
}

// RootCauseReport exports the ranked causes.
type RootCauseReport struct {
	src Source
}

// NewRootCauseReport creates a new RootCauseReport generator.
func NewRootCauseReport(src Source) *RootCauseReport {
	return &RootCauseReport{src: src}
}

func (r *RootCauseReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newCSVTable("rank", "entity_id", "type", "tier", "score", "max_severity", "domain", "issue_count", "matched_incidents")
	if err != nil {
		return nil, err
	}

	inv, err := r.src.Investigate(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rank causes: %w", err)
	}

	for _, c := range inv.Causes {
		var matched []string
		for _, m := range c.MatchedIncidents {
			matched = append(matched, string(m.IncidentID))
		}
		err := t.row(
			strconv.Itoa(c.Rank),
			string(c.EntityID),
			string(c.Type),
			string(c.Tier),
			strconv.FormatFloat(c.Score, 'f', 2, 64),
			string(c.MaxSeverity),
			strconv.Itoa(c.Domain),
			strconv.Itoa(len(c.SupportingIssues)),
			joinList(matched),
		)
		if err != nil {
			return nil, err
		}
	}
	return t.reader()
}
