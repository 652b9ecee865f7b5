package reports

import (
	"context"
	"fmt"
	"io"
	"time"
)

// IssueReport exports the issue ledger.
type IssueReport struct {
	src Source
}

// NewIssueReport creates a new IssueReport generator.
func NewIssueReport(src Source) *IssueReport {
	return &IssueReport{src: src}
}

// Generate writes one row per issue in detection order.
func (r *IssueReport) Generate(ctx context.Context, params ReportParams) (io.Reader, error) {
	t, err := newCSVTable("issue_id", "entity_id", "severity", "category", "message", "evidence", "possible_causes", "recommended_actions", "detected_at")
	if err != nil {
		return nil, err
	}

	issues, err := r.src.AllIssues(ctx, params.Issues)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}

	for _, is := range issues {
		err := t.row(
			is.ID,
			string(is.EntityID),
			string(is.Severity),
			is.Category,
			is.Message,
			is.Evidence,
			joinList(is.PossibleCauses),
			joinList(is.RecommendedActions),
			is.DetectedAt.Format(time.RFC3339),
		)
		if err != nil {
			return nil, err
		}
	}
	return t.reader()
}
