package reports

import (
	"context"
	"io"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

type ReportType string

const (
	ReportTypeIssues     ReportType = "issues"
	ReportTypeFixPlan    ReportType = "fixplan"
	ReportTypeRootCauses ReportType = "rootcauses"
)

// ReportTypes lists the supported exports.
var ReportTypes = []ReportType{ReportTypeIssues, ReportTypeFixPlan, ReportTypeRootCauses}

type ReportParams struct {
	// Issues narrows the issue export.
	Issues graph.IssueFilter
}

// Source is the data access required by reports.
type Source interface {
	AllIssues(ctx context.Context, filter graph.IssueFilter) ([]graph.Issue, error)
	Investigate(ctx context.Context) (engine.Investigation, error)
}

type Generator interface {
	Generate(ctx context.Context, params ReportParams) (io.Reader, error)
}
