package reports

import "fmt"

// NewReportGenerator creates a report generator based on the report type.
func NewReportGenerator(reportType ReportType, src Source) (Generator, error) {
	switch reportType {
	case ReportTypeIssues:
		return NewIssueReport(src), nil
	case ReportTypeFixPlan:
		return NewFixPlanReport(src), nil
	case ReportTypeRootCauses:
		return NewRootCauseReport(src), nil
	default:
		return nil, fmt.Errorf("unknown report type: %s", reportType)
	}
}
