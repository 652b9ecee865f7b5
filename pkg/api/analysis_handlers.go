package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/blob"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/reports"
	"github.com/rmax-ai/diagraph/pkg/store"
)

// handleRootCauses ranks the current run's issue-bearing entities. ?limit=
// truncates the list.
func (s *Server) handleRootCauses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	run := s.CurrentRun()
	causes := s.analyzer.AnalyzeGraph(run.Graph)
	if limit > 0 && len(causes) > limit {
		causes = causes[:limit]
	}
	s.writeJSON(w, r, http.StatusOK, RootCausesResponse{RunID: run.ID, Causes: causes})
}

func (s *Server) handleFixPlan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	run, inv := s.investigate()
	s.writeJSON(w, r, http.StatusOK, FixPlanResponse{RunID: run.ID, Plan: inv.Plan})
}

// handleReports archives the current investigation (POST) or lists archived
// reports, newest first (GET, ?run_id= and ?limit=).
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report_store_not_configured", nil)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req ReportRequest
		if r.ContentLength != 0 {
			if !decodeBody(w, r, &req) {
				return
			}
		}
		rep, err := s.archive(r.Context(), req)
		if err != nil {
			s.fail(w, r, "failed_to_archive_report", err)
			return
		}
		s.writeJSON(w, r, http.StatusCreated, rep)

	case http.MethodGet:
		limit, err := parseLimit(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", err)
			return
		}
		list, err := s.reports.ListReports(r.Context(), store.ReportFilter{RunID: r.URL.Query().Get("run_id"), Limit: limit})
		if err != nil {
			s.fail(w, r, "failed_to_list_reports", err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, list)

	default:
		methodNotAllowed(w)
	}
}

// handleReport returns one archived report. /v1/reports/{id}/dump streams
// the archived text dump.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.reports == nil {
		writeError(w, http.StatusServiceUnavailable, "report_store_not_configured", nil)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/v1/reports/")
	id, wantDump := strings.CutSuffix(id, "/dump")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_report_id", nil)
		return
	}

	rep, err := s.reports.GetReport(r.Context(), id)
	if err != nil {
		s.fail(w, r, "failed_to_get_report", err)
		return
	}
	if !wantDump {
		s.writeJSON(w, r, http.StatusOK, rep)
		return
	}

	if s.blobs == nil || rep.DumpKey == "" {
		writeError(w, http.StatusNotFound, "dump_not_archived", nil)
		return
	}
	rc, err := s.blobs.Get(r.Context(), rep.DumpKey)
	if err != nil {
		s.fail(w, r, "failed_to_read_dump", err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := io.Copy(w, rc); err != nil {
		s.logger.Error("failed_to_stream_dump", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
}

// archive snapshots the current run into a report and, when a blob store is
// configured, stores its text dump.
func (s *Server) archive(ctx context.Context, req ReportRequest) (store.Report, error) {
	run, inv := s.investigate()
	rep := store.Report{
		ID:        uuid.NewString(),
		RunID:     run.ID,
		CreatedAt: s.now().UTC(),
		Note:      req.Note,
		Summary:   inv.Summary,
		Causes:    inv.Causes,
		Plan:      inv.Plan,
	}

	if s.blobs != nil && !req.SkipDump {
		key, err := blob.ArchiveDump(ctx, s.blobs, run.ID, rep.CreatedAt, run.Graph)
		if err != nil {
			return rep, fmt.Errorf("archive dump: %w", err)
		}
		rep.DumpKey = key
	}

	if err := s.reports.SaveReport(ctx, rep); err != nil {
		return rep, err
	}
	s.logger.Info("report_archived",
		zap.String("report_id", rep.ID),
		zap.String("run_id", rep.RunID),
		zap.String("primary_cause", string(rep.PrimaryCause())),
		zap.Int("steps", len(rep.Plan.Steps)),
		zap.String("dump_key", rep.DumpKey),
	)
	return rep, nil
}

// handleExport streams a CSV export of the current run.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}

	q := r.URL.Query()
	reportType := reports.ReportType(q.Get("type"))
	if reportType == "" {
		writeError(w, http.StatusBadRequest, "missing_type", nil)
		return
	}
	filter, err := parseIssueFilter(q)
	if err != nil {
		s.fail(w, r, "invalid_issue_filter", err)
		return
	}

	run := s.CurrentRun()
	gen, err := reports.NewReportGenerator(reportType, runSource{s: s, run: run})
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_report_type", err)
		return
	}

	reader, err := gen.Generate(r.Context(), reports.ReportParams{Issues: filter})
	if err != nil {
		s.logger.Error("failed_to_generate_report", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "report_generation_failed", nil)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	filename := fmt.Sprintf("diagraph_%s_%s.csv", reportType, run.ID)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))

	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Error("failed_to_stream_report", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
}

// runSource serves report generators from one run.
type runSource struct {
	s   *Server
	run *Run
}

func (rs runSource) AllIssues(ctx context.Context, filter graph.IssueFilter) ([]graph.Issue, error) {
	return rs.run.Graph.AllIssues(filter), nil
}

func (rs runSource) Investigate(ctx context.Context) (engine.Investigation, error) {
	return engine.Investigate(rs.run.Graph, rs.s.analyzer, rs.s.planner), nil
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return n, nil
}
