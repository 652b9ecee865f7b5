package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// handleRuns starts a fresh investigation run.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	run := s.NewRun()
	s.writeJSON(w, r, http.StatusCreated, RunInfo{RunID: run.ID, StartedAt: run.StartedAt, Summary: run.Graph.Summary()})
}

func (s *Server) handleCurrentRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	run := s.CurrentRun()
	s.writeJSON(w, r, http.StatusOK, RunInfo{RunID: run.ID, StartedAt: run.StartedAt, Summary: run.Graph.Summary()})
}

// handleEntities upserts an entity (POST) or lists entities (GET), optionally
// filtered by ?type=.
func (s *Server) handleEntities(w http.ResponseWriter, r *http.Request) {
	g := s.CurrentRun().Graph

	switch r.Method {
	case http.MethodPost:
		var req EntityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		attrs, err := graph.AttributesOf(req.Attributes)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_attributes", err)
			return
		}
		id, err := g.UpsertEntity(req.Type, req.Key, attrs)
		if err != nil {
			engine.DiagraphIngestTotal.WithLabelValues("entity", "error").Inc()
			s.fail(w, r, "failed_to_upsert_entity", err)
			return
		}
		engine.DiagraphIngestTotal.WithLabelValues("entity", "ok").Inc()
		s.writeJSON(w, r, http.StatusOK, EntityResponse{ID: id})

	case http.MethodGet:
		t := graph.EntityType(r.URL.Query().Get("type"))
		if t == "" {
			s.writeJSON(w, r, http.StatusOK, g.Entities())
			return
		}
		if !g.KnownEntityType(t) {
			writeError(w, http.StatusBadRequest, "unknown_entity_type", fmt.Errorf("%q", t))
			return
		}
		entities := make([]graph.Entity, 0)
		g.View(func(rd graph.Reader) {
			for _, id := range rd.ListEntitiesByType(t) {
				if e, ok := rd.GetEntity(id); ok {
					entities = append(entities, e)
				}
			}
		})
		s.writeJSON(w, r, http.StatusOK, entities)

	default:
		methodNotAllowed(w)
	}
}

// handleEntity returns one entity with its issues and adjacent edges.
func (s *Server) handleEntity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	id := graph.EntityID(strings.TrimPrefix(r.URL.Path, "/v1/entities/"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_entity_id", nil)
		return
	}

	var (
		detail EntityDetail
		found  bool
	)
	s.CurrentRun().Graph.View(func(rd graph.Reader) {
		detail.Entity, found = rd.GetEntity(id)
		if !found {
			return
		}
		detail.Issues = nonNil(rd.IssuesFor(id))
		detail.Outgoing = nonNil(rd.Outgoing(id))
		detail.Incoming = nonNil(rd.Incoming(id))
	})
	if !found {
		writeError(w, http.StatusNotFound, "entity_not_found", fmt.Errorf("%s", id))
		return
	}
	s.writeJSON(w, r, http.StatusOK, detail)
}

func (s *Server) handleRelationships(w http.ResponseWriter, r *http.Request) {
	g := s.CurrentRun().Graph

	switch r.Method {
	case http.MethodPost:
		var req RelationshipRequest
		if !decodeBody(w, r, &req) {
			return
		}
		attrs, err := graph.AttributesOf(req.Attributes)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_attributes", err)
			return
		}
		if err := g.AddRelationship(req.Source, req.Target, req.Label, attrs); err != nil {
			engine.DiagraphIngestTotal.WithLabelValues("relationship", "error").Inc()
			s.fail(w, r, "failed_to_add_relationship", err)
			return
		}
		engine.DiagraphIngestTotal.WithLabelValues("relationship", "ok").Inc()
		s.writeJSON(w, r, http.StatusCreated, map[string]string{"status": "created"})

	case http.MethodGet:
		labels := parseLabels(r.URL.Query())
		rels := make([]graph.Relationship, 0)
		for _, rel := range g.Relationships() {
			if len(labels) == 0 || containsLabel(labels, rel.Label) {
				rels = append(rels, rel)
			}
		}
		s.writeJSON(w, r, http.StatusOK, rels)

	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleIssues(w http.ResponseWriter, r *http.Request) {
	g := s.CurrentRun().Graph

	switch r.Method {
	case http.MethodPost:
		var req IssueRequest
		if !decodeBody(w, r, &req) {
			return
		}
		id, err := g.RecordIssue(graph.Issue{
			EntityID:           req.EntityID,
			Severity:           req.Severity,
			Category:           req.Category,
			Message:            req.Message,
			Evidence:           req.Evidence,
			PossibleCauses:     req.PossibleCauses,
			RecommendedActions: req.RecommendedActions,
		})
		if err != nil {
			engine.DiagraphIngestTotal.WithLabelValues("issue", "error").Inc()
			s.fail(w, r, "failed_to_record_issue", err)
			return
		}
		engine.DiagraphIngestTotal.WithLabelValues("issue", "ok").Inc()
		s.writeJSON(w, r, http.StatusCreated, IssueResponse{ID: id})

	case http.MethodGet:
		filter, err := parseIssueFilter(r.URL.Query())
		if err != nil {
			s.fail(w, r, "invalid_issue_filter", err)
			return
		}
		s.writeJSON(w, r, http.StatusOK, nonNil(g.AllIssues(filter)))

	default:
		methodNotAllowed(w)
	}
}

// handleFacts applies one probe's batch of facts. Facts that fail are
// reported; the rest are applied.
func (s *Server) handleFacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req FactsRequest
	if !decodeBody(w, r, &req) {
		return
	}

	run := s.CurrentRun()
	done := run.Graph.StartProbe()
	res, err := run.Graph.ApplyBatch(req.Facts)
	done()

	engine.DiagraphIngestTotal.WithLabelValues("batch", resultLabel(err)).Inc()
	resp := FactsResponse{ApplyResult: res}
	status := http.StatusOK
	if err != nil {
		resp.Errors = splitJoined(err)
		status = http.StatusBadRequest
		s.logger.Warn("probe_facts_rejected",
			zap.String("run_id", run.ID),
			zap.String("probe", req.Probe),
			zap.Int("rejected", len(resp.Errors)),
			zap.Error(err),
		)
	}
	engine.ObserveSummary(run.Graph.Summary())
	s.logger.Info("probe_applied",
		zap.String("run_id", run.ID),
		zap.String("probe", req.Probe),
		zap.Int("facts", len(req.Facts)),
		zap.Int("entities", len(res.Entities)),
		zap.Int("relationships", res.Relationships),
		zap.Int("issues", len(res.Issues)),
	)
	s.writeJSON(w, r, status, resp)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	g := s.CurrentRun().Graph

	switch r.Method {
	case http.MethodPost:
		var req IncidentsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		ids, err := g.LoadHistoricalIncidents(req.Incidents)
		resp := IncidentsResponse{IDs: nonNil(ids)}
		if err != nil {
			if len(ids) == 0 {
				s.fail(w, r, "failed_to_load_incidents", err)
				return
			}
			resp.Warning = err.Error()
		}
		engine.DiagraphIngestTotal.WithLabelValues("incident", resultLabel(err)).Inc()
		s.writeJSON(w, r, http.StatusOK, resp)

	case http.MethodGet:
		s.writeJSON(w, r, http.StatusOK, nonNil(g.Incidents()))

	default:
		methodNotAllowed(w)
	}
}

// handleLinkIncidents materialises matches edges between issue-bearing
// entities and the incidents they resemble.
func (s *Server) handleLinkIncidents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	n, err := engine.LinkIncidents(s.CurrentRun().Graph, engine.NewKeywordMatcher(s.analyzer.Config().MatchThreshold))
	if err != nil {
		s.fail(w, r, "failed_to_link_incidents", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, LinkResponse{Linked: n})
}

// handleRelated lists entities within ?depth= hops of ?id=.
func (s *Server) handleRelated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	id := graph.EntityID(q.Get("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing_id", nil)
		return
	}
	opts, err := parseTraversal(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_traversal", err)
		return
	}
	related, err := s.CurrentRun().Graph.RelatedEntities(id, opts...)
	if err != nil {
		s.fail(w, r, "failed_to_traverse", err)
		return
	}
	s.writeJSON(w, r, http.StatusOK, RelatedResponse{ID: id, Related: nonNil(related)})
}

// handlePath finds the shortest path from ?source= to ?target=. A missing
// path is a normal response with found=false.
func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	q := r.URL.Query()
	resp := PathResponse{Source: graph.EntityID(q.Get("source")), Target: graph.EntityID(q.Get("target"))}
	if resp.Source == "" || resp.Target == "" {
		writeError(w, http.StatusBadRequest, "missing_endpoints", nil)
		return
	}
	opts, err := parseTraversal(q)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_traversal", err)
		return
	}
	resp.Path, resp.Found = s.CurrentRun().Graph.ShortestPath(resp.Source, resp.Target, opts...)
	resp.Path = nonNil(resp.Path)
	s.writeJSON(w, r, http.StatusOK, resp)
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	sum := s.CurrentRun().Graph.Summary()
	engine.ObserveSummary(sum)
	s.writeJSON(w, r, http.StatusOK, sum)
}

// handleDump writes the text dump, or the structured snapshot with
// ?format=json.
func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	g := s.CurrentRun().Graph
	switch r.URL.Query().Get("format") {
	case "json":
		s.writeJSON(w, r, http.StatusOK, g.Snapshot())
	case "", "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		if err := g.Dump(w); err != nil {
			s.logger.Error("failed_to_write_dump", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_format", nil)
	}
}

func parseTraversal(q url.Values) ([]graph.TraversalOption, error) {
	var opts []graph.TraversalOption
	if d := q.Get("depth"); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil {
			return nil, fmt.Errorf("invalid depth %q", d)
		}
		opts = append(opts, graph.WithMaxDepth(depth))
	}
	if d := q.Get("direction"); d != "" {
		dir, err := graph.ParseDirection(d)
		if err != nil {
			return nil, err
		}
		opts = append(opts, graph.WithDirection(dir))
	}
	if labels := parseLabels(q); len(labels) > 0 {
		opts = append(opts, graph.WithLabels(labels...))
	}
	return opts, nil
}

// parseLabels accepts repeated or comma-separated ?label= values.
func parseLabels(q url.Values) []graph.RelationLabel {
	var labels []graph.RelationLabel
	for _, v := range splitParams(q["label"]) {
		labels = append(labels, graph.RelationLabel(v))
	}
	return labels
}

func parseIssueFilter(q url.Values) (graph.IssueFilter, error) {
	var f graph.IssueFilter
	for _, v := range splitParams(q["severity"]) {
		sev, err := graph.ParseSeverity(v)
		if err != nil {
			return f, err
		}
		f.Severities = append(f.Severities, sev)
	}
	f.Categories = splitParams(q["category"])
	return f, nil
}

func splitParams(values []string) []string {
	var out []string
	for _, v := range values {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func containsLabel(labels []graph.RelationLabel, l graph.RelationLabel) bool {
	for _, x := range labels {
		if x == l {
			return true
		}
	}
	return false
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// splitJoined unpacks an errors.Join result into messages.
func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var out []string
		for _, e := range j.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
