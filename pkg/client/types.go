package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/store"
)

// Status represents the health check response.
type Status struct {
	Status string `json:"status"`
}

// Run describes the daemon's current investigation run.
type Run struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Summary   graph.Summary `json:"summary"`
}

// Entity is an upsert request.
type Entity struct {
	Type       graph.EntityType `json:"type"`
	Key        string           `json:"key"`
	Attributes map[string]any   `json:"attributes,omitempty"`
}

// EntityDetail is an entity with its issues and adjacent edges.
type EntityDetail struct {
	Entity   graph.Entity     `json:"entity"`
	Issues   []graph.Issue    `json:"issues"`
	Outgoing []graph.Neighbor `json:"outgoing"`
	Incoming []graph.Neighbor `json:"incoming"`
}

// Relationship is an edge request.
type Relationship struct {
	Source     graph.EntityID      `json:"source"`
	Target     graph.EntityID      `json:"target"`
	Label      graph.RelationLabel `json:"label"`
	Attributes map[string]any      `json:"attributes,omitempty"`
}

// Issue is an issue report.
type Issue struct {
	EntityID           graph.EntityID `json:"entity_id"`
	Severity           graph.Severity `json:"severity"`
	Category           string         `json:"category"`
	Message            string         `json:"message"`
	Evidence           string         `json:"evidence,omitempty"`
	PossibleCauses     []string       `json:"possible_causes,omitempty"`
	RecommendedActions []string       `json:"recommended_actions,omitempty"`
}

// ProbeResult reports what a fact batch changed. Errors lists rejected
// facts; the others were applied.
type ProbeResult struct {
	Entities      []graph.EntityID `json:"entities,omitempty"`
	Relationships int              `json:"relationships"`
	Issues        []string         `json:"issues,omitempty"`
	Errors        []string         `json:"errors,omitempty"`
}

// IncidentLoad reports loaded incident ids and skipped records.
type IncidentLoad struct {
	IDs     []graph.EntityID `json:"ids"`
	Warning string           `json:"warning,omitempty"`
}

// TraversalOptions narrows RelatedEntities and ShortestPath. Zero values use
// the daemon defaults.
type TraversalOptions struct {
	Depth     int
	Direction graph.Direction
	Labels    []graph.RelationLabel
}

// Path is a shortest path lookup result.
type Path struct {
	Source graph.EntityID   `json:"source"`
	Target graph.EntityID   `json:"target"`
	Found  bool             `json:"found"`
	Path   []graph.EntityID `json:"path"`
}

// Report aliases the archived report record.
type Report = store.Report

// ReportMeta aliases the report listing record.
type ReportMeta = store.ReportMeta

// RankedCause aliases the analyzer output.
type RankedCause = engine.RankedCause

// Plan aliases the planner output.
type Plan = engine.Plan

// APIError is a non-2xx daemon response. It unwraps to the matching graph
// or store sentinel where one exists.
type APIError struct {
	StatusCode int    `json:"-"`
	Code       string `json:"error"`
	Details    string `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("diagraph: %d %s: %s", e.StatusCode, e.Code, e.Details)
	}
	return fmt.Sprintf("diagraph: %d %s", e.StatusCode, e.Code)
}

var sentinels = map[string]error{
	"unknown_entity_type":   graph.ErrUnknownEntityType,
	"invalid_key":           graph.ErrInvalidKey,
	"unknown_relation_type": graph.ErrUnknownRelationType,
	"invalid_severity":      graph.ErrInvalidSeverity,
	"invalid_fact":          graph.ErrInvalidFact,
	"entity_not_found":      graph.ErrEntityNotFound,
	"report_not_found":      store.ErrReportNotFound,
}

func (e *APIError) Unwrap() error {
	return sentinels[e.Code]
}

// retryable reports whether a failed request may succeed when repeated.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return true
}
