package api

import (
	"time"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// RunInfo describes the current investigation run.
type RunInfo struct {
	RunID     string        `json:"run_id"`
	StartedAt time.Time     `json:"started_at"`
	Summary   graph.Summary `json:"summary"`
}

// EntityRequest matches the POST /v1/entities body schema
type EntityRequest struct {
	Type       graph.EntityType       `json:"type"`
	Key        string                 `json:"key"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// EntityResponse matches the response for POST /v1/entities
type EntityResponse struct {
	ID graph.EntityID `json:"id"`
}

// EntityDetail matches the response for GET /v1/entities/{id}
type EntityDetail struct {
	Entity   graph.Entity     `json:"entity"`
	Issues   []graph.Issue    `json:"issues"`
	Outgoing []graph.Neighbor `json:"outgoing"`
	Incoming []graph.Neighbor `json:"incoming"`
}

// RelationshipRequest matches the POST /v1/relationships body schema
type RelationshipRequest struct {
	Source     graph.EntityID         `json:"source"`
	Target     graph.EntityID         `json:"target"`
	Label      graph.RelationLabel    `json:"label"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}

// IssueRequest matches the POST /v1/issues body schema
type IssueRequest struct {
	EntityID           graph.EntityID `json:"entity_id"`
	Severity           graph.Severity `json:"severity"`
	Category           string         `json:"category"`
	Message            string         `json:"message"`
	Evidence           string         `json:"evidence,omitempty"`
	PossibleCauses     []string       `json:"possible_causes,omitempty"`
	RecommendedActions []string       `json:"recommended_actions,omitempty"`
}

// IssueResponse matches the response for POST /v1/issues
type IssueResponse struct {
	ID string `json:"id"`
}

// FactsRequest matches the POST /v1/facts body schema. One request is one
// probe: the run reports the populating phase while it is applied.
type FactsRequest struct {
	Probe string       `json:"probe,omitempty"`
	Facts []graph.Fact `json:"facts"`
}

// FactsResponse matches the response for POST /v1/facts
type FactsResponse struct {
	graph.ApplyResult
	Errors []string `json:"errors,omitempty"`
}

// IncidentsRequest matches the POST /v1/incidents body schema
type IncidentsRequest struct {
	Incidents []graph.Incident `json:"incidents"`
}

// IncidentsResponse matches the response for POST /v1/incidents
type IncidentsResponse struct {
	IDs     []graph.EntityID `json:"ids"`
	Warning string           `json:"warning,omitempty"`
}

// LinkResponse matches the response for POST /v1/incidents/link
type LinkResponse struct {
	Linked int `json:"linked"`
}

// RelatedResponse matches the response for GET /v1/related
type RelatedResponse struct {
	ID      graph.EntityID  `json:"id"`
	Related []graph.Related `json:"related"`
}

// PathResponse matches the response for GET /v1/path
type PathResponse struct {
	Source graph.EntityID   `json:"source"`
	Target graph.EntityID   `json:"target"`
	Found  bool             `json:"found"`
	Path   []graph.EntityID `json:"path"`
}

// RootCausesResponse matches the response for GET /v1/rootcauses
type RootCausesResponse struct {
	RunID  string               `json:"run_id"`
	Causes []engine.RankedCause `json:"causes"`
}

// FixPlanResponse matches the response for GET /v1/fixplan
type FixPlanResponse struct {
	RunID string      `json:"run_id"`
	Plan  engine.Plan `json:"plan"`
}

// ReportRequest matches the POST /v1/reports body schema
type ReportRequest struct {
	Note string `json:"note,omitempty"`
	// SkipDump disables archiving the text dump with the report.
	SkipDump bool `json:"skip_dump,omitempty"`
}
