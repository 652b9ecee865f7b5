package simulation

import (
	"time"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// SimulationResult captures the final state of the replay for reporting
type SimulationResult struct {
	ScenarioName  string                 `json:"scenario_name"`
	Duration      time.Duration          `json:"duration"`
	TotalProbes   uint64                 `json:"total_probes"`
	TotalFacts    uint64                 `json:"total_facts"`
	TotalApplied  uint64                 `json:"total_applied"`
	TotalRejected uint64                 `json:"total_rejected"`
	ProbeStats    map[string]*ProbeStats `json:"probe_stats"`
	Summary       graph.Summary          `json:"summary"`
	Causes        []engine.RankedCause   `json:"causes"`
	Plan          engine.Plan            `json:"plan"`
	Invariants    []InvariantResult      `json:"invariants"`
	Success       bool                   `json:"success"`
}

type ProbeStats struct {
	Facts    int      `json:"facts"`
	Applied  int      `json:"applied"`
	Rejected int      `json:"rejected"`
	Errors   []string `json:"errors,omitempty"`
}

type InvariantResult struct {
	Metric   string `json:"metric"`
	Scope    string `json:"scope,omitempty"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
	Passed   bool   `json:"passed"`
}

// Scenario is a recorded investigation: the probes a collector ran, the
// historical incidents known at the time, and what the analysis must
// conclude.
type Scenario struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	// Seed fixes the order in which probes are launched. Zero launches them
	// in file order.
	Seed int64 `json:"seed" yaml:"seed"`
	// Concurrency caps probes in flight; zero replays all at once.
	Concurrency   int              `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Incidents     []graph.Incident `json:"incidents,omitempty" yaml:"incidents,omitempty"`
	LinkIncidents bool             `json:"link_incidents,omitempty" yaml:"link_incidents,omitempty"`
	Probes        []Probe          `json:"probes" yaml:"probes"`
	Invariants    []Invariant      `json:"invariants,omitempty" yaml:"invariants,omitempty"`
}

// Probe is one collector pass.
type Probe struct {
	Name  string        `json:"name" yaml:"name"`
	Delay time.Duration `json:"delay,omitempty" yaml:"delay,omitempty"`
	Facts []graph.Fact  `json:"facts" yaml:"facts"`
}

// Invariant is an expectation on the replay outcome.
type Invariant struct {
	Metric   MetricType `json:"metric" yaml:"metric"`
	Scope    string     `json:"scope,omitempty" yaml:"scope,omitempty"` // entity id for per-entity metrics
	Expected string     `json:"expected" yaml:"expected"`
}

type MetricType string

const (
	MetricPrimaryCause    MetricType = "primary_cause"     // id of the top-ranked cause
	MetricFirstPlanTarget MetricType = "first_plan_target" // target of plan step 1
	MetricTier            MetricType = "tier"              // tier of Scope
	MetricRank            MetricType = "rank"              // rank of Scope
	MetricPrimaryCount    MetricType = "primary_count"
	MetricNodeCount       MetricType = "node_count"
	MetricEdgeCount       MetricType = "edge_count"
	MetricIssueCount      MetricType = "issue_count"
	MetricIncompleteCount MetricType = "incomplete_count"
	MetricSuperseded      MetricType = "superseded_count"
	MetricRejected        MetricType = "rejected_facts"
)
