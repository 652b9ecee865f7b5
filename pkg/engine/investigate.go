package engine

import (
	"time"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// Investigation is the ranking and plan computed from a single view of a
// graph, with the summary that view had.
type Investigation struct {
	Summary graph.Summary `json:"summary"`
	Causes  []RankedCause `json:"causes"`
	Plan    Plan          `json:"plan"`
}

// Investigate ranks causes and plans remediation under one read view, so
// the plan always matches the ranking it was built from.
func Investigate(g *graph.Graph, a *Analyzer, p *Planner) Investigation {
	var inv Investigation
	g.View(func(r graph.Reader) {
		start := time.Now()
		inv.Summary = r.Summary()
		inv.Causes = a.Analyze(r)
		DiagraphAnalysisSeconds.WithLabelValues("rootcause").Observe(time.Since(start).Seconds())

		start = time.Now()
		inv.Plan = p.Plan(r, inv.Causes)
		DiagraphAnalysisSeconds.WithLabelValues("fixplan").Observe(time.Since(start).Seconds())
	})
	return inv
}
