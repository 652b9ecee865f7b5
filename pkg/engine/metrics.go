package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

var (
	// DiagraphIngestTotal counts ingested facts by kind and outcome
	DiagraphIngestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagraph_ingest_total",
			Help: "Total number of facts ingested",
		},
		[]string{"kind", "result"},
	)

	// DiagraphAnalysisSeconds tracks analyzer and planner latency
	DiagraphAnalysisSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagraph_analysis_seconds",
			Help:    "Time spent ranking root causes or building fix plans",
			Buckets: prometheus.ExponentialBuckets(0.0005, 4, 8),
		},
		[]string{"operation"},
	)

	// DiagraphEntities tracks entity counts per type in the current run
	DiagraphEntities = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diagraph_entities",
			Help: "Entities in the current graph by type",
		},
		[]string{"type"},
	)

	// DiagraphIssues tracks issue counts per severity in the current run
	DiagraphIssues = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "diagraph_issues",
			Help: "Issues in the current graph by severity",
		},
		[]string{"severity"},
	)

	// DiagraphRelationships tracks the edge count of the current run
	DiagraphRelationships = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "diagraph_relationships",
			Help: "Relationships in the current graph",
		},
	)
)

func init() {
	prometheus.MustRegister(DiagraphIngestTotal)
	prometheus.MustRegister(DiagraphAnalysisSeconds)
	prometheus.MustRegister(DiagraphEntities)
	prometheus.MustRegister(DiagraphIssues)
	prometheus.MustRegister(DiagraphRelationships)
}

// ObserveSummary publishes graph gauges from a summary.
func ObserveSummary(s graph.Summary) {
	DiagraphEntities.Reset()
	for t, n := range s.CountsByType {
		DiagraphEntities.WithLabelValues(string(t)).Set(float64(n))
	}
	for sev, n := range s.CountsBySeverity {
		DiagraphIssues.WithLabelValues(string(sev)).Set(float64(n))
	}
	DiagraphRelationships.Set(float64(s.EdgeCount))
}
