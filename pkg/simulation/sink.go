package simulation

import (
	"context"
	"errors"

	"github.com/rmax-ai/diagraph/pkg/client"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// Sink receives replayed probes and answers the final analysis.
type Sink interface {
	LoadIncidents(ctx context.Context, incidents []graph.Incident) error
	// ApplyFacts returns the messages of rejected facts; err is reserved
	// for failures that lose the whole probe.
	ApplyFacts(ctx context.Context, probe string, facts []graph.Fact) (rejected []string, err error)
	LinkIncidents(ctx context.Context) error
	Investigate(ctx context.Context) (engine.Investigation, error)
}

// GraphSink replays into an in-process graph.
type GraphSink struct {
	Graph    *graph.Graph
	Analyzer *engine.Analyzer
	Planner  *engine.Planner
}

// NewGraphSink creates a sink over a fresh graph.
func NewGraphSink(cfg engine.AnalysisConfig, opts ...graph.Option) *GraphSink {
	return &GraphSink{
		Graph:    graph.New(opts...),
		Analyzer: engine.NewAnalyzer(cfg),
		Planner:  engine.NewPlanner(),
	}
}

func (s *GraphSink) LoadIncidents(ctx context.Context, incidents []graph.Incident) error {
	_, err := s.Graph.LoadHistoricalIncidents(incidents)
	return err
}

func (s *GraphSink) ApplyFacts(ctx context.Context, probe string, facts []graph.Fact) ([]string, error) {
	done := s.Graph.StartProbe()
	defer done()
	_, err := s.Graph.ApplyBatch(facts)
	if err == nil {
		return nil, nil
	}
	var msgs []string
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range j.Unwrap() {
			msgs = append(msgs, e.Error())
		}
	} else {
		msgs = []string{err.Error()}
	}
	return msgs, nil
}

func (s *GraphSink) LinkIncidents(ctx context.Context) error {
	_, err := engine.LinkIncidents(s.Graph, engine.NewKeywordMatcher(s.Analyzer.Config().MatchThreshold))
	return err
}

func (s *GraphSink) Investigate(ctx context.Context) (engine.Investigation, error) {
	return engine.Investigate(s.Graph, s.Analyzer, s.Planner), nil
}

// ClientSink replays against a running daemon. It starts a fresh run first.
type ClientSink struct {
	c *client.Client
}

// NewClientSink wraps c.
func NewClientSink(c *client.Client) *ClientSink {
	return &ClientSink{c: c}
}

// Reset starts a new run on the daemon.
func (s *ClientSink) Reset(ctx context.Context) error {
	_, err := s.c.StartRun(ctx)
	return err
}

func (s *ClientSink) LoadIncidents(ctx context.Context, incidents []graph.Incident) error {
	res, err := s.c.LoadIncidents(ctx, incidents)
	if err != nil {
		return err
	}
	if res.Warning != "" {
		return errors.New(res.Warning)
	}
	return nil
}

func (s *ClientSink) ApplyFacts(ctx context.Context, probe string, facts []graph.Fact) ([]string, error) {
	res, err := s.c.ApplyFacts(ctx, probe, facts)
	if err != nil && len(res.Errors) == 0 {
		return nil, err
	}
	return res.Errors, nil
}

func (s *ClientSink) LinkIncidents(ctx context.Context) error {
	_, err := s.c.LinkIncidents(ctx)
	return err
}

func (s *ClientSink) Investigate(ctx context.Context) (engine.Investigation, error) {
	var (
		inv engine.Investigation
		err error
	)
	if inv.Summary, err = s.c.Summary(ctx); err != nil {
		return inv, err
	}
	if inv.Causes, err = s.c.RootCauses(ctx, 0); err != nil {
		return inv, err
	}
	inv.Plan, err = s.c.FixPlan(ctx)
	return inv, err
}
