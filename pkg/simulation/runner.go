package simulation

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

// LoadScenario reads a scenario from a YAML or JSON file.
func LoadScenario(path string) (Scenario, error) {
	var s Scenario
	data, err := os.ReadFile(path)
	if err != nil {
		return s, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		return s, fmt.Errorf("unsupported scenario file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return s, fmt.Errorf("parse scenario %s: %w", path, err)
	}
	if s.Name == "" {
		s.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s, nil
}

// RunScenario replays every probe of s into sink concurrently, then
// investigates the result and evaluates the scenario's invariants. A probe
// with rejected facts does not stop the others; the returned error is
// reserved for failures that leave the replay without a result.
func RunScenario(ctx context.Context, s Scenario, sink Sink, logger *zap.Logger) (SimulationResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start := time.Now()
	res := SimulationResult{
		ScenarioName: s.Name,
		ProbeStats:   make(map[string]*ProbeStats, len(s.Probes)),
	}

	logger.Info("scenario_started",
		zap.String("scenario", s.Name),
		zap.Int64("seed", s.Seed),
		zap.Int("probes", len(s.Probes)),
		zap.Int("incidents", len(s.Incidents)),
	)

	if len(s.Incidents) > 0 {
		if err := sink.LoadIncidents(ctx, s.Incidents); err != nil {
			return res, fmt.Errorf("load incidents: %w", err)
		}
	}

	probes := launchOrder(s.Probes, s.Seed)
	for i, p := range probes {
		name := probeName(p, i)
		res.ProbeStats[name] = &ProbeStats{Facts: len(p.Facts)}
	}

	var mu sync.Mutex
	eg, egCtx := errgroup.WithContext(ctx)
	if s.Concurrency > 0 {
		eg.SetLimit(s.Concurrency)
	}
	for i, p := range probes {
		name := probeName(p, i)
		stats := res.ProbeStats[name]
		eg.Go(func() error {
			if p.Delay > 0 {
				select {
				case <-time.After(p.Delay):
				case <-egCtx.Done():
					return egCtx.Err()
				}
			}
			rejected, err := sink.ApplyFacts(egCtx, name, p.Facts)
			if err != nil {
				return fmt.Errorf("probe %s: %w", name, err)
			}

			atomic.AddUint64(&res.TotalProbes, 1)
			atomic.AddUint64(&res.TotalFacts, uint64(len(p.Facts)))
			atomic.AddUint64(&res.TotalRejected, uint64(len(rejected)))
			atomic.AddUint64(&res.TotalApplied, uint64(len(p.Facts)-len(rejected)))

			mu.Lock()
			stats.Rejected = len(rejected)
			stats.Applied = len(p.Facts) - len(rejected)
			stats.Errors = rejected
			mu.Unlock()

			if len(rejected) > 0 {
				logger.Warn("probe_facts_rejected", zap.String("probe", name), zap.Strings("errors", rejected))
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return res, err
	}

	if s.LinkIncidents {
		if err := sink.LinkIncidents(ctx); err != nil {
			return res, fmt.Errorf("link incidents: %w", err)
		}
	}

	inv, err := sink.Investigate(ctx)
	if err != nil {
		return res, fmt.Errorf("investigate: %w", err)
	}
	res.Summary = inv.Summary
	res.Causes = inv.Causes
	res.Plan = inv.Plan
	res.Duration = time.Since(start)

	evaluateInvariants(&res, s.Invariants)

	res.Success = true
	for _, r := range res.Invariants {
		if !r.Passed {
			res.Success = false
			break
		}
	}

	logger.Info("scenario_finished",
		zap.String("scenario", s.Name),
		zap.Bool("success", res.Success),
		zap.Uint64("facts", res.TotalFacts),
		zap.Uint64("rejected", res.TotalRejected),
		zap.Duration("duration", res.Duration),
	)
	return res, nil
}

// launchOrder shuffles a copy of probes when seed is set.
func launchOrder(probes []Probe, seed int64) []Probe {
	out := append([]Probe(nil), probes...)
	if seed == 0 {
		return out
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

func probeName(p Probe, i int) string {
	if p.Name != "" {
		return p.Name
	}
	return fmt.Sprintf("probe-%d", i)
}

func evaluateInvariants(res *SimulationResult, invariants []Invariant) {
	for _, inv := range invariants {
		actual := observe(res, inv)
		expected := strings.TrimSpace(inv.Expected)
		res.Invariants = append(res.Invariants, InvariantResult{
			Metric:   string(inv.Metric),
			Scope:    inv.Scope,
			Expected: expected,
			Actual:   actual,
			Passed:   strings.EqualFold(actual, expected),
		})
	}
}

func observe(res *SimulationResult, inv Invariant) string {
	switch inv.Metric {
	case MetricPrimaryCause:
		if len(res.Causes) == 0 {
			return ""
		}
		return string(res.Causes[0].EntityID)
	case MetricFirstPlanTarget:
		if len(res.Plan.Steps) == 0 {
			return ""
		}
		return string(res.Plan.Steps[0].TargetEntity)
	case MetricTier:
		if c, ok := findCause(res.Causes, graph.EntityID(inv.Scope)); ok {
			return string(c.Tier)
		}
		return ""
	case MetricRank:
		for i, c := range res.Causes {
			if c.EntityID == graph.EntityID(inv.Scope) {
				return strconv.Itoa(i + 1)
			}
		}
		return ""
	case MetricPrimaryCount:
		n := 0
		for _, c := range res.Causes {
			if c.Tier == engine.TierPrimary {
				n++
			}
		}
		return strconv.Itoa(n)
	case MetricNodeCount:
		return strconv.Itoa(res.Summary.NodeCount)
	case MetricEdgeCount:
		return strconv.Itoa(res.Summary.EdgeCount)
	case MetricIssueCount:
		return strconv.Itoa(res.Summary.IssueCount)
	case MetricIncompleteCount:
		return strconv.Itoa(res.Summary.IncompleteCount)
	case MetricSuperseded:
		return strconv.Itoa(len(res.Plan.Superseded))
	case MetricRejected:
		return strconv.FormatUint(res.TotalRejected, 10)
	default:
		return fmt.Sprintf("unknown metric %q", inv.Metric)
	}
}

func findCause(causes []engine.RankedCause, id graph.EntityID) (engine.RankedCause, bool) {
	for _, c := range causes {
		if c.EntityID == id {
			return c, true
		}
	}
	return engine.RankedCause{}, false
}
