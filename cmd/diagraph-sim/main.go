// Command diagraph-sim replays a recorded investigation scenario and checks
// what the analysis concludes. Without -api it runs fully in process.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/client"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/logging"
	"github.com/rmax-ai/diagraph/pkg/simulation"
)

func main() {
	var (
		scenarioFile string
		apiURL       string
		configFile   string
		strict       bool
		jsonOutput   bool
		outputFile   string
		logLevel     string
	)

	flag.StringVar(&scenarioFile, "scenario", "", "Path to scenario YAML or JSON file")
	flag.StringVar(&apiURL, "api", "", "Replay against a running diagraph-d at this URL instead of in process")
	flag.StringVar(&configFile, "config", "", "Analysis config YAML (in-process only)")
	flag.BoolVar(&strict, "strict", false, "Reject relationship labels outside the vocabulary (in-process only)")
	flag.BoolVar(&jsonOutput, "json", false, "Output results as JSON")
	flag.StringVar(&outputFile, "out", "", "Write output to file instead of stdout")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level")
	flag.Parse()

	logger, err := logging.New(logLevel, "diagraph-sim")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer logger.Sync()

	scenario := defaultScenario()
	if scenarioFile != "" {
		if scenario, err = simulation.LoadScenario(scenarioFile); err != nil {
			logger.Fatal("failed_to_load_scenario", zap.String("path", scenarioFile), zap.Error(err))
		}
	} else {
		fmt.Fprintln(os.Stderr, "No scenario file provided, running default demo scenario...")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sink simulation.Sink
	if apiURL != "" {
		cs := simulation.NewClientSink(client.NewClient(apiURL))
		if err := cs.Reset(ctx); err != nil {
			logger.Fatal("failed_to_start_run", zap.String("api", apiURL), zap.Error(err))
		}
		sink = cs
	} else {
		cfg := engine.DefaultConfig()
		if configFile != "" {
			if cfg, err = engine.LoadConfig(configFile); err != nil {
				logger.Fatal("failed_to_load_config", zap.String("path", configFile), zap.Error(err))
			}
		}
		sink = simulation.NewGraphSink(cfg, graph.WithStrictRelations(strict))
	}

	result, err := simulation.RunScenario(ctx, scenario, sink, logger)
	if err != nil {
		logger.Fatal("scenario_failed", zap.String("scenario", scenario.Name), zap.Error(err))
	}

	if err := writeReport(result, jsonOutput, outputFile); err != nil {
		logger.Fatal("failed_to_write_report", zap.Error(err))
	}

	if !result.Success {
		os.Exit(1)
	}
}

func writeReport(res simulation.SimulationResult, jsonFmt bool, filePath string) error {
	var output []byte
	if jsonFmt {
		var err error
		if output, err = json.MarshalIndent(res, "", "  "); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		fmt.Fprintf(&buf, "\n--- Simulation Report: %s ---\n", res.ScenarioName)
		fmt.Fprintf(&buf, "Duration: %s\n", res.Duration)
		fmt.Fprintf(&buf, "Probes: %d | Facts: %d | Applied: %d | Rejected: %d\n",
			res.TotalProbes, res.TotalFacts, res.TotalApplied, res.TotalRejected)
		fmt.Fprintf(&buf, "Graph: %d nodes, %d edges, %d issues, %d incomplete\n",
			res.Summary.NodeCount, res.Summary.EdgeCount, res.Summary.IssueCount, res.Summary.IncompleteCount)

		if len(res.Causes) > 0 {
			buf.WriteString("\nRoot causes:\n")
			for _, c := range res.Causes {
				fmt.Fprintf(&buf, "%2d. %-40s %-9s score=%.2f severity=%s\n", c.Rank, c.EntityID, c.Tier, c.Score, c.MaxSeverity)
			}
		}
		if len(res.Plan.Steps) > 0 {
			buf.WriteString("\nFix plan:\n")
			for _, s := range res.Plan.Steps {
				fmt.Fprintf(&buf, "%2d. %s (%s)\n", s.Step, s.Description, s.TargetEntity)
			}
		}
		if len(res.Invariants) > 0 {
			buf.WriteString("\nInvariants:\n")
			for _, inv := range res.Invariants {
				status := "FAIL"
				if inv.Passed {
					status = "PASS"
				}
				fmt.Fprintf(&buf, "[%s] %s (%s): Expected %s, Got %s\n", status, inv.Metric, inv.Scope, inv.Expected, inv.Actual)
			}
		}
		output = buf.Bytes()
	}

	if filePath != "" {
		if err := os.WriteFile(filePath, output, 0644); err != nil {
			return fmt.Errorf("write report to %s: %w", filePath, err)
		}
		fmt.Printf("Report written to %s\n", filePath)
		return nil
	}
	fmt.Println(string(output))
	return nil
}

func defaultScenario() simulation.Scenario {
	return simulation.Scenario{
		Name:        "Default Demo",
		Description: "Pod on a PVC whose drive reports I/O errors",
		Probes: []simulation.Probe{
			{
				Name: "kubernetes",
				Facts: []graph.Fact{
					{Kind: graph.FactRelationship, Source: "pod:default/app-0", Target: "pvc:default/data", Label: graph.RelUses},
					{Kind: graph.FactRelationship, Source: "pvc:default/data", Target: "pv:pv-demo", Label: graph.RelBoundTo},
					{Kind: graph.FactIssue, EntityID: "pod:default/app-0", Severity: graph.SeverityHigh, Message: "pod stuck in ContainerCreating"},
				},
			},
			{
				Name: "host",
				Facts: []graph.Fact{
					{Kind: graph.FactRelationship, Source: "pv:pv-demo", Target: "drive:node-1/sdb", Label: graph.RelMapsTo},
					{Kind: graph.FactIssue, EntityID: "drive:node-1/sdb", Severity: graph.SeverityCritical, Message: "I/O errors on sdb", RecommendedActions: []string{"Replace drive node-1/sdb"}},
				},
			},
		},
		Invariants: []simulation.Invariant{
			{Metric: simulation.MetricPrimaryCause, Expected: "drive:node-1/sdb"},
			{Metric: simulation.MetricFirstPlanTarget, Expected: "drive:node-1/sdb"},
		},
	}
}
