package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/logging"
	"github.com/rmax-ai/diagraph/pkg/mcp"
	"github.com/rmax-ai/diagraph/pkg/simulation"
)

func (a *app) replayCmd() *cobra.Command {
	var keepRun bool
	cmd := &cobra.Command{
		Use:   "replay <scenario>",
		Short: "Replay a recorded scenario into the daemon and check its invariants",
		Long: `Replay the probes of a scenario file into the daemon concurrently, then
evaluate the scenario's invariants against the resulting ranking and plan.
A fresh run is started first unless --keep-run is set. Exits non-zero when
an invariant fails.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := simulation.LoadScenario(args[0])
			if err != nil {
				return err
			}
			sink := simulation.NewClientSink(a.client())
			if !keepRun {
				if err := sink.Reset(cmd.Context()); err != nil {
					return err
				}
			}

			logger := zap.NewNop()
			if a.v.GetBool("debug") {
				logger = logging.Must("debug", "diagraph")
			}
			res, err := simulation.RunScenario(cmd.Context(), s, sink, logger)
			if err != nil {
				return err
			}
			if err := a.render(cmd.OutOrStdout(), res, func() string { return replayText(res) }); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("scenario %s failed", res.ScenarioName)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepRun, "keep-run", false, "replay into the current run instead of starting a new one")
	cmd.Flags().Bool("debug", false, "log replay progress to stderr")
	a.v.BindPFlag("debug", cmd.Flags().Lookup("debug"))
	return cmd
}

func replayText(res simulation.SimulationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "scenario %s: %d probes, %d facts, %d rejected in %s\n",
		res.ScenarioName, res.TotalProbes, res.TotalFacts, res.TotalRejected, res.Duration)
	rows := make([][]string, 0, len(res.Invariants))
	for _, inv := range res.Invariants {
		status := "FAIL"
		if inv.Passed {
			status = "PASS"
		}
		rows = append(rows, []string{status, inv.Metric, inv.Scope, inv.Expected, inv.Actual})
	}
	b.WriteString(renderTable([]string{"", "METRIC", "SCOPE", "EXPECTED", "ACTUAL"}, rows))
	return b.String()
}

func (a *app) mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the daemon's graph to MCP clients over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mcp.NewServer(a.v.GetString("api")).Serve()
		},
	}
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "diagraph %s (commit %s, built %s)\n", Version, Commit, BuildTime)
			return nil
		},
	}
}
