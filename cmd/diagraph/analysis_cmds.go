package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rmax-ai/diagraph/pkg/client"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

type traversalFlags struct {
	depth     int
	direction string
	labels    []string
}

func (f *traversalFlags) register(cmd *cobra.Command, defaultDirection string) {
	cmd.Flags().IntVarP(&f.depth, "depth", "d", 0, "maximum hops (0 uses the daemon default)")
	cmd.Flags().StringVar(&f.direction, "direction", defaultDirection, "outgoing, incoming or both")
	cmd.Flags().StringSliceVarP(&f.labels, "label", "l", nil, "relationship labels to follow")
}

func (f *traversalFlags) options() (client.TraversalOptions, error) {
	dir, err := graph.ParseDirection(f.direction)
	if err != nil {
		return client.TraversalOptions{}, err
	}
	return client.TraversalOptions{Depth: f.depth, Direction: dir, Labels: toLabels(f.labels)}, nil
}

func (a *app) relatedCmd() *cobra.Command {
	var tf traversalFlags
	cmd := &cobra.Command{
		Use:   "related <id>",
		Short: "List entities reachable from an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			related, err := a.client().RelatedEntities(ctx, graph.EntityID(args[0]), opts)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), related, func() string {
				rows := make([][]string, 0, len(related))
				for _, r := range related {
					labels := make([]string, 0, len(r.Path))
					for _, l := range r.Path {
						labels = append(labels, string(l))
					}
					rows = append(rows, []string{string(r.ID), strconv.Itoa(r.Depth), strings.Join(labels, " > ")})
				}
				return renderTable([]string{"ENTITY", "DEPTH", "VIA"}, rows)
			})
		},
	}
	tf.register(cmd, "both")
	return cmd
}

func (a *app) pathCmd() *cobra.Command {
	var tf traversalFlags
	cmd := &cobra.Command{
		Use:   "path <source> <target>",
		Short: "Find the shortest path between two entities",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := tf.options()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			p, err := a.client().ShortestPath(ctx, graph.EntityID(args[0]), graph.EntityID(args[1]), opts)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), p, func() string {
				if !p.Found {
					return fmt.Sprintf("no path from %s to %s", p.Source, p.Target)
				}
				hops := make([]string, 0, len(p.Path))
				for _, id := range p.Path {
					hops = append(hops, string(id))
				}
				return strings.Join(hops, " -> ")
			})
		},
	}
	tf.register(cmd, "outgoing")
	return cmd
}

func (a *app) summaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary",
		Short: "Show node, edge and issue counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			sum, err := a.client().Summary(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), sum, func() string { return summaryText(sum) })
		},
	}
}

func summaryText(sum graph.Summary) string {
	rows := [][]string{
		{"phase", string(sum.Phase)},
		{"nodes", strconv.Itoa(sum.NodeCount)},
		{"edges", strconv.Itoa(sum.EdgeCount)},
		{"issues", strconv.Itoa(sum.IssueCount)},
		{"incidents", strconv.Itoa(sum.IncidentCount)},
		{"incomplete", strconv.Itoa(sum.IncompleteCount)},
	}
	for _, sev := range []graph.Severity{graph.SeverityCritical, graph.SeverityHigh, graph.SeverityMedium, graph.SeverityLow} {
		if n := sum.CountsBySeverity[sev]; n > 0 {
			rows = append(rows, []string{"issues." + string(sev), strconv.Itoa(n)})
		}
	}
	return renderTable([]string{"METRIC", "VALUE"}, rows)
}

func (a *app) dumpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dump",
		Short: "Print the deterministic graph dump",
		Long:  "Print the text dump of the current graph. With -o json the structured snapshot is printed instead.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			c := a.client()
			if a.output() == "json" {
				snap, err := c.Snapshot(ctx)
				if err != nil {
					return err
				}
				return a.render(cmd.OutOrStdout(), snap, nil)
			}
			text, err := c.Dump(ctx)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		},
	}
}

func (a *app) rootCausesCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:     "rootcauses",
		Aliases: []string{"rca"},
		Short:   "Rank likely root causes",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			causes, err := a.client().RootCauses(ctx, limit)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), causes, func() string { return causeTable(causes) })
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many causes")
	return cmd
}

func causeTable(causes []engine.RankedCause) string {
	rows := make([][]string, 0, len(causes))
	for _, c := range causes {
		incidents := make([]string, 0, len(c.MatchedIncidents))
		for _, m := range c.MatchedIncidents {
			incidents = append(incidents, string(m.IncidentID))
		}
		rows = append(rows, []string{
			strconv.Itoa(c.Rank),
			string(c.EntityID),
			string(c.Tier),
			strconv.FormatFloat(c.Score, 'f', 2, 64),
			string(c.MaxSeverity),
			strconv.Itoa(c.Breakdown.ReachCount),
			strings.Join(incidents, ","),
		})
	}
	return renderTable([]string{"RANK", "ENTITY", "TIER", "SCORE", "SEVERITY", "REACH", "INCIDENTS"}, rows)
}

func (a *app) fixPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fixplan",
		Short: "Show the ordered remediation plan",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			plan, err := a.client().FixPlan(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), plan, func() string { return planText(plan) })
		},
	}
}

func planText(plan engine.Plan) string {
	if len(plan.Steps) == 0 {
		return "no remediation needed"
	}
	var b strings.Builder
	for _, s := range plan.Steps {
		fmt.Fprintf(&b, "%d. %s\n   target: %s (%s, %s)\n   why: %s\n", s.Step, s.Description, s.TargetEntity, s.Tier, s.Severity, s.Rationale)
	}
	for _, s := range plan.Superseded {
		fmt.Fprintf(&b, "-  %s (superseded by step %d)\n", s.Description, s.SupersededBy)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (a *app) reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Archive and browse investigation reports",
	}

	var note string
	archive := &cobra.Command{
		Use:   "archive",
		Short: "Archive the current investigation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			rep, err := a.client().ArchiveReport(ctx, note)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rep, func() string {
				return reportTable([]client.ReportMeta{rep.Meta()})
			})
		},
	}
	archive.Flags().StringVar(&note, "note", "", "free-text note stored with the report")

	var runID string
	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List archived reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			reports, err := a.client().ListReports(ctx, runID, limit)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), reports, func() string { return reportTable(reports) })
		},
	}
	list.Flags().StringVar(&runID, "run", "", "only reports of this run")
	list.Flags().IntVarP(&limit, "limit", "n", 0, "show at most this many reports")

	var withDump bool
	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an archived report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			c := a.client()
			if withDump {
				text, err := c.ReportDump(ctx, args[0])
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), text)
				return err
			}
			rep, err := c.GetReport(ctx, args[0])
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rep, func() string {
				return reportTable([]client.ReportMeta{rep.Meta()}) + "\n" + causeTable(rep.Causes) + "\n" + planText(rep.Plan)
			})
		},
	}
	get.Flags().BoolVar(&withDump, "dump", false, "print the archived text dump instead")

	cmd.AddCommand(archive, list, get)
	return cmd
}

func reportTable(reports []client.ReportMeta) string {
	rows := make([][]string, 0, len(reports))
	for _, r := range reports {
		rows = append(rows, []string{
			r.ID,
			r.RunID,
			r.CreatedAt.Format("2006-01-02 15:04:05Z07:00"),
			string(r.PrimaryCause),
			strconv.Itoa(r.StepCount),
			r.Note,
		})
	}
	return renderTable([]string{"REPORT", "RUN", "CREATED", "PRIMARY CAUSE", "STEPS", "NOTE"}, rows)
}

func (a *app) exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:       "export <issues|fixplan|rootcauses>",
		Short:     "Export the current investigation as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"issues", "fixplan", "rootcauses"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			csv, err := a.client().Export(ctx, args[0])
			if err != nil {
				return err
			}
			if out == "" {
				_, err = io.WriteString(cmd.OutOrStdout(), csv)
				return err
			}
			if err := os.WriteFile(out, []byte(csv), 0644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Export written to %s\n", out)
			return nil
		},
	}
	cmd.Flags().StringVar(&out, "out", "", "write to file instead of stdout")
	return cmd
}
