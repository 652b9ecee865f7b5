package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/diagraph/pkg/client"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), a.timeout())
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check the daemon and show the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			c := a.client()
			if _, err := c.Ping(ctx); err != nil {
				return fmt.Errorf("daemon at %s unreachable: %w", c.Endpoint(), err)
			}
			run, err := c.CurrentRun(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), run, func() string { return runTable(run) })
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Manage investigation runs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Discard the current graph and start a new run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			run, err := a.client().StartRun(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), run, func() string { return runTable(run) })
		},
	}, &cobra.Command{
		Use:   "current",
		Short: "Show the current run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			run, err := a.client().CurrentRun(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), run, func() string { return runTable(run) })
		},
	})
	return cmd
}

func runTable(run client.Run) string {
	return renderTable([]string{"RUN", "STARTED", "PHASE", "NODES", "EDGES", "ISSUES"}, [][]string{{
		run.RunID,
		run.StartedAt.Format("2006-01-02 15:04:05Z07:00"),
		string(run.Summary.Phase),
		strconv.Itoa(run.Summary.NodeCount),
		strconv.Itoa(run.Summary.EdgeCount),
		strconv.Itoa(run.Summary.IssueCount),
	}})
}

func (a *app) entityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Create and inspect entities",
	}

	var attrs []string
	upsert := &cobra.Command{
		Use:   "upsert <type> <key>",
		Short: "Create an entity or merge attributes into it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAttrs(attrs)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			id, err := a.client().UpsertEntity(ctx, client.Entity{
				Type:       graph.EntityType(args[0]),
				Key:        args[1],
				Attributes: parsed,
			})
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]graph.EntityID{"id": id}, func() string { return string(id) })
		},
	}
	upsert.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "attribute as key=value (repeatable)")

	get := &cobra.Command{
		Use:   "get <id>",
		Short: "Show an entity with its issues and edges",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			d, err := a.client().GetEntity(ctx, graph.EntityID(args[0]))
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), d, func() string { return entityDetail(d) })
		},
	}

	var entityType string
	list := &cobra.Command{
		Use:   "list",
		Short: "List entities, optionally of one type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			entities, err := a.client().ListEntities(ctx, graph.EntityType(entityType))
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), entities, func() string {
				rows := make([][]string, 0, len(entities))
				for _, e := range entities {
					rows = append(rows, []string{string(e.ID), string(e.Type), strconv.FormatBool(e.Incomplete), formatAttrs(e.Attributes)})
				}
				return renderTable([]string{"ID", "TYPE", "INCOMPLETE", "ATTRIBUTES"}, rows)
			})
		},
	}
	list.Flags().StringVarP(&entityType, "type", "t", "", "entity type filter")

	cmd.AddCommand(upsert, get, list)
	return cmd
}

func entityDetail(d client.EntityDetail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s)", d.Entity.ID, d.Entity.Type)
	if d.Entity.Incomplete {
		b.WriteString(" [incomplete]")
	}
	b.WriteString("\n")
	if len(d.Entity.Attributes) > 0 {
		fmt.Fprintf(&b, "attributes: %s\n", formatAttrs(d.Entity.Attributes))
	}
	for _, n := range d.Outgoing {
		fmt.Fprintf(&b, "  -[%s]-> %s\n", n.Label, n.ID)
	}
	for _, n := range d.Incoming {
		fmt.Fprintf(&b, "  <-[%s]- %s\n", n.Label, n.ID)
	}
	if len(d.Issues) > 0 {
		b.WriteString(issueTable(d.Issues))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatAttrs(attrs graph.Attributes) string {
	if len(attrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for k, v := range attrs {
		parts = append(parts, k+"="+v.String())
	}
	sort.Strings(parts)
	return strings.Join(parts, " ")
}

func (a *app) relateCmd() *cobra.Command {
	var attrs []string
	cmd := &cobra.Command{
		Use:   "relate <source> <label> <target>",
		Short: "Add a directed relationship between two entities",
		Example: `  diagraph relate pod:shop/db-0 uses pvc:shop/data
  diagraph relate pv:pv-1 maps_to vg:node-1/vg0 -a lv=lv-12`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseAttrs(attrs)
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			rel := client.Relationship{
				Source:     graph.EntityID(args[0]),
				Label:      graph.RelationLabel(args[1]),
				Target:     graph.EntityID(args[2]),
				Attributes: parsed,
			}
			if err := a.client().AddRelationship(ctx, rel); err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rel, func() string {
				return fmt.Sprintf("%s -[%s]-> %s", rel.Source, rel.Label, rel.Target)
			})
		},
	}
	cmd.Flags().StringArrayVarP(&attrs, "attr", "a", nil, "attribute as key=value (repeatable)")
	return cmd
}

func (a *app) edgesCmd() *cobra.Command {
	var labels []string
	cmd := &cobra.Command{
		Use:   "edges",
		Short: "List relationships",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			rels, err := a.client().ListRelationships(ctx, toLabels(labels)...)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), rels, func() string {
				rows := make([][]string, 0, len(rels))
				for _, r := range rels {
					rows = append(rows, []string{string(r.Source), string(r.Label), string(r.Target), formatAttrs(r.Attributes)})
				}
				return renderTable([]string{"SOURCE", "LABEL", "TARGET", "ATTRIBUTES"}, rows)
			})
		},
	}
	cmd.Flags().StringSliceVarP(&labels, "label", "l", nil, "relationship labels to include")
	return cmd
}

func (a *app) issueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Record and list issues",
	}

	var is client.Issue
	var severity string
	record := &cobra.Command{
		Use:   "record <entity-id>",
		Short: "Record an issue against an entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			is.EntityID = graph.EntityID(args[0])
			is.Severity = graph.Severity(severity)
			ctx, cancel := a.context(cmd)
			defer cancel()
			id, err := a.client().RecordIssue(ctx, is)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]string{"id": id}, func() string { return id })
		},
	}
	record.Flags().StringVarP(&severity, "severity", "s", "", "critical, high, medium or low")
	record.Flags().StringVarP(&is.Category, "category", "c", "", "issue category")
	record.Flags().StringVarP(&is.Message, "message", "m", "", "what is wrong")
	record.Flags().StringVar(&is.Evidence, "evidence", "", "supporting evidence")
	record.Flags().StringArrayVar(&is.PossibleCauses, "cause", nil, "possible cause (repeatable)")
	record.Flags().StringArrayVar(&is.RecommendedActions, "action", nil, "recommended action (repeatable)")
	record.MarkFlagRequired("severity")
	record.MarkFlagRequired("message")

	var severities, categories []string
	list := &cobra.Command{
		Use:   "list",
		Short: "List issues in record order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := graph.IssueFilter{Categories: categories}
			for _, s := range severities {
				filter.Severities = append(filter.Severities, graph.Severity(s))
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			issues, err := a.client().ListIssues(ctx, filter)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), issues, func() string { return issueTable(issues) })
		},
	}
	list.Flags().StringSliceVarP(&severities, "severity", "s", nil, "severities to include")
	list.Flags().StringSliceVarP(&categories, "category", "c", nil, "categories to include")

	cmd.AddCommand(record, list)
	return cmd
}

func issueTable(issues []graph.Issue) string {
	rows := make([][]string, 0, len(issues))
	for _, is := range issues {
		rows = append(rows, []string{is.ID, string(is.EntityID), string(is.Severity), is.Category, is.Message})
	}
	return renderTable([]string{"ID", "ENTITY", "SEVERITY", "CATEGORY", "MESSAGE"}, rows)
}

func (a *app) factsCmd() *cobra.Command {
	var probe string
	cmd := &cobra.Command{
		Use:   "facts <file>",
		Short: "Apply a probe's fact batch from a JSON or YAML file",
		Long: `Apply a batch of facts as one probe. The file holds either a list of facts
or an object with "probe" and "facts" keys. Rejected facts are reported and
the rest are applied.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, facts, err := loadFactFile(args[0])
			if err != nil {
				return err
			}
			if probe != "" {
				name = probe
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := a.client().ApplyFacts(ctx, name, facts)
			if err != nil && len(res.Errors) == 0 {
				return err
			}
			if rerr := a.render(cmd.OutOrStdout(), res, func() string {
				var b strings.Builder
				fmt.Fprintf(&b, "applied %d of %d facts: %d entities, %d relationships, %d issues",
					len(facts)-len(res.Errors), len(facts), len(res.Entities), res.Relationships, len(res.Issues))
				for _, e := range res.Errors {
					fmt.Fprintf(&b, "\nrejected: %s", e)
				}
				return b.String()
			}); rerr != nil {
				return rerr
			}
			if len(res.Errors) > 0 {
				return fmt.Errorf("%d facts rejected", len(res.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&probe, "probe", "p", "", "probe name (overrides the file)")
	return cmd
}

func loadFactFile(path string) (string, []graph.Fact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	var wrapped struct {
		Probe string       `json:"probe" yaml:"probe"`
		Facts []graph.Fact `json:"facts" yaml:"facts"`
	}
	var list []graph.Fact

	unmarshal := yaml.Unmarshal
	if strings.EqualFold(filepath.Ext(path), ".json") {
		unmarshal = json.Unmarshal
	}
	if err := unmarshal(data, &list); err != nil {
		if err2 := unmarshal(data, &wrapped); err2 != nil {
			return "", nil, fmt.Errorf("parse facts %s: %w", path, err)
		}
		return wrapped.Probe, wrapped.Facts, nil
	}
	return "", list, nil
}

func (a *app) incidentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "incidents",
		Short: "Load, list and link historical incidents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "load <file>",
		Short: "Load historical incident records from a JSON or YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := engine.LoadIncidentFile(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()
			res, err := a.client().LoadIncidents(ctx, records)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), res, func() string {
				out := fmt.Sprintf("loaded %d incidents", len(res.IDs))
				if res.Warning != "" {
					out += "\nwarning: " + res.Warning
				}
				return out
			})
		},
	}, &cobra.Command{
		Use:   "list",
		Short: "List loaded incidents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			incidents, err := a.client().ListIncidents(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), incidents, func() string {
				rows := make([][]string, 0, len(incidents))
				for _, in := range incidents {
					rows = append(rows, []string{in.ID, in.Phenomenon, in.RootCause})
				}
				return renderTable([]string{"ID", "PHENOMENON", "ROOT CAUSE"}, rows)
			})
		},
	}, &cobra.Command{
		Use:   "link",
		Short: "Link issue-bearing entities to the incidents they resemble",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.context(cmd)
			defer cancel()
			n, err := a.client().LinkIncidents(ctx)
			if err != nil {
				return err
			}
			return a.render(cmd.OutOrStdout(), map[string]int{"linked": n}, func() string {
				return fmt.Sprintf("%d links created", n)
			})
		},
	})
	return cmd
}

func toLabels(ss []string) []graph.RelationLabel {
	out := make([]graph.RelationLabel, 0, len(ss))
	for _, s := range ss {
		out = append(out, graph.RelationLabel(s))
	}
	return out
}
