package graph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Snapshot is the structured form of Dump. Every slice is in insertion
// order so two snapshots of the same state compare equal.
type Snapshot struct {
	Phase            Phase           `json:"phase"`
	CountsByType     []TypeCount     `json:"counts_by_type"`
	CountsByLabel    []LabelCount    `json:"counts_by_label"`
	IssuesBySeverity []SeverityGroup `json:"issues_by_severity"`
	Entities         []Entity        `json:"entities"`
	Edges            []Relationship  `json:"edges"`
}

// TypeCount is one row of the entity-type section.
type TypeCount struct {
	Type  EntityType `json:"type"`
	Count int        `json:"count"`
}

// LabelCount is one row of the relationship-label section.
type LabelCount struct {
	Label RelationLabel `json:"label"`
	Count int           `json:"count"`
}

// SeverityGroup holds the issues of one severity.
type SeverityGroup struct {
	Severity Severity `json:"severity"`
	Issues   []Issue  `json:"issues"`
}

// Snapshot returns the full graph state as a JSON-encodable record.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.snapshot()
}

func (g *Graph) snapshot() Snapshot {
	s := Snapshot{
		Phase:    g.phase(),
		Entities: g.allEntities(),
		Edges:    g.allRelationships(),
	}
	for _, t := range g.typeOrder {
		s.CountsByType = append(s.CountsByType, TypeCount{Type: t, Count: len(g.byType[t])})
	}

	labelCounts := make(map[RelationLabel]int)
	for _, rel := range g.edges {
		if _, seen := labelCounts[rel.Label]; !seen {
			s.CountsByLabel = append(s.CountsByLabel, LabelCount{Label: rel.Label})
		}
		labelCounts[rel.Label]++
	}
	for i := range s.CountsByLabel {
		s.CountsByLabel[i].Count = labelCounts[s.CountsByLabel[i].Label]
	}

	for _, sev := range Severities {
		group := SeverityGroup{Severity: sev, Issues: g.allIssues(IssueFilter{Severities: []Severity{sev}})}
		s.IssuesBySeverity = append(s.IssuesBySeverity, group)
	}
	return s
}

// Dump writes a deterministic, line-oriented text rendering of the graph:
// entity counts by type, relationship counts by label, issues grouped by
// severity and the edge list. Repeated calls on the same state produce
// identical output.
func (g *Graph) Dump(w io.Writer) error {
	s := g.Snapshot()
	return s.WriteText(w)
}

// WriteText renders the snapshot in the Dump text format.
func (s Snapshot) WriteText(w io.Writer) error {
	bw := bufio.NewWriter(w)

	nodes := 0
	for _, tc := range s.CountsByType {
		nodes += tc.Count
	}
	issues := 0
	for _, grp := range s.IssuesBySeverity {
		issues += len(grp.Issues)
	}

	fmt.Fprintf(bw, "# diagraph dump phase=%s nodes=%d edges=%d issues=%d\n", s.Phase, nodes, len(s.Edges), issues)

	fmt.Fprintln(bw, "\n[entities]")
	for _, tc := range s.CountsByType {
		fmt.Fprintf(bw, "%s\t%d\n", tc.Type, tc.Count)
	}

	fmt.Fprintln(bw, "\n[relationships]")
	for _, lc := range s.CountsByLabel {
		fmt.Fprintf(bw, "%s\t%d\n", lc.Label, lc.Count)
	}

	fmt.Fprintln(bw, "\n[issues]")
	for _, grp := range s.IssuesBySeverity {
		fmt.Fprintf(bw, "%s\t%d\n", grp.Severity, len(grp.Issues))
		for _, is := range grp.Issues {
			fmt.Fprintf(bw, "  %s\t%s\t%s\t%s\n", is.ID, is.EntityID, is.Category, oneLine(is.Message))
		}
	}

	fmt.Fprintln(bw, "\n[incomplete]")
	for _, e := range s.Entities {
		if e.Incomplete {
			fmt.Fprintf(bw, "%s\n", e.ID)
		}
	}

	fmt.Fprintln(bw, "\n[edges]")
	for _, rel := range s.Edges {
		fmt.Fprintf(bw, "%s -[%s]-> %s%s\n", rel.Source, rel.Label, rel.Target, formatAttrs(rel.Attributes))
	}

	return bw.Flush()
}

func formatAttrs(attrs Attributes) string {
	if len(attrs) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k].String())
	}
	return " {" + strings.Join(parts, ", ") + "}"
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
