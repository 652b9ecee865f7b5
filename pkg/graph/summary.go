package graph

// Summary holds aggregate counts over the graph.
type Summary struct {
	NodeCount        int                   `json:"node_count"`
	EdgeCount        int                   `json:"edge_count"`
	IssueCount       int                   `json:"issue_count"`
	IncidentCount    int                   `json:"incident_count"`
	IncompleteCount  int                   `json:"incomplete_count"`
	CountsByType     map[EntityType]int    `json:"counts_by_type"`
	CountsBySeverity map[Severity]int      `json:"counts_by_severity"`
	CountsByLabel    map[RelationLabel]int `json:"counts_by_label"`
	Phase            Phase                 `json:"phase"`
}

// Summary returns node, edge and issue counts, broken down by entity type,
// severity and relationship label.
func (g *Graph) Summary() Summary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.summary()
}

func (g *Graph) summary() Summary {
	s := Summary{
		NodeCount:        len(g.entities),
		EdgeCount:        len(g.edges),
		IssueCount:       len(g.issues),
		IncidentCount:    len(g.incidents),
		CountsByType:     make(map[EntityType]int, len(g.byType)),
		CountsBySeverity: make(map[Severity]int, len(Severities)),
		CountsByLabel:    make(map[RelationLabel]int),
		Phase:            g.phase(),
	}
	for t, ids := range g.byType {
		s.CountsByType[t] = len(ids)
	}
	for _, sev := range Severities {
		s.CountsBySeverity[sev] = 0
	}
	for _, is := range g.issues {
		s.CountsBySeverity[is.Severity]++
	}
	for _, rel := range g.edges {
		s.CountsByLabel[rel.Label]++
	}
	for _, e := range g.entities {
		if e.Incomplete {
			s.IncompleteCount++
		}
	}
	return s
}
