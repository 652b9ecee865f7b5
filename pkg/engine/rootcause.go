package engine

import (
	"math"
	"sort"
	"time"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// Tier classifies a ranked entity.
type Tier string

const (
	TierPrimary   Tier = "primary"
	TierSecondary Tier = "secondary"
	TierSymptom   Tier = "symptom"
)

// ScoreBreakdown shows how a score was assembled.
type ScoreBreakdown struct {
	Reach          float64 `json:"reach"`
	ReachCount     int     `json:"reach_count"`
	SeverityWeight float64 `json:"severity_weight"`
	IncidentBonus  float64 `json:"incident_bonus"`
}

// RankedCause is one entity in the root-cause ranking.
type RankedCause struct {
	Rank             int                `json:"rank"`
	EntityID         graph.EntityID     `json:"entity_id"`
	Type             graph.EntityType   `json:"type"`
	Score            float64            `json:"score"`
	Tier             Tier               `json:"tier"`
	IsPrimary        bool               `json:"is_primary"`
	Domain           int                `json:"domain"`
	MaxSeverity      graph.Severity     `json:"max_severity"`
	SupportingIssues []graph.Issue      `json:"supporting_issues"`
	SupportingPaths  [][]graph.EntityID `json:"supporting_paths"`
	MatchedIncidents []IncidentMatch    `json:"matched_incidents,omitempty"`
	Breakdown        ScoreBreakdown     `json:"breakdown"`

	seq uint64
}

// Analyzer ranks issue-bearing entities by likelihood of being a root cause.
type Analyzer struct {
	cfg     AnalysisConfig
	matcher IncidentMatcher
}

// AnalyzerOption configures an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithMatcher replaces the default keyword incident matcher.
func WithMatcher(m IncidentMatcher) AnalyzerOption {
	return func(a *Analyzer) { a.matcher = m }
}

// NewAnalyzer creates an analyzer. An invalid cfg falls back to defaults.
func NewAnalyzer(cfg AnalysisConfig, opts ...AnalyzerOption) *Analyzer {
	if err := cfg.Validate(); err != nil {
		cfg = DefaultConfig()
	}
	a := &Analyzer{cfg: cfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.matcher == nil {
		a.matcher = NewKeywordMatcher(cfg.MatchThreshold)
	}
	return a
}

// Config returns the analyzer's effective configuration.
func (a *Analyzer) Config() AnalysisConfig {
	return a.cfg
}

// AnalyzeGraph runs Analyze against one consistent view of g.
func (a *Analyzer) AnalyzeGraph(g *graph.Graph) []RankedCause {
	start := time.Now()
	var causes []RankedCause
	g.View(func(r graph.Reader) {
		causes = a.Analyze(r)
	})
	DiagraphAnalysisSeconds.WithLabelValues("rootcause").Observe(time.Since(start).Seconds())
	return causes
}

// Analyze ranks every entity that carries issues. Entities with a critical
// or high issue are candidates, scored as
//
//	reach + severity weight of the worst issue + incident bonus
//
// where reach sums Decay^(hops-1) over distinct entities within MaxDepth
// hops in the configured direction. The default direction, ReachDependents,
// counts entities that reach the candidate, not those it reaches through
// outgoing edges, so a drive outranks the pod that mounts it; set
// ReachDependencies to count outgoing reach instead. Candidates are ordered by score, ties
// by creation order. The best candidate of each failure domain (connected
// component of the graph, ignoring incident nodes) is primary; candidates
// above SecondaryFraction of their domain's primary are secondary; the rest
// are symptoms. Entities with only medium or low issues follow as symptoms.
// An empty graph yields an empty, non-nil list.
func (a *Analyzer) Analyze(r graph.Reader) []RankedCause {
	incidents := r.Incidents()
	domains := failureDomains(r)
	issueBearing := make(map[graph.EntityID]bool)

	var candidates, minor []RankedCause
	entities := r.Entities()
	issuesByEntity := make(map[graph.EntityID][]graph.Issue)
	for _, e := range entities {
		if e.Type == graph.EntityIncident {
			continue
		}
		if issues := r.IssuesFor(e.ID); len(issues) > 0 {
			issuesByEntity[e.ID] = issues
			issueBearing[e.ID] = true
		}
	}

	for _, e := range entities {
		issues, ok := issuesByEntity[e.ID]
		if !ok {
			continue
		}
		rc := a.score(r, e, issues, incidents, issueBearing)
		rc.Domain = domains[e.ID]
		if rc.MaxSeverity.Rank() >= graph.SeverityHigh.Rank() {
			candidates = append(candidates, rc)
		} else {
			minor = append(minor, rc)
		}
	}

	sortCauses(candidates)
	sortCauses(minor)

	primaryScore := make(map[int]float64)
	for i := range candidates {
		c := &candidates[i]
		top, seen := primaryScore[c.Domain]
		switch {
		case !seen:
			primaryScore[c.Domain] = c.Score
			c.Tier = TierPrimary
			c.IsPrimary = true
		case c.Score > a.cfg.SecondaryFraction*top:
			c.Tier = TierSecondary
		default:
			c.Tier = TierSymptom
		}
	}
	for i := range minor {
		minor[i].Tier = TierSymptom
	}

	out := make([]RankedCause, 0, len(candidates)+len(minor))
	out = append(out, candidates...)
	out = append(out, minor...)
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

func (a *Analyzer) score(r graph.Reader, e graph.Entity, issues []graph.Issue, incidents []graph.Incident, issueBearing map[graph.EntityID]bool) RankedCause {
	rc := RankedCause{
		EntityID: e.ID,
		Type:     e.Type,
		seq:      e.Seq,
	}

	sorted := append([]graph.Issue(nil), issues...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Severity.Rank() > sorted[j].Severity.Rank()
	})
	rc.SupportingIssues = sorted
	rc.MaxSeverity = sorted[0].Severity

	dir := a.cfg.ReachDirection
	w := walk(r, e.ID, dir.graphDirection(), a.cfg.MaxDepth)
	for _, id := range w.order {
		rc.Breakdown.Reach += math.Pow(a.cfg.Decay, float64(w.dist[id]-1))
	}
	rc.Breakdown.ReachCount = len(w.order)
	rc.Breakdown.SeverityWeight = a.cfg.SeverityWeights[rc.MaxSeverity]

	rc.SupportingPaths = make([][]graph.EntityID, 0)
	for _, id := range w.order {
		if len(rc.SupportingPaths) >= a.cfg.MaxSupportingPaths {
			break
		}
		if !issueBearing[id] {
			continue
		}
		rc.SupportingPaths = append(rc.SupportingPaths, w.pathTo(id, dir == ReachDependents))
	}

	rc.MatchedIncidents = mergeMatches(
		matchIncidents(a.matcher, matchTexts(e, issues), incidents),
		linkedIncidents(r, e.ID),
	)
	if len(rc.MatchedIncidents) > 0 {
		rc.Breakdown.IncidentBonus = a.cfg.IncidentBonus
	}

	rc.Score = rc.Breakdown.Reach + rc.Breakdown.SeverityWeight + rc.Breakdown.IncidentBonus
	return rc
}

func sortCauses(c []RankedCause) {
	sort.SliceStable(c, func(i, j int) bool {
		if c[i].Score != c[j].Score {
			return c[i].Score > c[j].Score
		}
		return c[i].seq < c[j].seq
	})
}

// linkedIncidents returns incidents already linked to id by "matches" edges.
func linkedIncidents(r graph.Reader, id graph.EntityID) []IncidentMatch {
	var out []IncidentMatch
	for _, n := range r.Outgoing(id, graph.RelMatches) {
		if n.ID.Type() != graph.EntityIncident {
			continue
		}
		score, _ := n.Attributes["score"].AsFloat()
		m := IncidentMatch{IncidentID: n.ID, Score: score}
		if inc, ok := r.GetEntity(n.ID); ok {
			m.RootCause, _ = inc.Attributes[graph.AttrRootCause].AsString()
		}
		out = append(out, m)
	}
	return out
}

func mergeMatches(lists ...[]IncidentMatch) []IncidentMatch {
	var out []IncidentMatch
	index := make(map[graph.EntityID]int)
	for _, list := range lists {
		for _, m := range list {
			if i, ok := index[m.IncidentID]; ok {
				if m.Score > out[i].Score {
					out[i].Score = m.Score
				}
				continue
			}
			index[m.IncidentID] = len(out)
			out = append(out, m)
		}
	}
	return out
}

// walkResult is a bounded BFS over the infrastructure graph.
type walkResult struct {
	start  graph.EntityID
	order  []graph.EntityID
	dist   map[graph.EntityID]int
	parent map[graph.EntityID]graph.EntityID
}

// walk expands from start up to maxDepth hops, skipping incident nodes and
// "matches" edges so that sharing a historical incident never joins two
// entities.
func walk(r graph.Reader, start graph.EntityID, dir graph.Direction, maxDepth int) walkResult {
	w := walkResult{
		start:  start,
		dist:   map[graph.EntityID]int{start: 0},
		parent: make(map[graph.EntityID]graph.EntityID),
	}
	frontier := []graph.EntityID{start}
	for depth := 1; len(frontier) > 0 && (maxDepth <= 0 || depth <= maxDepth); depth++ {
		var next []graph.EntityID
		for _, cur := range frontier {
			for _, n := range neighbors(r, cur, dir) {
				if _, seen := w.dist[n]; seen {
					continue
				}
				w.dist[n] = depth
				w.parent[n] = cur
				w.order = append(w.order, n)
				next = append(next, n)
			}
		}
		frontier = next
	}
	delete(w.dist, start)
	return w
}

// pathTo rebuilds the path between start and id. With towardStart the path
// runs from id to start, otherwise from start to id.
func (w walkResult) pathTo(id graph.EntityID, towardStart bool) []graph.EntityID {
	path := []graph.EntityID{id}
	for cur := id; cur != w.start; {
		cur = w.parent[cur]
		path = append(path, cur)
	}
	if !towardStart {
		for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
			path[i], path[j] = path[j], path[i]
		}
	}
	return path
}

func neighbors(r graph.Reader, id graph.EntityID, dir graph.Direction) []graph.EntityID {
	var out []graph.EntityID
	add := func(ns []graph.Neighbor) {
		for _, n := range ns {
			if n.Label == graph.RelMatches || n.ID.Type() == graph.EntityIncident {
				continue
			}
			out = append(out, n.ID)
		}
	}
	if dir == graph.DirectionOutgoing || dir == graph.DirectionBoth {
		add(r.Outgoing(id))
	}
	if dir == graph.DirectionIncoming || dir == graph.DirectionBoth {
		add(r.Incoming(id))
	}
	return out
}

// failureDomains labels every non-incident entity with the index of its
// connected component, numbered in creation order of the component's first
// entity.
func failureDomains(r graph.Reader) map[graph.EntityID]int {
	domains := make(map[graph.EntityID]int)
	next := 0
	for _, e := range r.Entities() {
		if e.Type == graph.EntityIncident {
			continue
		}
		if _, ok := domains[e.ID]; ok {
			continue
		}
		domains[e.ID] = next
		for id := range walk(r, e.ID, graph.DirectionBoth, 0).dist {
			domains[id] = next
		}
		next++
	}
	return domains
}
