package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// PlanStep is one remediation action.
type PlanStep struct {
	Step         int            `json:"step"`
	Description  string         `json:"description"`
	TargetEntity graph.EntityID `json:"target_entity"`
	Rationale    string         `json:"rationale"`
	Tier         Tier           `json:"tier"`
	Severity     graph.Severity `json:"severity"`
	IssueID      string         `json:"issue_id,omitempty"`
}

// SupersededStep is a step dropped because an earlier step on the same
// entity contradicts it.
type SupersededStep struct {
	PlanStep
	SupersededBy int `json:"superseded_by"`
}

// Plan is an ordered remediation sequence.
type Plan struct {
	Steps      []PlanStep       `json:"steps"`
	Superseded []SupersededStep `json:"superseded"`
}

// Planner turns ranked causes into a fix plan.
type Planner struct{}

// NewPlanner creates a planner.
func NewPlanner() *Planner {
	return &Planner{}
}

// PlanGraph builds a plan against one consistent view of g.
func (p *Planner) PlanGraph(g *graph.Graph, causes []RankedCause) Plan {
	start := time.Now()
	var plan Plan
	g.View(func(r graph.Reader) {
		plan = p.Plan(r, causes)
	})
	DiagraphAnalysisSeconds.WithLabelValues("fixplan").Observe(time.Since(start).Seconds())
	return plan
}

// Plan orders remediation for causes (as returned by Analyzer.Analyze).
// Primary-tier and critical causes come before the rest. Within each group a
// cause that another cause depends on (reaches through outgoing edges) is
// handled first; otherwise rank order holds. Each cause contributes its
// issues' recommended actions, most severe first, or one inspection step
// when it has none. A step contradicting an earlier step on the same entity
// is moved to Superseded.
func (p *Planner) Plan(r graph.Reader, causes []RankedCause) Plan {
	plan := Plan{Steps: make([]PlanStep, 0), Superseded: make([]SupersededStep, 0)}
	if len(causes) == 0 {
		return plan
	}

	var urgent, rest []RankedCause
	for _, c := range causes {
		if c.Tier == TierPrimary || c.MaxSeverity == graph.SeverityCritical {
			urgent = append(urgent, c)
		} else {
			rest = append(rest, c)
		}
	}

	ordered := append(dependencyOrder(r, urgent), dependencyOrder(r, rest)...)
	for _, c := range ordered {
		for _, step := range stepsFor(c) {
			if prev, ok := contradicted(plan.Steps, step); ok {
				plan.Superseded = append(plan.Superseded, SupersededStep{PlanStep: step, SupersededBy: prev})
				continue
			}
			step.Step = len(plan.Steps) + 1
			plan.Steps = append(plan.Steps, step)
		}
	}
	return plan
}

// dependencyOrder sorts causes so that a cause comes after every cause it
// reaches through outgoing edges. Among ready causes the best ranked goes
// first; on a cycle the best ranked remaining cause is taken.
func dependencyOrder(r graph.Reader, causes []RankedCause) []RankedCause {
	n := len(causes)
	if n < 2 {
		return causes
	}

	// dependents[j] lists the causes that reach causes[j] and wait for it.
	indegree := make([]int, n)
	dependents := make([][]int, n)
	for i, c := range causes {
		reach := r.Reachable(c.EntityID, graph.DirectionOutgoing, 0)
		for j, d := range causes {
			if i == j {
				continue
			}
			if _, ok := reach[d.EntityID]; ok {
				indegree[i]++
				dependents[j] = append(dependents[j], i)
			}
		}
	}

	done := make([]bool, n)
	out := make([]RankedCause, 0, n)
	for len(out) < n {
		pick := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				pick = i
				break
			}
		}
		if pick < 0 {
			for i := 0; i < n; i++ {
				if !done[i] {
					pick = i
					break
				}
			}
		}
		done[pick] = true
		out = append(out, causes[pick])
		for _, d := range dependents[pick] {
			indegree[d]--
		}
	}
	return out
}

func stepsFor(c RankedCause) []PlanStep {
	var steps []PlanStep
	seen := make(map[string]bool)
	for _, is := range c.SupportingIssues {
		for _, action := range is.RecommendedActions {
			action = strings.TrimSpace(action)
			key := strings.ToLower(action)
			if action == "" || seen[key] {
				continue
			}
			seen[key] = true
			steps = append(steps, PlanStep{
				Description:  action,
				TargetEntity: c.EntityID,
				Rationale:    rationale(c, is),
				Tier:         c.Tier,
				Severity:     is.Severity,
				IssueID:      is.ID,
			})
		}
	}
	if len(steps) == 0 && len(c.SupportingIssues) > 0 {
		top := c.SupportingIssues[0]
		steps = append(steps, PlanStep{
			Description:  fmt.Sprintf("Inspect %s and collect more evidence", c.EntityID),
			TargetEntity: c.EntityID,
			Rationale:    rationale(c, top) + "; no recommended action recorded",
			Tier:         c.Tier,
			Severity:     top.Severity,
			IssueID:      top.ID,
		})
	}
	return steps
}

func rationale(c RankedCause, is graph.Issue) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s issue", is.Severity, is.Category)
	if is.Message != "" {
		fmt.Fprintf(&b, ": %s", is.Message)
	}
	fmt.Fprintf(&b, " (%s cause, rank %d, score %.2f", c.Tier, c.Rank, c.Score)
	if n := len(c.SupportingPaths); n > 0 {
		fmt.Fprintf(&b, ", explains %d affected entit%s", n, plural(n, "y", "ies"))
	}
	if len(c.MatchedIncidents) > 0 {
		fmt.Fprintf(&b, ", matches %s", c.MatchedIncidents[0].IncidentID)
	}
	b.WriteString(")")
	return b.String()
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var opposingVerbs = map[string]string{
	"expand":     "shrink",
	"shrink":     "expand",
	"mount":      "unmount",
	"unmount":    "mount",
	"cordon":     "uncordon",
	"uncordon":   "cordon",
	"enable":     "disable",
	"disable":    "enable",
	"start":      "stop",
	"stop":       "start",
	"attach":     "detach",
	"detach":     "attach",
	"scale_up":   "scale_down",
	"scale_down": "scale_up",
	"delete":     "restore",
	"restore":    "delete",
}

// contradicted reports the number of an earlier step on the same target
// whose action opposes step's action.
func contradicted(steps []PlanStep, step PlanStep) (int, bool) {
	verbs := actionVerbs(step.Description)
	if len(verbs) == 0 {
		return 0, false
	}
	for _, prev := range steps {
		if prev.TargetEntity != step.TargetEntity {
			continue
		}
		prevVerbs := actionVerbs(prev.Description)
		for v := range verbs {
			if prevVerbs[opposingVerbs[v]] {
				return prev.Step, true
			}
		}
	}
	return 0, false
}

func actionVerbs(desc string) map[string]bool {
	tokens := tokenize(desc)
	verbs := make(map[string]bool)
	for i, t := range tokens {
		if t == "scale" && i+1 < len(tokens) && (tokens[i+1] == "up" || tokens[i+1] == "down") {
			verbs["scale_"+tokens[i+1]] = true
			continue
		}
		if _, ok := opposingVerbs[t]; ok {
			verbs[t] = true
		}
	}
	return verbs
}
