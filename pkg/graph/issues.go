package graph

import (
	"fmt"
	"strings"
)

// RecordIssue appends an issue to the ledger and returns its id. The issue's
// entity is created as an incomplete stub when it does not exist yet, so a
// probe that reports a problem before the entity is described loses nothing.
// No deduplication happens here.
func (g *Graph) RecordIssue(issue Issue) (string, error) {
	sev, err := ParseSeverity(string(issue.Severity))
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, err := g.ensureStubLocked(issue.EntityID); err != nil {
		return "", err
	}

	g.issueSeq++
	rec := issue.clone()
	rec.ID = fmt.Sprintf("issue-%06d", g.issueSeq)
	rec.Severity = sev
	rec.Category = strings.TrimSpace(rec.Category)
	rec.Seq = g.nextSeq()
	if rec.DetectedAt.IsZero() {
		rec.DetectedAt = g.now()
	}

	g.issues = append(g.issues, &rec)
	g.issuesByEntity[rec.EntityID] = append(g.issuesByEntity[rec.EntityID], &rec)
	return rec.ID, nil
}

// IssuesFor returns the issues recorded against id, in record order.
func (g *Graph) IssuesFor(id EntityID) []Issue {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.issuesFor(id)
}

func (g *Graph) issuesFor(id EntityID) []Issue {
	list := g.issuesByEntity[id]
	out := make([]Issue, 0, len(list))
	for _, is := range list {
		out = append(out, is.clone())
	}
	return out
}

// AllIssues returns every issue matching the filter, in record order.
func (g *Graph) AllIssues(filter IssueFilter) []Issue {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.allIssues(filter)
}

func (g *Graph) allIssues(filter IssueFilter) []Issue {
	out := make([]Issue, 0)
	for _, is := range g.issues {
		if filter.match(is) {
			out = append(out, is.clone())
		}
	}
	return out
}
