package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

// IncidentMatcher scores free text against a historical incident. Swapping
// the matcher changes which incidents bias ranking without touching the
// scoring pipeline.
type IncidentMatcher interface {
	Match(text string, incident graph.Incident) (score float64, ok bool)
}

// KeywordMatcher matches by token overlap (Jaccard similarity) between the
// text and the incident phenomenon. A phenomenon whose tokens appear as a
// contiguous run in the text scores 1.
type KeywordMatcher struct {
	Threshold float64
}

// NewKeywordMatcher returns a matcher accepting scores >= threshold.
func NewKeywordMatcher(threshold float64) *KeywordMatcher {
	return &KeywordMatcher{Threshold: threshold}
}

// Match implements IncidentMatcher.
func (m *KeywordMatcher) Match(text string, incident graph.Incident) (float64, bool) {
	a := normalize(text)
	b := normalize(incident.Phenomenon)
	if a == "" || b == "" {
		return 0, false
	}
	if strings.Contains(" "+a+" ", " "+b+" ") {
		return 1, true
	}
	score := jaccardSimilarity(a, b)
	return score, score >= m.Threshold && score > 0
}

func jaccardSimilarity(s1, s2 string) float64 {
	tokens1 := tokenize(s1)
	tokens2 := tokenize(s2)
	if len(tokens1) == 0 && len(tokens2) == 0 {
		return 0
	}

	seen := make(map[string]bool, len(tokens1))
	for _, t := range tokens1 {
		seen[t] = true
	}
	union := make(map[string]bool, len(tokens1)+len(tokens2))
	for t := range seen {
		union[t] = true
	}
	intersection := 0
	counted := make(map[string]bool)
	for _, t := range tokens2 {
		union[t] = true
		if seen[t] && !counted[t] {
			counted[t] = true
			intersection++
		}
	}
	return float64(intersection) / float64(len(union))
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(s string) string {
	return strings.Join(tokenize(s), " ")
}

// IncidentMatch is one historical incident matched to an entity.
type IncidentMatch struct {
	IncidentID graph.EntityID `json:"incident_id"`
	Score      float64        `json:"score"`
	RootCause  string         `json:"root_cause,omitempty"`
}

// matchTexts returns the texts an entity is matched on: its key plus the
// text of each of its issues.
func matchTexts(e graph.Entity, issues []graph.Issue) []string {
	texts := []string{e.Key}
	for _, is := range issues {
		parts := []string{is.Category, is.Message, is.Evidence}
		parts = append(parts, is.PossibleCauses...)
		texts = append(texts, strings.Join(parts, " "))
	}
	return texts
}

// matchIncidents returns incidents matching any of texts, best score per
// incident, in incident load order.
func matchIncidents(m IncidentMatcher, texts []string, incidents []graph.Incident) []IncidentMatch {
	var out []IncidentMatch
	for _, inc := range incidents {
		best, hit := 0.0, false
		for _, text := range texts {
			if s, ok := m.Match(text, inc); ok && s > best {
				best, hit = s, true
			}
		}
		if hit {
			out = append(out, IncidentMatch{
				IncidentID: graph.NewEntityID(graph.EntityIncident, inc.ID),
				Score:      best,
				RootCause:  inc.RootCause,
			})
		}
	}
	return out
}

// IncidentGraph is the part of a graph LinkIncidents reads and writes.
type IncidentGraph interface {
	View(fn func(r graph.Reader))
	AddRelationship(source, target graph.EntityID, label graph.RelationLabel, attrs graph.Attributes) error
}

// LinkIncidents records a "matches" edge from every issue-bearing entity to
// each historical incident it matches, carrying the match score. It returns
// the number of links made; on error that counts the edges added before the
// failing one.
func LinkIncidents(g IncidentGraph, m IncidentMatcher) (int, error) {
	type link struct {
		from  graph.EntityID
		match IncidentMatch
	}
	var links []link
	g.View(func(r graph.Reader) {
		incidents := r.Incidents()
		if len(incidents) == 0 {
			return
		}
		for _, e := range r.Entities() {
			if e.Type == graph.EntityIncident {
				continue
			}
			issues := r.IssuesFor(e.ID)
			if len(issues) == 0 {
				continue
			}
			for _, mt := range matchIncidents(m, matchTexts(e, issues), incidents) {
				links = append(links, link{from: e.ID, match: mt})
			}
		}
	})

	linked := 0
	for _, l := range links {
		attrs := graph.Attributes{"score": graph.Float(l.match.Score)}
		if err := g.AddRelationship(l.from, l.match.IncidentID, graph.RelMatches, attrs); err != nil {
			return linked, fmt.Errorf("link %s to %s: %w", l.from, l.match.IncidentID, err)
		}
		linked++
	}
	return linked, nil
}

// LoadIncidentFile reads historical incident records from a JSON or YAML
// file, chosen by extension. The file holds either a list of records or an
// object with an "incidents" list.
func LoadIncidentFile(path string) ([]graph.Incident, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapped struct {
		Incidents []graph.Incident `json:"incidents" yaml:"incidents"`
	}
	var list []graph.Incident

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, &list); err != nil {
			if err2 := json.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("parse incidents %s: %w", path, err)
			}
			list = wrapped.Incidents
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err != nil {
			if err2 := yaml.Unmarshal(data, &wrapped); err2 != nil {
				return nil, fmt.Errorf("parse incidents %s: %w", path, err)
			}
			list = wrapped.Incidents
		}
	default:
		return nil, fmt.Errorf("unsupported incident file extension %q", filepath.Ext(path))
	}
	return list, nil
}
