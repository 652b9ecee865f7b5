package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

func TestKeywordMatcher(t *testing.T) {
	m := NewKeywordMatcher(0.3)
	inc := graph.Incident{Phenomenon: "Volume mount failed: device busy"}

	score, ok := m.Match("kubelet: volume mount failed: device busy (retrying)", inc)
	assert.True(t, ok)
	assert.Equal(t, 1.0, score)

	score, ok = m.Match("mount failed on device", inc)
	assert.True(t, ok)
	assert.InDelta(t, 3.0/6.0, score, 1e-9)

	_, ok = m.Match("network partition", inc)
	assert.False(t, ok)

	_, ok = m.Match("", inc)
	assert.False(t, ok)
}

func TestJaccardSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, jaccardSimilarity("disk full", "Full DISK"))
	assert.Equal(t, 0.0, jaccardSimilarity("", ""))
	assert.InDelta(t, 1.0/3.0, jaccardSimilarity("disk full", "disk slow"), 1e-9)
}

func TestLoadIncidentFile(t *testing.T) {
	yamlPath := writeFile(t, "incidents.yaml", `
incidents:
  - id: kb-1
    phenomenon: pvc pending no capacity
    root_cause: pool exhausted
    localization_method: check pool free space
    resolution_method: add drives to pool
`)
	list, err := LoadIncidentFile(yamlPath)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "kb-1", list[0].ID)
	assert.Equal(t, "add drives to pool", list[0].ResolutionMethod)

	jsonPath := writeFile(t, "incidents.json", `[{"phenomenon":"read-only filesystem","root_cause":"disk errors"}]`)
	list, err = LoadIncidentFile(jsonPath)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "disk errors", list[0].RootCause)

	_, err = LoadIncidentFile(writeFile(t, "incidents.txt", "x"))
	assert.Error(t, err)
}

// failAfter rejects every relationship after the first n.
type failAfter struct {
	*graph.Graph
	n int
}

func (f *failAfter) AddRelationship(source, target graph.EntityID, label graph.RelationLabel, attrs graph.Attributes) error {
	if f.n == 0 {
		return errors.New("store unavailable")
	}
	f.n--
	return f.Graph.AddRelationship(source, target, label, attrs)
}

func TestLinkIncidents_PartialFailureCountsLinksMade(t *testing.T) {
	g := graph.New()
	for _, key := range []string{"d1", "d2", "d3"} {
		_, err := g.RecordIssue(graph.Issue{
			EntityID: graph.NewEntityID(graph.EntityDrive, key),
			Severity: graph.SeverityHigh,
			Message:  "drive offline",
		})
		require.NoError(t, err)
	}
	_, err := g.LoadHistoricalIncidents([]graph.Incident{{ID: "off", Phenomenon: "drive offline"}})
	require.NoError(t, err)

	n, err := LinkIncidents(&failAfter{Graph: g, n: 2}, NewKeywordMatcher(0.3))
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, g.Incoming("incident:off", graph.RelMatches), 2)
}
