package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

const (
	pod1  graph.EntityID = "pod:app/pod1"
	pvc1  graph.EntityID = "pvc:app/pvc1"
	vol1  graph.EntityID = "pv:vol1"
	disk1 graph.EntityID = "drive:d1"
)

// podChain ingests pod1 -uses-> pvc1 -bound_to-> vol1 -maps_to-> d1 with a
// critical hardware issue on d1.
func podChain(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	_, err := g.UpsertEntity(graph.EntityPod, "app/pod1", graph.Attributes{"phase": graph.String("ContainerCreating")})
	require.NoError(t, err)
	_, err = g.UpsertEntity(graph.EntityPVC, "app/pvc1", nil)
	require.NoError(t, err)
	_, err = g.UpsertEntity(graph.EntityPV, "vol1", nil)
	require.NoError(t, err)
	_, err = g.UpsertEntity(graph.EntityDrive, "d1", graph.Attributes{"health": graph.String("BAD")})
	require.NoError(t, err)

	require.NoError(t, g.AddRelationship(pod1, pvc1, graph.RelUses, nil))
	require.NoError(t, g.AddRelationship(pvc1, vol1, graph.RelBoundTo, nil))
	require.NoError(t, g.AddRelationship(vol1, disk1, graph.RelMapsTo, nil))

	_, err = g.RecordIssue(graph.Issue{
		EntityID:           disk1,
		Severity:           graph.SeverityCritical,
		Category:           "hardware",
		Message:            "reallocated sectors detected",
		RecommendedActions: []string{"Replace drive d1", "Migrate data off d1"},
	})
	require.NoError(t, err)
	return g
}

func findCause(causes []RankedCause, id graph.EntityID) (RankedCause, bool) {
	for _, c := range causes {
		if c.EntityID == id {
			return c, true
		}
	}
	return RankedCause{}, false
}

func TestAnalyze_DriveIsPrimary(t *testing.T) {
	g := podChain(t)
	_, err := g.RecordIssue(graph.Issue{
		EntityID:           pod1,
		Severity:           graph.SeverityHigh,
		Category:           "mount",
		Message:            "MountVolume.SetUp failed",
		RecommendedActions: []string{"Restart pod app/pod1"},
	})
	require.NoError(t, err)

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 2)

	top := causes[0]
	assert.Equal(t, disk1, top.EntityID)
	assert.True(t, top.IsPrimary)
	assert.Equal(t, TierPrimary, top.Tier)
	assert.Equal(t, 1, top.Rank)
	assert.InDelta(t, 101.75, top.Score, 1e-9)
	assert.Equal(t, 3, top.Breakdown.ReachCount)
	assert.Equal(t, [][]graph.EntityID{{pod1, pvc1, vol1, disk1}}, top.SupportingPaths)
	require.Len(t, top.SupportingIssues, 1)
	assert.Equal(t, "hardware", top.SupportingIssues[0].Category)

	pod := causes[1]
	assert.Equal(t, pod1, pod.EntityID)
	assert.False(t, pod.IsPrimary)
	assert.Equal(t, TierSecondary, pod.Tier)
	assert.InDelta(t, 50.0, pod.Score, 1e-9)
	assert.Equal(t, top.Domain, pod.Domain)
}

func TestAnalyze_SymptomBelowFraction(t *testing.T) {
	g := podChain(t)
	_, err := g.RecordIssue(graph.Issue{EntityID: pod1, Severity: graph.SeverityHigh, Category: "mount"})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.SecondaryFraction = 0.9
	causes := NewAnalyzer(cfg).AnalyzeGraph(g)

	pod, ok := findCause(causes, pod1)
	require.True(t, ok)
	assert.Equal(t, TierSymptom, pod.Tier)
}

func TestAnalyze_DependenciesDirection(t *testing.T) {
	g := podChain(t)
	_, err := g.RecordIssue(graph.Issue{EntityID: pod1, Severity: graph.SeverityHigh})
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.ReachDirection = ReachDependencies
	causes := NewAnalyzer(cfg).AnalyzeGraph(g)

	pod, ok := findCause(causes, pod1)
	require.True(t, ok)
	assert.InDelta(t, 51.75, pod.Score, 1e-9)
	assert.Equal(t, [][]graph.EntityID{{pod1, pvc1, vol1, disk1}}, pod.SupportingPaths)

	drive, ok := findCause(causes, disk1)
	require.True(t, ok)
	assert.InDelta(t, 100.0, drive.Score, 1e-9)
}

func TestAnalyze_IndependentDomainsBothPrimary(t *testing.T) {
	g := podChain(t)
	_, err := g.UpsertEntity(graph.EntityNode, "n9", nil)
	require.NoError(t, err)
	_, err = g.RecordIssue(graph.Issue{EntityID: "node:n9", Severity: graph.SeverityCritical, Category: "kubelet"})
	require.NoError(t, err)

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 2)
	for _, c := range causes {
		assert.True(t, c.IsPrimary, c.EntityID)
		assert.Equal(t, TierPrimary, c.Tier)
	}
	assert.NotEqual(t, causes[0].Domain, causes[1].Domain)

	_, ok := g.ShortestPath(disk1, "node:n9", graph.WithDirection(graph.DirectionBoth))
	assert.False(t, ok)
}

func TestAnalyze_SeverityMonotonic(t *testing.T) {
	g := graph.New()
	for _, suffix := range []string{"a", "b"} {
		pod := graph.NewEntityID(graph.EntityPod, "ns/"+suffix)
		pvc := graph.NewEntityID(graph.EntityPVC, "ns/"+suffix)
		drive := graph.NewEntityID(graph.EntityDrive, suffix)
		require.NoError(t, g.AddRelationship(pod, pvc, graph.RelUses, nil))
		require.NoError(t, g.AddRelationship(pvc, drive, graph.RelMapsTo, nil))
	}
	// drive:b is seen first in the ledger so creation order cannot explain the result.
	_, err := g.RecordIssue(graph.Issue{EntityID: "drive:b", Severity: graph.SeverityMedium})
	require.NoError(t, err)
	_, err = g.RecordIssue(graph.Issue{EntityID: "drive:a", Severity: graph.SeverityCritical})
	require.NoError(t, err)

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 2)
	assert.Equal(t, graph.EntityID("drive:a"), causes[0].EntityID)
	assert.Equal(t, graph.EntityID("drive:b"), causes[1].EntityID)
	assert.Equal(t, TierSymptom, causes[1].Tier)
	assert.Greater(t, causes[0].Score, causes[1].Score)
}

func TestAnalyze_TieBreakByCreationOrder(t *testing.T) {
	g := graph.New()
	for _, key := range []string{"z", "a", "m"} {
		_, err := g.UpsertEntity(graph.EntityDrive, key, nil)
		require.NoError(t, err)
	}
	for _, key := range []string{"a", "m", "z"} {
		_, err := g.RecordIssue(graph.Issue{EntityID: graph.NewEntityID(graph.EntityDrive, key), Severity: graph.SeverityHigh})
		require.NoError(t, err)
	}

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 3)
	assert.Equal(t, graph.EntityID("drive:z"), causes[0].EntityID)
	assert.Equal(t, graph.EntityID("drive:a"), causes[1].EntityID)
	assert.Equal(t, graph.EntityID("drive:m"), causes[2].EntityID)
}

func TestAnalyze_Deterministic(t *testing.T) {
	g := podChain(t)
	_, err := g.RecordIssue(graph.Issue{EntityID: pod1, Severity: graph.SeverityHigh})
	require.NoError(t, err)
	_, err = g.RecordIssue(graph.Issue{EntityID: pvc1, Severity: graph.SeverityLow})
	require.NoError(t, err)

	a := NewAnalyzer(DefaultConfig())
	first := a.AnalyzeGraph(g)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, a.AnalyzeGraph(g))
	}
}

func TestAnalyze_EmptyGraph(t *testing.T) {
	g := graph.New()
	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	assert.NotNil(t, causes)
	assert.Empty(t, causes)

	plan := NewPlanner().PlanGraph(g, causes)
	assert.Empty(t, plan.Steps)
	assert.Empty(t, plan.Superseded)
}

func TestAnalyze_IncidentBonus(t *testing.T) {
	g := podChain(t)
	_, err := g.LoadHistoricalIncidents([]graph.Incident{
		{Phenomenon: "reallocated sectors detected on drive", RootCause: "failing disk"},
		{Phenomenon: "dns lookups time out", RootCause: "coredns crash"},
	})
	require.NoError(t, err)

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 1)
	c := causes[0]
	assert.InDelta(t, 121.75, c.Score, 1e-9)
	assert.Equal(t, 20.0, c.Breakdown.IncidentBonus)
	require.Len(t, c.MatchedIncidents, 1)
	assert.Equal(t, graph.EntityID("incident:case-001"), c.MatchedIncidents[0].IncidentID)
	assert.Equal(t, "failing disk", c.MatchedIncidents[0].RootCause)
}

type neverMatcher struct{}

func (neverMatcher) Match(string, graph.Incident) (float64, bool) { return 0, false }

func TestAnalyze_CustomMatcher(t *testing.T) {
	g := podChain(t)
	_, err := g.LoadHistoricalIncidents([]graph.Incident{{Phenomenon: "reallocated sectors detected"}})
	require.NoError(t, err)

	causes := NewAnalyzer(DefaultConfig(), WithMatcher(neverMatcher{})).AnalyzeGraph(g)
	require.Len(t, causes, 1)
	assert.Zero(t, causes[0].Breakdown.IncidentBonus)
	assert.Empty(t, causes[0].MatchedIncidents)
}

func TestAnalyze_SharedIncidentDoesNotMergeDomains(t *testing.T) {
	g := graph.New()
	for _, key := range []string{"d1", "d2"} {
		_, err := g.RecordIssue(graph.Issue{
			EntityID: graph.NewEntityID(graph.EntityDrive, key),
			Severity: graph.SeverityCritical,
			Message:  "filesystem is read-only",
		})
		require.NoError(t, err)
	}
	_, err := g.LoadHistoricalIncidents([]graph.Incident{{ID: "ro", Phenomenon: "filesystem is read-only"}})
	require.NoError(t, err)

	n, err := LinkIncidents(g, NewKeywordMatcher(0.3))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, g.Incoming("incident:ro", graph.RelMatches), 2)

	causes := NewAnalyzer(DefaultConfig()).AnalyzeGraph(g)
	require.Len(t, causes, 2)
	for _, c := range causes {
		assert.True(t, c.IsPrimary, c.EntityID)
		assert.Equal(t, 0, c.Breakdown.ReachCount)
		require.Len(t, c.MatchedIncidents, 1)
		assert.Equal(t, 1.0, c.MatchedIncidents[0].Score)
	}
}
