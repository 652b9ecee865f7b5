package graph

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock() func() time.Time {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return ts }
}

// storageChain builds pod -> pvc -> pv -> drive -> node.
func storageChain(t *testing.T) *Graph {
	t.Helper()
	g := New(WithClock(fixedClock()))
	_, err := g.UpsertEntity(EntityPod, "app/pod1", Attributes{"phase": String("Pending")})
	require.NoError(t, err)
	_, err = g.UpsertEntity(EntityPVC, "app/data", nil)
	require.NoError(t, err)
	_, err = g.UpsertEntity(EntityPV, "pv-1", nil)
	require.NoError(t, err)
	_, err = g.UpsertEntity(EntityDrive, "d1", Attributes{"health": String("BAD")})
	require.NoError(t, err)
	_, err = g.UpsertEntity(EntityNode, "n1", nil)
	require.NoError(t, err)

	require.NoError(t, g.AddRelationship("pod:app/pod1", "pvc:app/data", RelUses, nil))
	require.NoError(t, g.AddRelationship("pvc:app/data", "pv:pv-1", RelBoundTo, nil))
	require.NoError(t, g.AddRelationship("pv:pv-1", "drive:d1", RelMapsTo, nil))
	require.NoError(t, g.AddRelationship("drive:d1", "node:n1", RelLocatedOn, nil))
	return g
}

func TestUpsertEntity_Idempotent(t *testing.T) {
	g := New()
	attrs := Attributes{"capacity": Int(100), "health": String("GOOD")}

	id1, err := g.UpsertEntity(EntityDrive, "d1", attrs)
	require.NoError(t, err)
	id2, err := g.UpsertEntity(EntityDrive, "d1", attrs)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, EntityID("drive:d1"), id1)
	assert.Equal(t, []EntityID{"drive:d1"}, g.ListEntitiesByType(EntityDrive))

	e, ok := g.GetEntity(id1)
	require.True(t, ok)
	assert.Equal(t, attrs, e.Attributes)
}

func TestUpsertEntity_MergesAttributes(t *testing.T) {
	g := New()
	_, err := g.UpsertEntity(EntityDrive, "d1", Attributes{"health": String("GOOD"), "size": Int(10)})
	require.NoError(t, err)
	_, err = g.UpsertEntity(EntityDrive, "d1", Attributes{"health": String("BAD"), "path": String("/dev/sdb")})
	require.NoError(t, err)

	e, ok := g.GetEntity("drive:d1")
	require.True(t, ok)
	assert.Equal(t, Attributes{
		"health": String("BAD"),
		"size":   Int(10),
		"path":   String("/dev/sdb"),
	}, e.Attributes)
}

func TestUpsertEntity_Errors(t *testing.T) {
	g := New()

	_, err := g.UpsertEntity("toaster", "t1", nil)
	assert.True(t, errors.Is(err, ErrUnknownEntityType))

	_, err = g.UpsertEntity(EntityPod, "", nil)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	_, err = g.UpsertEntity(EntityPod, "   ", nil)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	assert.Equal(t, 0, g.Summary().NodeCount)
}

func TestUpsertEntity_ExtendedVocabulary(t *testing.T) {
	g := New(WithEntityTypes("snapshot"))
	id, err := g.UpsertEntity("snapshot", "s1", nil)
	require.NoError(t, err)
	assert.Equal(t, EntityID("snapshot:s1"), id)
	assert.True(t, g.KnownEntityType("snapshot"))
}

func TestGetEntity_ReturnsCopy(t *testing.T) {
	g := New()
	_, err := g.UpsertEntity(EntityNode, "n1", Attributes{"ready": Bool(true)})
	require.NoError(t, err)

	e, _ := g.GetEntity("node:n1")
	e.Attributes["ready"] = Bool(false)

	again, _ := g.GetEntity("node:n1")
	assert.Equal(t, Bool(true), again.Attributes["ready"])
}

func TestAddRelationship_CreatesStubs(t *testing.T) {
	g := New()
	require.NoError(t, g.AddRelationship("pod:a/p", "pvc:a/c", RelUses, nil))

	for _, id := range []EntityID{"pod:a/p", "pvc:a/c"} {
		e, ok := g.GetEntity(id)
		require.True(t, ok, id)
		assert.True(t, e.Incomplete, id)
	}
	assert.Equal(t, 2, g.Summary().IncompleteCount)

	_, err := g.UpsertEntity(EntityPod, "a/p", nil)
	require.NoError(t, err)
	e, _ := g.GetEntity("pod:a/p")
	assert.False(t, e.Incomplete)
}

func TestAddRelationship_Dedup(t *testing.T) {
	g := New()
	require.NoError(t, g.AddRelationship("pv:p1", "drive:d1", RelMapsTo, Attributes{"a": Int(1)}))
	require.NoError(t, g.AddRelationship("pv:p1", "drive:d1", RelMapsTo, Attributes{"b": Int(2)}))

	rels := g.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, Attributes{"a": Int(1), "b": Int(2)}, rels[0].Attributes)

	require.NoError(t, g.AddRelationship("pv:p1", "drive:d1", RelContains, nil))
	assert.Len(t, g.Relationships(), 2)
}

func TestAddRelationship_Errors(t *testing.T) {
	g := New()

	err := g.AddRelationship("pod:p", "nope", RelUses, nil)
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
	_, ok := g.GetEntity("pod:p")
	assert.False(t, ok, "failed edge must not leave a source stub")

	err = g.AddRelationship("widget:w", "pod:p", RelUses, nil)
	assert.True(t, errors.Is(err, ErrUnknownEntityType))

	err = g.AddRelationship("pod:", "pvc:c", RelUses, nil)
	assert.True(t, errors.Is(err, ErrInvalidKey))

	err = g.AddRelationship("pod:p", "pvc:c", "", nil)
	assert.True(t, errors.Is(err, ErrUnknownRelationType))
}

func TestAddRelationship_StrictMode(t *testing.T) {
	lax := New()
	require.NoError(t, lax.AddRelationship("pod:p", "node:n", "scheduled_on", nil))

	strict := New(WithStrictRelations(true))
	err := strict.AddRelationship("pod:p", "node:n", "scheduled_on", nil)
	assert.True(t, errors.Is(err, ErrUnknownRelationType))
	assert.Equal(t, 0, strict.Summary().NodeCount)

	strict = New(WithStrictRelations(true), WithRelationLabels("scheduled_on"))
	assert.NoError(t, strict.AddRelationship("pod:p", "node:n", "scheduled_on", nil))
}

func TestOutgoingIncoming(t *testing.T) {
	g := storageChain(t)
	require.NoError(t, g.AddRelationship("pod:app/pod1", "node:n1", RelLocatedOn, nil))

	out := g.Outgoing("pod:app/pod1")
	require.Len(t, out, 2)
	assert.Equal(t, EntityID("pvc:app/data"), out[0].ID)
	assert.Equal(t, EntityID("node:n1"), out[1].ID)

	assert.Len(t, g.Outgoing("pod:app/pod1", RelLocatedOn), 1)

	in := g.Incoming("node:n1")
	require.Len(t, in, 2)
	assert.Equal(t, EntityID("drive:d1"), in[0].ID)
	assert.Equal(t, EntityID("pod:app/pod1"), in[1].ID)

	assert.Empty(t, g.Outgoing("node:missing"))
}

func TestRecordIssue(t *testing.T) {
	g := New(WithClock(fixedClock()))

	id, err := g.RecordIssue(Issue{
		EntityID: "drive:d1",
		Severity: "CRITICAL",
		Category: " hardware ",
		Message:  "drive reports BAD health",
	})
	require.NoError(t, err)
	assert.Equal(t, "issue-000001", id)

	e, ok := g.GetEntity("drive:d1")
	require.True(t, ok)
	assert.True(t, e.Incomplete)

	issues := g.IssuesFor("drive:d1")
	require.Len(t, issues, 1)
	assert.Equal(t, SeverityCritical, issues[0].Severity)
	assert.Equal(t, "hardware", issues[0].Category)
	assert.Equal(t, fixedClock()(), issues[0].DetectedAt)

	_, err = g.RecordIssue(Issue{EntityID: "drive:d1", Severity: "urgent"})
	assert.True(t, errors.Is(err, ErrInvalidSeverity))

	_, err = g.RecordIssue(Issue{EntityID: "bogus", Severity: SeverityLow})
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
}

func TestAllIssues_Filter(t *testing.T) {
	g := New()
	for i, sev := range []Severity{SeverityLow, SeverityCritical, SeverityHigh, SeverityCritical} {
		_, err := g.RecordIssue(Issue{
			EntityID: NewEntityID(EntityDrive, fmt.Sprintf("d%d", i)),
			Severity: sev,
			Category: []string{"disk", "Disk", "mount", "config"}[i],
		})
		require.NoError(t, err)
	}

	assert.Len(t, g.AllIssues(IssueFilter{}), 4)

	crit := g.AllIssues(IssueFilter{Severities: []Severity{SeverityCritical}})
	require.Len(t, crit, 2)
	assert.Equal(t, EntityID("drive:d1"), crit[0].EntityID)
	assert.Equal(t, EntityID("drive:d3"), crit[1].EntityID)

	disk := g.AllIssues(IssueFilter{Categories: []string{"DISK"}})
	assert.Len(t, disk, 2)

	both := g.AllIssues(IssueFilter{Severities: []Severity{SeverityCritical}, Categories: []string{"disk"}})
	require.Len(t, both, 1)
	assert.Equal(t, EntityID("drive:d1"), both[0].EntityID)
}

func TestLoadHistoricalIncidents(t *testing.T) {
	g := New()
	ids, err := g.LoadHistoricalIncidents([]Incident{
		{Phenomenon: "pod pending, volume cannot mount", RootCause: "drive offline"},
		{ID: "kb-7", Phenomenon: "pvc stuck pending", RootCause: "no capacity"},
		{RootCause: "missing phenomenon"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidKey))
	assert.Equal(t, []EntityID{"incident:case-001", "incident:kb-7"}, ids)

	incidents := g.Incidents()
	require.Len(t, incidents, 2)
	assert.Equal(t, "drive offline", incidents[0].RootCause)
	assert.Equal(t, "kb-7", incidents[1].ID)
	assert.Equal(t, 2, g.Summary().IncidentCount)
}

func TestLoadHistoricalIncidents_GeneratedKeysAvoidExplicitIDs(t *testing.T) {
	g := New()
	ids, err := g.LoadHistoricalIncidents([]Incident{
		{ID: "case-002", Phenomenon: "disk full"},
		{Phenomenon: "mount timeout"},
		{Phenomenon: "io errors"},
	})
	require.NoError(t, err)
	assert.Equal(t, []EntityID{"incident:case-002", "incident:case-001", "incident:case-003"}, ids)

	byID := make(map[string]string)
	for _, inc := range g.Incidents() {
		byID[inc.ID] = inc.Phenomenon
	}
	assert.Equal(t, map[string]string{
		"case-001": "mount timeout",
		"case-002": "disk full",
		"case-003": "io errors",
	}, byID)

	// An explicit id later in the batch is claimed before keys are generated,
	// and keys already loaded are skipped.
	ids, err = g.LoadHistoricalIncidents([]Incident{
		{Phenomenon: "node not ready"},
		{ID: "case-004", Phenomenon: "lvm vg missing"},
	})
	require.NoError(t, err)
	assert.Equal(t, []EntityID{"incident:case-005", "incident:case-004"}, ids)
	assert.Equal(t, 5, g.Summary().IncidentCount)
}

func TestPhase(t *testing.T) {
	g := New()
	assert.Equal(t, PhaseEmpty, g.Phase())

	done := g.StartProbe()
	assert.Equal(t, PhasePopulating, g.Phase())

	_, err := g.UpsertEntity(EntityNode, "n1", nil)
	require.NoError(t, err)
	done()
	done()
	assert.Equal(t, PhaseQueryable, g.Phase())
}

func TestSummary(t *testing.T) {
	g := storageChain(t)
	_, err := g.RecordIssue(Issue{EntityID: "drive:d1", Severity: SeverityCritical})
	require.NoError(t, err)

	s := g.Summary()
	assert.Equal(t, 5, s.NodeCount)
	assert.Equal(t, 4, s.EdgeCount)
	assert.Equal(t, 1, s.IssueCount)
	assert.Equal(t, 1, s.CountsByType[EntityDrive])
	assert.Equal(t, 1, s.CountsBySeverity[SeverityCritical])
	assert.Equal(t, 0, s.CountsBySeverity[SeverityLow])
	assert.Equal(t, 1, s.CountsByLabel[RelUses])
	assert.Equal(t, PhaseQueryable, s.Phase)
}

func TestDump_Deterministic(t *testing.T) {
	g := storageChain(t)
	_, err := g.RecordIssue(Issue{EntityID: "drive:d1", Severity: SeverityCritical, Category: "disk", Message: "bad\nhealth"})
	require.NoError(t, err)
	require.NoError(t, g.AddRelationship("pod:app/pod1", "node:n1", RelLocatedOn, Attributes{"zone": String("a"), "rack": Int(3)}))

	var first, second bytes.Buffer
	require.NoError(t, g.Dump(&first))
	require.NoError(t, g.Dump(&second))
	assert.Equal(t, first.String(), second.String())

	out := first.String()
	assert.Contains(t, out, "phase=queryable nodes=5 edges=5 issues=1")
	assert.Contains(t, out, "pod\t1\n")
	assert.Contains(t, out, "located_on\t2\n")
	assert.Contains(t, out, "critical\t1\n  issue-000001\tdrive:d1\tdisk\tbad health\n")
	assert.Contains(t, out, "pod:app/pod1 -[located_on]-> node:n1 {rack=3, zone=a}\n")

	// Edge list keeps insertion order.
	assert.Less(t, bytes.Index(first.Bytes(), []byte("-[uses]->")), bytes.Index(first.Bytes(), []byte("-[bound_to]->")))
}

func TestView_ConsistentReads(t *testing.T) {
	g := storageChain(t)
	g.View(func(r Reader) {
		s := r.Summary()
		assert.Equal(t, s.NodeCount, len(r.Entities()))
		assert.Equal(t, s.EdgeCount, len(r.Relationships()))
		path, ok := r.ShortestPath("pod:app/pod1", "node:n1")
		assert.True(t, ok)
		assert.Len(t, path, 5)
	})
}

func TestConcurrentIngestAndQuery(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				pod := NewEntityID(EntityPod, fmt.Sprintf("ns/p%d-%d", w, i))
				pvc := NewEntityID(EntityPVC, fmt.Sprintf("ns/c%d-%d", w, i))
				_ = g.AddRelationship(pod, pvc, RelUses, nil)
				_, _ = g.RecordIssue(Issue{EntityID: pvc, Severity: SeverityMedium})
				_, _ = g.RelatedEntities(pod)
				_ = g.Summary()
			}
		}(w)
	}
	wg.Wait()

	s := g.Summary()
	assert.Equal(t, 800, s.NodeCount)
	assert.Equal(t, 400, s.EdgeCount)
	assert.Equal(t, 400, s.IssueCount)
}
