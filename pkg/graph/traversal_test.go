package graph

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func relatedIDs(rel []Related) []EntityID {
	ids := make([]EntityID, 0, len(rel))
	for _, r := range rel {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestRelatedEntities_DepthZero(t *testing.T) {
	g := storageChain(t)
	rel, err := g.RelatedEntities("pv:pv-1", WithMaxDepth(0))
	require.NoError(t, err)
	assert.NotNil(t, rel)
	assert.Empty(t, rel)
}

func TestRelatedEntities_DepthOneIsDirectNeighbours(t *testing.T) {
	g := storageChain(t)
	rel, err := g.RelatedEntities("pv:pv-1", WithMaxDepth(1))
	require.NoError(t, err)

	assert.Equal(t, []EntityID{"drive:d1", "pvc:app/data"}, relatedIDs(rel))
	for _, r := range rel {
		assert.Equal(t, 1, r.Depth)
	}
	assert.Equal(t, []RelationLabel{RelMapsTo}, rel[0].Path)
	assert.Equal(t, []RelationLabel{RelBoundTo}, rel[1].Path)
}

func TestRelatedEntities_DefaultDepth(t *testing.T) {
	g := storageChain(t)
	rel, err := g.RelatedEntities("pod:app/pod1")
	require.NoError(t, err)
	assert.Equal(t, []EntityID{"pvc:app/data", "pv:pv-1", "drive:d1"}, relatedIDs(rel))
	assert.Equal(t, []RelationLabel{RelUses, RelBoundTo, RelMapsTo}, rel[2].Path)
}

func TestRelatedEntities_DirectionAndLabels(t *testing.T) {
	g := storageChain(t)

	rel, err := g.RelatedEntities("drive:d1", WithDirection(DirectionIncoming), WithMaxDepth(10))
	require.NoError(t, err)
	assert.Equal(t, []EntityID{"pv:pv-1", "pvc:app/data", "pod:app/pod1"}, relatedIDs(rel))

	rel, err = g.RelatedEntities("pod:app/pod1", WithLabels(RelUses, RelBoundTo), WithMaxDepth(10))
	require.NoError(t, err)
	assert.Equal(t, []EntityID{"pvc:app/data", "pv:pv-1"}, relatedIDs(rel))
}

func TestRelatedEntities_Cycle(t *testing.T) {
	g := New()
	require.NoError(t, g.AddRelationship("node:a", "node:b", "peer", nil))
	require.NoError(t, g.AddRelationship("node:b", "node:c", "peer", nil))
	require.NoError(t, g.AddRelationship("node:c", "node:a", "peer", nil))

	rel, err := g.RelatedEntities("node:a", WithMaxDepth(50))
	require.NoError(t, err)
	assert.ElementsMatch(t, []EntityID{"node:b", "node:c"}, relatedIDs(rel))
}

func TestRelatedEntities_NotFound(t *testing.T) {
	g := New()
	_, err := g.RelatedEntities("pod:ghost")
	assert.True(t, errors.Is(err, ErrEntityNotFound))
}

func TestShortestPath_Chain(t *testing.T) {
	g := New()
	require.NoError(t, g.AddRelationship("node:a", "node:b", "peer", nil))
	require.NoError(t, g.AddRelationship("node:b", "node:c", "peer", nil))

	path, ok := g.ShortestPath("node:a", "node:c")
	require.True(t, ok)
	assert.Equal(t, []EntityID{"node:a", "node:b", "node:c"}, path)

	_, ok = g.ShortestPath("node:c", "node:a")
	assert.False(t, ok, "outgoing edges only by default")

	path, ok = g.ShortestPath("node:c", "node:a", WithDirection(DirectionBoth))
	require.True(t, ok)
	assert.Equal(t, []EntityID{"node:c", "node:b", "node:a"}, path)
}

func TestShortestPath_PrefersFewerHops(t *testing.T) {
	g := storageChain(t)
	require.NoError(t, g.AddRelationship("pod:app/pod1", "node:n1", RelLocatedOn, nil))

	path, ok := g.ShortestPath("pod:app/pod1", "node:n1")
	require.True(t, ok)
	assert.Equal(t, []EntityID{"pod:app/pod1", "node:n1"}, path)
}

func TestShortestPath_EdgeCases(t *testing.T) {
	g := storageChain(t)

	path, ok := g.ShortestPath("pv:pv-1", "pv:pv-1")
	require.True(t, ok)
	assert.Equal(t, []EntityID{"pv:pv-1"}, path)

	path, ok = g.ShortestPath("pv:pv-1", "pod:missing")
	assert.False(t, ok)
	assert.Nil(t, path)

	_, err := g.UpsertEntity(EntityNode, "island", nil)
	require.NoError(t, err)
	_, ok = g.ShortestPath("pod:app/pod1", "node:island", WithDirection(DirectionBoth))
	assert.False(t, ok)
}

func TestShortestPath_UndirectedExistenceIsSymmetric(t *testing.T) {
	g := storageChain(t)
	ids := []EntityID{"pod:app/pod1", "pvc:app/data", "pv:pv-1", "drive:d1", "node:n1"}
	for _, a := range ids {
		for _, b := range ids {
			_, ab := g.ShortestPath(a, b, WithDirection(DirectionBoth))
			_, ba := g.ShortestPath(b, a, WithDirection(DirectionBoth))
			assert.Equal(t, ab, ba, "%s <-> %s", a, b)
		}
	}
}

func TestReachable(t *testing.T) {
	g := storageChain(t)

	down := g.Reachable("pod:app/pod1", DirectionOutgoing, 2)
	assert.Equal(t, map[EntityID]int{"pvc:app/data": 1, "pv:pv-1": 2}, down)

	up := g.Reachable("drive:d1", DirectionIncoming, 0)
	assert.Equal(t, map[EntityID]int{"pv:pv-1": 1, "pvc:app/data": 2, "pod:app/pod1": 3}, up)

	assert.Empty(t, g.Reachable("pod:none", DirectionBoth, 3))
}

func TestParseDirection(t *testing.T) {
	for in, want := range map[string]Direction{"": DirectionBoth, "both": DirectionBoth, "out": DirectionOutgoing, "incoming": DirectionIncoming} {
		got, err := ParseDirection(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
