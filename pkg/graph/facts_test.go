package graph

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyBatch(t *testing.T) {
	g := New()
	facts := []Fact{
		{Kind: FactEntity, Type: EntityDrive, Key: "d1", Attributes: map[string]interface{}{"health": "BAD", "size_gb": 512.0}},
		{Kind: FactRelationship, Source: "pv:p1", Target: "drive:d1", Label: RelMapsTo},
		{Kind: FactIssue, EntityID: "drive:d1", Severity: SeverityCritical, Category: "disk", RecommendedActions: []string{"replace drive d1"}},
		{Kind: "gossip"},
		{Kind: FactEntity, Type: "toaster", Key: "t"},
	}

	res, err := g.ApplyBatch(facts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFact))
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
	assert.Contains(t, err.Error(), "fact 3")

	assert.Equal(t, []EntityID{"drive:d1"}, res.Entities)
	assert.Equal(t, 1, res.Relationships)
	assert.Equal(t, []string{"issue-000001"}, res.Issues)

	e, ok := g.GetEntity("drive:d1")
	require.True(t, ok)
	assert.Equal(t, Int(512), e.Attributes["size_gb"])
}

func TestApply_RelationshipNeedsEndpoints(t *testing.T) {
	g := New()
	_, err := g.Apply(Fact{Kind: FactRelationship, Target: "drive:d1", Label: RelMapsTo})
	assert.True(t, errors.Is(err, ErrInvalidFact))
}

func TestValue_JSON(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	attrs := Attributes{
		"s": String("x"),
		"i": Int(42),
		"f": Float(1.5),
		"b": Bool(true),
		"t": Time(ts),
		"n": {},
	}
	data, err := json.Marshal(attrs)
	require.NoError(t, err)
	assert.JSONEq(t, `{"s":"x","i":42,"f":1.5,"b":true,"t":"2026-01-02T03:04:05Z","n":null}`, string(data))

	var back Attributes
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Int(42), back["i"])
	assert.Equal(t, Float(1.5), back["f"])
	assert.Equal(t, String("2026-01-02T03:04:05Z"), back["t"])
	assert.True(t, back["n"].IsNull())
}

func TestValue_AsFloatWidensInt(t *testing.T) {
	f, ok := Int(3).AsFloat()
	assert.True(t, ok)
	assert.Equal(t, 3.0, f)

	_, ok = String("3").AsFloat()
	assert.False(t, ok)
}

func TestParseEntityID(t *testing.T) {
	typ, key, err := ParseEntityID("pv:ns:claim")
	require.NoError(t, err)
	assert.Equal(t, EntityPV, typ)
	assert.Equal(t, "ns:claim", key)

	_, _, err = ParseEntityID("noqualifier")
	assert.True(t, errors.Is(err, ErrUnknownEntityType))
	assert.Equal(t, EntityType(""), EntityID(":x").Type())
}
