package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/graph"
)

func TestInvestigate(t *testing.T) {
	g := podChain(t)

	inv := Investigate(g, NewAnalyzer(DefaultConfig()), NewPlanner())

	assert.Equal(t, 4, inv.Summary.NodeCount)
	require.NotEmpty(t, inv.Causes)
	assert.Equal(t, disk1, inv.Causes[0].EntityID)
	require.Len(t, inv.Plan.Steps, 2)
	assert.Equal(t, "Replace drive d1", inv.Plan.Steps[0].Description)
	assert.Equal(t, disk1, inv.Plan.Steps[0].TargetEntity)
}

func TestInvestigate_EmptyGraph(t *testing.T) {
	inv := Investigate(graph.New(), NewAnalyzer(DefaultConfig()), NewPlanner())

	assert.NotNil(t, inv.Causes)
	assert.Empty(t, inv.Causes)
	assert.Empty(t, inv.Plan.Steps)
	assert.Equal(t, graph.PhaseEmpty, inv.Summary.Phase)
}
