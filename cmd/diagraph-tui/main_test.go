package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
)

func fakeDaemon(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/runs/current", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runInfo{RunID: "run-1", Summary: graph.Summary{NodeCount: 4, EdgeCount: 3, IssueCount: 1, Phase: graph.PhaseQueryable}})
	})
	mux.HandleFunc("/v1/rootcauses", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		json.NewEncoder(w).Encode(rootCauses{Causes: []engine.RankedCause{
			{Rank: 1, EntityID: "drive:d1", Tier: engine.TierPrimary, Score: 101.75, MaxSeverity: graph.SeverityCritical},
		}})
	})
	mux.HandleFunc("/v1/fixplan", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fixPlan{Plan: engine.Plan{Steps: []engine.PlanStep{
			{Step: 1, Description: "Replace drive d1", TargetEntity: "drive:d1", Tier: engine.TierPrimary},
		}}})
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func TestFetchAndRender(t *testing.T) {
	ts := fakeDaemon(t)
	m := initialModel(ts.URL+"/", time.Second)
	assert.Contains(t, m.View(), "Connecting to "+ts.URL)

	msg := m.fetchData()()
	data, ok := msg.(dataMsg)
	require.True(t, ok)
	require.NoError(t, data.err)
	assert.Equal(t, "run-1", data.run.RunID)

	next, _ := m.Update(data)
	view := next.View()
	assert.Contains(t, view, "run run-1")
	assert.Contains(t, view, "4 entities")
	assert.Contains(t, view, "drive:d1")
	assert.Contains(t, view, "Replace drive d1")
	assert.Contains(t, view, "Online")
}

func TestOffline(t *testing.T) {
	ts := fakeDaemon(t)
	m := initialModel(ts.URL, time.Second)
	ts.Close()

	msg := m.fetchData()()
	next, _ := m.Update(msg)
	assert.Contains(t, next.View(), "Offline")
}

func TestQuitKey(t *testing.T) {
	m := initialModel("http://127.0.0.1:0", time.Second)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
