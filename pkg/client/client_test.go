package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/api"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/store"
)

func newDaemon(t *testing.T) *Client {
	t.Helper()
	st, err := store.NewStore(filepath.Join(t.TempDir(), "reports.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := api.NewServer("", api.WithReportStore(st))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return NewClient(ts.URL, WithRetry(0, DefaultBackoff()))
}

func TestClient_Investigation(t *testing.T) {
	ctx := context.Background()
	c := newDaemon(t)

	status, err := c.Ping(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)

	id, err := c.UpsertEntity(ctx, Entity{Type: graph.EntityDrive, Key: "d1", Attributes: map[string]any{"health": "BAD"}})
	require.NoError(t, err)
	assert.Equal(t, graph.EntityID("drive:d1"), id)

	res, err := c.ApplyFacts(ctx, "k8s", []graph.Fact{
		{Kind: graph.FactRelationship, Source: "pod:app/web-0", Target: "pvc:app/data", Label: graph.RelUses},
		{Kind: graph.FactRelationship, Source: "pvc:app/data", Target: "pv:pv-1", Label: graph.RelBoundTo},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Relationships)

	require.NoError(t, c.AddRelationship(ctx, Relationship{Source: "pv:pv-1", Target: "drive:d1", Label: graph.RelMapsTo}))

	issueID, err := c.RecordIssue(ctx, Issue{
		EntityID:           "drive:d1",
		Severity:           graph.SeverityCritical,
		Category:           "hardware",
		Message:            "drive offline",
		RecommendedActions: []string{"Replace drive d1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, issueID)

	detail, err := c.GetEntity(ctx, "drive:d1")
	require.NoError(t, err)
	assert.Len(t, detail.Issues, 1)
	assert.Len(t, detail.Incoming, 1)

	related, err := c.RelatedEntities(ctx, "pod:app/web-0", TraversalOptions{Depth: 3, Direction: graph.DirectionOutgoing})
	require.NoError(t, err)
	assert.Len(t, related, 3)

	path, err := c.ShortestPath(ctx, "pod:app/web-0", "drive:d1", TraversalOptions{})
	require.NoError(t, err)
	assert.True(t, path.Found)
	assert.Len(t, path.Path, 4)

	causes, err := c.RootCauses(ctx, 0)
	require.NoError(t, err)
	require.NotEmpty(t, causes)
	assert.Equal(t, graph.EntityID("drive:d1"), causes[0].EntityID)

	plan, err := c.FixPlan(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, plan.Steps)
	assert.Equal(t, "Replace drive d1", plan.Steps[0].Description)

	sum, err := c.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.NodeCount)

	dump, err := c.Dump(ctx)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dump, "# diagraph dump"))

	csv, err := c.Export(ctx, "issues")
	require.NoError(t, err)
	assert.Contains(t, csv, "drive offline")

	rep, err := c.ArchiveReport(ctx, "ci")
	require.NoError(t, err)
	list, err := c.ListReports(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	got, err := c.GetReport(ctx, rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "ci", got.Note)
	_, err = c.ReportDump(ctx, rep.ID)
	var dumpErr *APIError
	require.True(t, errors.As(err, &dumpErr), "no blob store configured")
	assert.Equal(t, http.StatusNotFound, dumpErr.StatusCode)

	run, err := c.CurrentRun(ctx)
	require.NoError(t, err)
	fresh, err := c.StartRun(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, run.RunID, fresh.RunID)
	assert.Equal(t, 0, fresh.Summary.NodeCount)
}

func TestClient_ErrorsUnwrapToSentinels(t *testing.T) {
	ctx := context.Background()
	c := newDaemon(t)

	_, err := c.GetEntity(ctx, "pod:ghost")
	assert.True(t, errors.Is(err, graph.ErrEntityNotFound))

	_, err = c.UpsertEntity(ctx, Entity{Type: "toaster", Key: "t"})
	assert.True(t, errors.Is(err, graph.ErrUnknownEntityType))
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)

	_, err = c.RecordIssue(ctx, Issue{EntityID: "pod:a", Severity: "dire"})
	assert.True(t, errors.Is(err, graph.ErrInvalidSeverity))

	_, err = c.GetReport(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrReportNotFound))

	res, err := c.ApplyFacts(ctx, "bad", []graph.Fact{
		{Kind: graph.FactEntity, Type: graph.EntityNode, Key: "n1"},
		{Kind: graph.FactIssue, EntityID: "node:n1", Severity: "meh"},
	})
	require.Error(t, err)
	assert.Equal(t, []graph.EntityID{"node:n1"}, res.Entities)
	assert.Len(t, res.Errors, 1)
}

func TestClient_RetriesReads(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetry(3, &ExponentialBackoff{Initial: time.Millisecond, Ceiling: 5 * time.Millisecond, Multiplier: 2}))
	status, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_traversal"}`))
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetry(3, &ExponentialBackoff{Initial: time.Millisecond, Ceiling: time.Millisecond, Multiplier: 2}))
	_, err := c.RelatedEntities(context.Background(), "pod:a", TraversalOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_traversal")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_WritesAreNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, WithRetry(3, &ExponentialBackoff{Initial: time.Millisecond, Ceiling: time.Millisecond, Multiplier: 2}))
	_, err := c.RecordIssue(context.Background(), Issue{EntityID: "pod:a", Severity: graph.SeverityLow})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_RetryHonoursContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	c := NewClient(ts.URL, WithRetry(100, &ExponentialBackoff{Initial: time.Second, Ceiling: time.Second, Multiplier: 1}))
	_, err := c.Summary(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
