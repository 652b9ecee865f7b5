// Package storetest holds the conformance suite shared by ReportStore
// implementations.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/store"
)

// SampleReport builds a report with one primary cause and a one-step plan.
func SampleReport(id, runID string, createdAt time.Time) store.Report {
	return store.Report{
		ID:        id,
		RunID:     runID,
		CreatedAt: createdAt.UTC(),
		Note:      "nightly probe",
		Summary: graph.Summary{
			NodeCount:        4,
			EdgeCount:        3,
			IssueCount:       1,
			CountsByType:     map[graph.EntityType]int{graph.EntityDrive: 1},
			CountsBySeverity: map[graph.Severity]int{graph.SeverityCritical: 1},
			CountsByLabel:    map[graph.RelationLabel]int{graph.RelMapsTo: 1},
			Phase:            graph.PhaseQueryable,
		},
		Causes: []engine.RankedCause{{
			Rank:        1,
			EntityID:    "drive:d1",
			Type:        graph.EntityDrive,
			Score:       101.75,
			Tier:        engine.TierPrimary,
			IsPrimary:   true,
			MaxSeverity: graph.SeverityCritical,
		}},
		Plan: engine.Plan{
			Steps: []engine.PlanStep{{
				Step:         1,
				Description:  "Replace drive d1",
				TargetEntity: "drive:d1",
				Tier:         engine.TierPrimary,
				Severity:     graph.SeverityCritical,
			}},
			Superseded: []engine.SupersededStep{},
		},
		DumpKey: "dumps/" + runID + ".txt",
	}
}

// RunReportStoreTests exercises a ReportStore. reset must return the store
// in an empty state.
func RunReportStoreTests(t *testing.T, reset func() store.ReportStore) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	t.Run("Save and Get", func(t *testing.T) {
		s := reset()
		want := SampleReport("rep-1", "run-1", base)
		require.NoError(t, s.SaveReport(ctx, want))

		got, err := s.GetReport(ctx, "rep-1")
		require.NoError(t, err)
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.RunID, got.RunID)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
		assert.Equal(t, want.Note, got.Note)
		assert.Equal(t, want.DumpKey, got.DumpKey)
		assert.Equal(t, want.Summary, got.Summary)
		require.Len(t, got.Causes, 1)
		assert.Equal(t, graph.EntityID("drive:d1"), got.PrimaryCause())
		assert.Equal(t, engine.TierPrimary, got.Causes[0].Tier)
		assert.Equal(t, want.Plan, got.Plan)
	})

	t.Run("Get unknown", func(t *testing.T) {
		s := reset()
		_, err := s.GetReport(ctx, "missing")
		assert.True(t, errors.Is(err, store.ErrReportNotFound))
	})

	t.Run("Save replaces", func(t *testing.T) {
		s := reset()
		r := SampleReport("rep-1", "run-1", base)
		require.NoError(t, s.SaveReport(ctx, r))
		r.Note = "re-run"
		require.NoError(t, s.SaveReport(ctx, r))

		got, err := s.GetReport(ctx, "rep-1")
		require.NoError(t, err)
		assert.Equal(t, "re-run", got.Note)

		list, err := s.ListReports(ctx, store.ReportFilter{})
		require.NoError(t, err)
		assert.Len(t, list, 1)
	})

	t.Run("List newest first with filters", func(t *testing.T) {
		s := reset()
		require.NoError(t, s.SaveReport(ctx, SampleReport("rep-1", "run-a", base)))
		require.NoError(t, s.SaveReport(ctx, SampleReport("rep-2", "run-b", base.Add(time.Minute))))
		require.NoError(t, s.SaveReport(ctx, SampleReport("rep-3", "run-a", base.Add(2*time.Minute))))

		list, err := s.ListReports(ctx, store.ReportFilter{})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "rep-3", list[0].ID)
		assert.Equal(t, "rep-1", list[2].ID)
		assert.Equal(t, graph.EntityID("drive:d1"), list[0].PrimaryCause)
		assert.Equal(t, 1, list[0].StepCount)

		list, err = s.ListReports(ctx, store.ReportFilter{RunID: "run-a"})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "rep-3", list[0].ID)

		list, err = s.ListReports(ctx, store.ReportFilter{Limit: 1})
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, "rep-3", list[0].ID)
	})

	t.Run("Prune", func(t *testing.T) {
		s := reset()
		require.NoError(t, s.SaveReport(ctx, SampleReport("old", "run-1", base.Add(-48*time.Hour))))
		require.NoError(t, s.SaveReport(ctx, SampleReport("new", "run-1", base)))

		n, err := s.PruneReports(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = s.GetReport(ctx, "old")
		assert.True(t, errors.Is(err, store.ErrReportNotFound))
		_, err = s.GetReport(ctx, "new")
		assert.NoError(t, err)
	})
}
