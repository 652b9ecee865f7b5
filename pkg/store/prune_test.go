package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/blob"
)

func TestPruneWorker(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := NewStore(filepath.Join(dir, "test_prune.db"))
	require.NoError(t, err)
	defer st.Close()
	blobs := blob.NewLocalBlobStore(filepath.Join(dir, "blobs"))

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	old := now.Add(-48 * time.Hour)

	require.NoError(t, blobs.Put(ctx, "dumps/run-old/a.txt", strings.NewReader("# old")))
	require.NoError(t, blobs.Put(ctx, "dumps/run-new/b.txt", strings.NewReader("# new")))
	require.NoError(t, st.SaveReport(ctx, Report{ID: "old", RunID: "run-old", CreatedAt: old, DumpKey: "dumps/run-old/a.txt"}))
	require.NoError(t, st.SaveReport(ctx, Report{ID: "new", RunID: "run-new", CreatedAt: now.Add(-time.Hour), DumpKey: "dumps/run-new/b.txt"}))

	w := NewPruneWorker(st, blobs, RetentionConfig{Enabled: true, MaxAge: 24 * time.Hour}, nil)
	w.now = func() time.Time { return now }

	assert.Equal(t, int64(1), w.Prune(ctx))

	_, err = st.GetReport(ctx, "old")
	assert.ErrorIs(t, err, ErrReportNotFound)
	_, err = st.GetReport(ctx, "new")
	assert.NoError(t, err)

	keys, err := blobs.List(ctx, "dumps/")
	require.NoError(t, err)
	assert.Equal(t, []string{"dumps/run-new/b.txt"}, keys)

	// Second pass finds nothing.
	assert.Zero(t, w.Prune(ctx))
}

func TestPruneWorker_Disabled(t *testing.T) {
	ctx := context.Background()
	st, err := NewStore(filepath.Join(t.TempDir(), "test_prune.db"))
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.SaveReport(ctx, Report{ID: "r1", RunID: "run", CreatedAt: time.Now().Add(-100 * 24 * time.Hour)}))

	w := NewPruneWorker(st, nil, RetentionConfig{Enabled: false, MaxAge: time.Hour}, nil)
	assert.Zero(t, w.Prune(ctx))

	// Run returns immediately when disabled.
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return for disabled config")
	}

	// The report is still there for an enabled worker.
	enabled := NewPruneWorker(st, nil, RetentionConfig{Enabled: true, MaxAge: time.Hour}, nil)
	assert.Equal(t, int64(1), enabled.Prune(ctx))
}
