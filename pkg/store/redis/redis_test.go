package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/diagraph/pkg/store"
	"github.com/rmax-ai/diagraph/pkg/store/storetest"
)

func TestRedisReportStore(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	storetest.RunReportStoreTests(t, func() store.ReportStore {
		mr.FlushAll()
		return NewRedisReportStore(client)
	})
}

func TestRedisReportStore_ReplaceMovesRun(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	ctx := context.Background()
	s := NewRedisReportStore(client)
	r := storetest.SampleReport("rep-1", "run-a", time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.SaveReport(ctx, r))
	r.RunID = "run-b"
	require.NoError(t, s.SaveReport(ctx, r))

	list, err := s.ListReports(ctx, store.ReportFilter{RunID: "run-a"})
	require.NoError(t, err)
	assert.Empty(t, list)

	list, err = s.ListReports(ctx, store.ReportFilter{RunID: "run-b"})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "rep-1", list[0].ID)
}
