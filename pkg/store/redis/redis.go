package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rmax-ai/diagraph/pkg/store"
)

const reportsIndex = "diagraph:reports"

// RedisReportStore keeps reports as JSON strings indexed by sorted sets
// scored on creation time, so several daemons can share one archive.
type RedisReportStore struct {
	client *redis.Client
}

var _ store.ReportStore = (*RedisReportStore)(nil)

func NewRedisReportStore(client *redis.Client) *RedisReportStore {
	return &RedisReportStore{client: client}
}

func (s *RedisReportStore) reportKey(id string) string {
	return fmt.Sprintf("diagraph:report:%s", id)
}

func (s *RedisReportStore) runIndex(runID string) string {
	return fmt.Sprintf("diagraph:run:%s:reports", runID)
}

func (s *RedisReportStore) SaveReport(ctx context.Context, r store.Report) error {
	if r.ID == "" {
		return fmt.Errorf("report id is required")
	}
	r.CreatedAt = r.CreatedAt.UTC()
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	// A replaced report may have moved runs.
	prev, err := s.GetReport(ctx, r.ID)
	if err != nil && !errors.Is(err, store.ErrReportNotFound) {
		return err
	}

	score := float64(r.CreatedAt.UnixNano())
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil && prev.RunID != r.RunID {
			pipe.ZRem(ctx, s.runIndex(prev.RunID), r.ID)
		}
		pipe.Set(ctx, s.reportKey(r.ID), data, 0)
		pipe.ZAdd(ctx, reportsIndex, redis.Z{Score: score, Member: r.ID})
		pipe.ZAdd(ctx, s.runIndex(r.RunID), redis.Z{Score: score, Member: r.ID})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save report %s: %w", r.ID, err)
	}
	return nil
}

func (s *RedisReportStore) GetReport(ctx context.Context, id string) (*store.Report, error) {
	data, err := s.client.Get(ctx, s.reportKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("%w: %s", store.ErrReportNotFound, id)
		}
		return nil, fmt.Errorf("failed to GET report %s: %w", id, err)
	}
	var r store.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report %s: %w", id, err)
	}
	return &r, nil
}

func (s *RedisReportStore) ListReports(ctx context.Context, filter store.ReportFilter) ([]store.ReportMeta, error) {
	index := reportsIndex
	if filter.RunID != "" {
		index = s.runIndex(filter.RunID)
	}
	stop := int64(-1)
	if filter.Limit > 0 {
		stop = int64(filter.Limit) - 1
	}

	ids, err := s.client.ZRevRange(ctx, index, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to ZREVRANGE %s: %w", index, err)
	}
	out := make([]store.ReportMeta, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.reportKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to MGET reports: %w", err)
	}
	for i, val := range values {
		str, ok := val.(string)
		if !ok {
			// Index entry without a body; skip it.
			continue
		}
		var r store.Report
		if err := json.Unmarshal([]byte(str), &r); err != nil {
			return nil, fmt.Errorf("failed to unmarshal report %s: %w", ids[i], err)
		}
		out = append(out, r.Meta())
	}
	return out, nil
}

func (s *RedisReportStore) PruneReports(ctx context.Context, before time.Time) (int64, error) {
	max := fmt.Sprintf("(%d", before.UTC().UnixNano())
	ids, err := s.client.ZRangeByScore(ctx, reportsIndex, &redis.ZRangeBy{Min: "-inf", Max: max}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to ZRANGEBYSCORE %s: %w", reportsIndex, err)
	}

	var pruned int64
	for _, id := range ids {
		r, err := s.GetReport(ctx, id)
		if err != nil && !errors.Is(err, store.ErrReportNotFound) {
			return pruned, err
		}
		_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, s.reportKey(id))
			pipe.ZRem(ctx, reportsIndex, id)
			if r != nil {
				pipe.ZRem(ctx, s.runIndex(r.RunID), id)
			}
			return nil
		})
		if err != nil {
			return pruned, fmt.Errorf("failed to prune report %s: %w", id, err)
		}
		pruned++
	}
	return pruned, nil
}
