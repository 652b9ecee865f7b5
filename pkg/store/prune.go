package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/blob"
)

// RetentionConfig bounds how long archived reports are kept.
type RetentionConfig struct {
	Enabled       bool
	MaxAge        time.Duration
	CheckInterval time.Duration
}

// PruneWorker periodically deletes reports older than MaxAge together with
// their archived dumps.
type PruneWorker struct {
	reports ReportStore
	blobs   blob.BlobStore
	logger  *zap.Logger
	now     func() time.Time
	config  RetentionConfig
}

// NewPruneWorker creates a worker with a fixed retention policy; restart
// the daemon to change it. blobs may be nil when dumps are not
// archived.
func NewPruneWorker(rs ReportStore, blobs blob.BlobStore, cfg RetentionConfig, logger *zap.Logger) *PruneWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PruneWorker{
		reports: rs,
		blobs:   blobs,
		logger:  logger,
		now:     time.Now,
		config:  cfg,
	}
}

// Run prunes once immediately and then every CheckInterval until ctx is
// done.
func (w *PruneWorker) Run(ctx context.Context) {
	cfg := w.config

	if !cfg.Enabled || cfg.MaxAge <= 0 {
		w.logger.Info("report_pruning_disabled")
		return
	}
	interval := cfg.CheckInterval
	if interval <= 0 {
		interval = time.Hour
	}

	w.logger.Info("prune_worker_started", zap.Duration("interval", interval), zap.Duration("max_age", cfg.MaxAge))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("prune_worker_stopping")
			return
		case <-ticker.C:
			w.Prune(ctx)
		}
	}
}

// Prune deletes expired reports and returns how many went. Dumps are
// removed first so a failure never leaves a dump without its report's key.
func (w *PruneWorker) Prune(ctx context.Context) int64 {
	cfg := w.config

	if !cfg.Enabled || cfg.MaxAge <= 0 {
		return 0
	}
	cutoff := w.now().Add(-cfg.MaxAge)

	if w.blobs != nil {
		w.pruneDumps(ctx, cutoff)
	}

	deleted, err := w.reports.PruneReports(ctx, cutoff)
	if err != nil {
		w.logger.Error("report_prune_failed", zap.Error(err))
		return 0
	}
	if deleted > 0 {
		w.logger.Info("reports_pruned", zap.Int64("deleted", deleted), zap.Time("before", cutoff))
	}
	return deleted
}

func (w *PruneWorker) pruneDumps(ctx context.Context, cutoff time.Time) {
	metas, err := w.reports.ListReports(ctx, ReportFilter{})
	if err != nil {
		w.logger.Error("report_list_failed", zap.Error(err))
		return
	}
	for _, m := range metas {
		if !m.CreatedAt.Before(cutoff) {
			continue
		}
		rep, err := w.reports.GetReport(ctx, m.ID)
		if err != nil || rep.DumpKey == "" {
			continue
		}
		if err := w.blobs.Delete(ctx, rep.DumpKey); err != nil && !errors.Is(err, blob.ErrNotFound) {
			w.logger.Warn("dump_delete_failed", zap.String("key", rep.DumpKey), zap.Error(err))
		}
	}
}
