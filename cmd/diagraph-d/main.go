// Command diagraph-d serves the diagnostic graph over HTTP. Collectors post
// probe facts; operators and agents query root causes and fix plans.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/api"
	"github.com/rmax-ai/diagraph/pkg/blob"
	"github.com/rmax-ai/diagraph/pkg/engine"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/logging"
	"github.com/rmax-ai/diagraph/pkg/store"
	redisstore "github.com/rmax-ai/diagraph/pkg/store/redis"
)

func main() {
	cfg, err := LoadConfig(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "diagraph-d: %v\n", err)
		os.Exit(2)
	}

	logger := logging.Must(cfg.LogLevel, "diagraph-d")
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("daemon_failed", zap.Error(err))
	}
	logger.Info("shutdown_complete")
}

func run(cfg Config, logger *zap.Logger) error {
	logger.Info("system_started", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store))

	analysis := engine.DefaultConfig()
	if cfg.AnalysisConfigPath != "" {
		var err error
		if analysis, err = engine.LoadConfig(cfg.AnalysisConfigPath); err != nil {
			return fmt.Errorf("load analysis config: %w", err)
		}
		logger.Info("analysis_config_loaded", zap.String("path", cfg.AnalysisConfigPath))
	}

	var incidents []graph.Incident
	if cfg.IncidentsPath != "" {
		var err error
		if incidents, err = engine.LoadIncidentFile(cfg.IncidentsPath); err != nil {
			return fmt.Errorf("load incidents: %w", err)
		}
		logger.Info("incidents_loaded", zap.String("path", cfg.IncidentsPath), zap.Int("count", len(incidents)))
	}

	opts := []api.Option{
		api.WithLogger(logger),
		api.WithAnalyzer(engine.NewAnalyzer(analysis)),
		api.WithIncidents(incidents),
		api.WithGraphOptions(graph.WithStrictRelations(cfg.StrictRelations)),
	}

	reports, closeStore, err := openReportStore(cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if reports != nil {
		opts = append(opts, api.WithReportStore(reports))
	}

	var blobs blob.BlobStore
	if cfg.BlobDir != "" {
		blobs = blob.NewLocalBlobStore(cfg.BlobDir)
		opts = append(opts, api.WithBlobStore(blobs))
		logger.Info("blob_store_initialized", zap.String("path", cfg.BlobDir))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if reports != nil && cfg.ReportMaxAge > 0 {
		pruner := store.NewPruneWorker(reports, blobs, store.RetentionConfig{
			Enabled:       true,
			MaxAge:        cfg.ReportMaxAge,
			CheckInterval: cfg.PruneInterval,
		}, logger)
		go pruner.Run(ctx)
	}

	srv := api.NewServer(cfg.Addr, opts...)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown_initiated")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("failed_to_stop_server", zap.Error(err))
	}
	return nil
}

// openReportStore returns nil when archiving is disabled.
func openReportStore(cfg Config, logger *zap.Logger) (store.ReportStore, func(), error) {
	switch cfg.Store {
	case "sqlite":
		st, err := store.NewStore(cfg.DBPath)
		if err != nil {
			return nil, nil, fmt.Errorf("init sqlite store: %w", err)
		}
		logger.Info("store_initialized", zap.String("backend", "sqlite"), zap.String("path", cfg.DBPath))
		return st, func() {
			if err := st.Close(); err != nil {
				logger.Error("failed_to_close_store", zap.Error(err))
			}
		}, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, DB: cfg.RedisDB})
		if err := client.Ping(context.Background()).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		logger.Info("store_initialized", zap.String("backend", "redis"), zap.String("addr", cfg.RedisAddr))
		return redisstore.NewRedisReportStore(client), func() {
			if err := client.Close(); err != nil {
				logger.Error("failed_to_close_store", zap.Error(err))
			}
		}, nil

	default:
		logger.Info("report_archive_disabled")
		return nil, func() {}, nil
	}
}
