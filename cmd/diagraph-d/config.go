package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/rmax-ai/diagraph/pkg/logging"
)

// Config is the daemon configuration. Environment variables set the
// defaults; command-line flags override them.
type Config struct {
	Addr     string `env:"DIAGRAPH_ADDR" envDefault:"127.0.0.1:8090"`
	LogLevel string `env:"DIAGRAPH_LOG_LEVEL" envDefault:"info"`

	// Store selects the report archive: sqlite, redis or none.
	Store     string `env:"DIAGRAPH_STORE" envDefault:"sqlite"`
	DBPath    string `env:"DIAGRAPH_DB_PATH" envDefault:"diagraph.db"`
	RedisAddr string `env:"DIAGRAPH_REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisDB   int    `env:"DIAGRAPH_REDIS_DB" envDefault:"0"`
	// BlobDir holds archived text dumps; empty disables dump archiving.
	BlobDir string `env:"DIAGRAPH_BLOB_DIR" envDefault:"diagraph-blobs"`

	IncidentsPath      string `env:"DIAGRAPH_INCIDENTS_PATH"`
	AnalysisConfigPath string `env:"DIAGRAPH_ANALYSIS_CONFIG"`
	StrictRelations    bool   `env:"DIAGRAPH_STRICT_RELATIONS" envDefault:"false"`

	ReportMaxAge    time.Duration `env:"DIAGRAPH_REPORT_MAX_AGE" envDefault:"720h"`
	PruneInterval   time.Duration `env:"DIAGRAPH_PRUNE_INTERVAL" envDefault:"1h"`
	ShutdownTimeout time.Duration `env:"DIAGRAPH_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

func LoadConfig(args []string) (Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, fmt.Errorf("failed to get cwd: %w", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("invalid environment: %w", err)
	}

	flagSet := flag.NewFlagSet("diagraph-d", flag.ContinueOnError)
	flagSet.SetOutput(io.Discard)
	flagSet.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug|info|warn|error")
	flagSet.StringVar(&cfg.Store, "store", cfg.Store, "report store: sqlite|redis|none")
	flagSet.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite database")
	flagSet.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address when store=redis")
	flagSet.IntVar(&cfg.RedisDB, "redis-db", cfg.RedisDB, "Redis database number")
	flagSet.StringVar(&cfg.BlobDir, "blob-dir", cfg.BlobDir, "directory for archived dumps (empty disables)")
	flagSet.StringVar(&cfg.IncidentsPath, "incidents", cfg.IncidentsPath, "historical incidents file (JSON or YAML)")
	flagSet.StringVar(&cfg.AnalysisConfigPath, "analysis-config", cfg.AnalysisConfigPath, "analysis config YAML")
	flagSet.BoolVar(&cfg.StrictRelations, "strict", cfg.StrictRelations, "reject relationship labels outside the vocabulary")
	flagSet.DurationVar(&cfg.ReportMaxAge, "report-max-age", cfg.ReportMaxAge, "delete archived reports older than this (0 keeps all)")
	flagSet.DurationVar(&cfg.PruneInterval, "prune-interval", cfg.PruneInterval, "report retention check interval")
	flagSet.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			flagSet.SetOutput(os.Stdout)
			flagSet.PrintDefaults()
		}
		return Config{}, err
	}

	cfg.Addr = strings.TrimSpace(cfg.Addr)
	cfg.Store = normalizeStore(cfg.Store)
	cfg.DBPath = resolvePath(cfg.DBPath, cwd)
	cfg.BlobDir = resolvePath(cfg.BlobDir, cwd)
	cfg.IncidentsPath = resolvePath(cfg.IncidentsPath, cwd)
	cfg.AnalysisConfigPath = resolvePath(cfg.AnalysisConfigPath, cwd)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("addr cannot be empty")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Store {
	case "sqlite":
		if c.DBPath == "" {
			return errors.New("store=sqlite requires db")
		}
	case "redis":
		if c.RedisAddr == "" {
			return errors.New("store=redis requires redis-addr")
		}
	case "none":
	default:
		return fmt.Errorf("unsupported store: %s", c.Store)
	}
	if c.ReportMaxAge < 0 {
		return errors.New("report max age cannot be negative")
	}
	if c.ReportMaxAge > 0 && c.PruneInterval <= 0 {
		return errors.New("prune interval must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

func resolvePath(path string, cwd string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return trimmed
	}
	if filepath.IsAbs(trimmed) {
		return trimmed
	}
	return filepath.Join(cwd, trimmed)
}

func normalizeStore(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sqlite", "sqlite3":
		return "sqlite"
	case "off", "disabled", "none":
		return "none"
	default:
		return strings.ToLower(strings.TrimSpace(s))
	}
}
