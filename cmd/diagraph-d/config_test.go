package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig([]string{})
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8090", cfg.Addr)
	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, filepath.Join(cwd, "diagraph.db"), cfg.DBPath)
	assert.Equal(t, filepath.Join(cwd, "diagraph-blobs"), cfg.BlobDir)
	assert.Equal(t, 720*time.Hour, cfg.ReportMaxAge)
	assert.Equal(t, time.Hour, cfg.PruneInterval)
	assert.Empty(t, cfg.IncidentsPath)
	assert.False(t, cfg.StrictRelations)
}

func TestLoadConfig_EnvAndFlags(t *testing.T) {
	t.Setenv("DIAGRAPH_ADDR", ":9999")
	t.Setenv("DIAGRAPH_STORE", "redis")
	t.Setenv("DIAGRAPH_REDIS_ADDR", "redis:6379")
	t.Setenv("DIAGRAPH_STRICT_RELATIONS", "true")
	t.Setenv("DIAGRAPH_INCIDENTS_PATH", "/etc/diagraph/incidents.yaml")

	cfg, err := LoadConfig([]string{"-addr", ":7000", "-blob-dir", ""})
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Addr, "flag overrides env")
	assert.Equal(t, "redis", cfg.Store)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.True(t, cfg.StrictRelations)
	assert.Equal(t, "/etc/diagraph/incidents.yaml", cfg.IncidentsPath)
	assert.Empty(t, cfg.BlobDir)
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		envVars     map[string]string
		errorSubstr string
	}{
		{
			name:        "empty addr",
			args:        []string{"-addr", " "},
			errorSubstr: "addr cannot be empty",
		},
		{
			name:        "unknown store",
			args:        []string{"-store", "postgres"},
			errorSubstr: "unsupported store: postgres",
		},
		{
			name:        "bad log level",
			args:        []string{"-log-level", "loud"},
			errorSubstr: "unknown log level",
		},
		{
			name:        "negative max age",
			args:        []string{"-report-max-age", "-1h"},
			errorSubstr: "report max age cannot be negative",
		},
		{
			name:        "zero prune interval",
			args:        []string{"-prune-interval", "0s"},
			errorSubstr: "prune interval must be positive",
		},
		{
			name:        "invalid duration flag",
			args:        []string{"-shutdown-timeout", "soon"},
			errorSubstr: "invalid value",
		},
		{
			name:        "invalid duration env",
			envVars:     map[string]string{"DIAGRAPH_REPORT_MAX_AGE": "forever"},
			errorSubstr: "invalid environment",
		},
		{
			name:        "redis without addr",
			args:        []string{"-store", "redis", "-redis-addr", ""},
			errorSubstr: "store=redis requires redis-addr",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			_, err := LoadConfig(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorSubstr)
		})
	}
}

func TestLoadConfig_PruningDisabled(t *testing.T) {
	cfg, err := LoadConfig([]string{"-report-max-age", "0", "-prune-interval", "0s", "-store", "none"})
	require.NoError(t, err)
	assert.Zero(t, cfg.ReportMaxAge)
	assert.Equal(t, "none", cfg.Store)
}
