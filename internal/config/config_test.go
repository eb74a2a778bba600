package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://api.datacollector.dev/v3", cfg.Provider.BaseURL)
	assert.Equal(t, "platforms.yaml", cfg.Provider.RegistryPath)
	assert.InDelta(t, 5.0, cfg.Provider.RequestsPerSec, 0.001)
	assert.Equal(t, 10, cfg.Provider.PollIntervalSecs)
	assert.Equal(t, 30, cfg.Provider.PollTimeoutMins)
	assert.Equal(t, 3, cfg.Provider.DownloadRetries)
	assert.Equal(t, 2000, cfg.Provider.DownloadBackoffMs)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 1024, cfg.Anthropic.MaxTokens)
	assert.Equal(t, "https://api.jina.ai", cfg.Jina.BaseURL)
	assert.Equal(t, "jina-embeddings-v3", cfg.Jina.Model)
	assert.Equal(t, 20, cfg.Pipeline.ClassifyBatchSize)
	assert.Equal(t, 4, cfg.Pipeline.MaxConcurrentRuns)
	assert.InDelta(t, 0.5, cfg.Pipeline.RelevanceThreshold, 0.001)
	assert.Equal(t, 60, cfg.Sweeper.CutoffMins)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	yaml := `
store:
  driver: sqlite
  database_url: campaigns.db
log:
  level: debug
  format: console
server:
  port: 9090
provider:
  poll_interval_secs: 2
  download_retries: 5
pipeline:
  classify_batch_size: 10
  max_concurrent_runs: 2
sweeper:
  cutoff_mins: 30
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "campaigns.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 2, cfg.Provider.PollIntervalSecs)
	assert.Equal(t, 5, cfg.Provider.DownloadRetries)
	assert.Equal(t, 10, cfg.Pipeline.ClassifyBatchSize)
	assert.Equal(t, 2, cfg.Pipeline.MaxConcurrentRuns)
	assert.Equal(t, 30, cfg.Sweeper.CutoffMins)

	// Unset keys keep their defaults.
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.Model)
	assert.Equal(t, 30, cfg.Provider.PollTimeoutMins)
}

func TestLoadFromEnv(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })

	t.Setenv("LISTENING_STORE_DRIVER", "sqlite")
	t.Setenv("LISTENING_PROVIDER_KEY", "test-key")
	t.Setenv("LISTENING_SWEEPER_CUTOFF_MINS", "15")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "test-key", cfg.Provider.Key)
	assert.Equal(t, 15, cfg.Sweeper.CutoffMins)
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())

	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))

	err := InitLogger(LogConfig{Level: "not-a-level"})
	assert.Error(t, err)
}
