package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
confluence:
  weights:
    technical: 0.2
    orderflow: 0.25
  thresholds:
    buy: 70
    sell: 30
    neutral_buffer: 5
  quality_filter:
    min_confidence: 0.35
    max_disagreement: 0.25
    enabled: true
signal:
  cooldown_seconds: 120
  dedup_backend: redis
  redis_addr: localhost:6379
tracker:
  log_dir: /tmp/confluence-quality
  cache_capacity: 500
  sql_mirror:
    enabled: true
    dsn: postgres://localhost/confluence
timeframes:
  base:
    interval: 1m
  htf:
    interval: 4h
budgets:
  per_indicator_soft_ms: 800
  analysis_hard_ms: 4000
http:
  host: 0.0.0.0
  port: 9090
`

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "confluence.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadParsesAllSections(t *testing.T) {
	path := writeTempConfig(t, sampleYAML)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 0.2, cfg.Confluence.Weights["technical"])
	assert.Equal(t, 70.0, cfg.Confluence.Thresholds.Buy)
	assert.True(t, cfg.Confluence.QualityFilter.Enabled)
	assert.Equal(t, int64(120), cfg.Signal.CooldownSeconds)
	assert.Equal(t, "redis", cfg.Signal.DedupBackend)
	assert.Equal(t, 500, cfg.Tracker.CacheCapacity)
	assert.True(t, cfg.Tracker.SQLMirror.Enabled)
	assert.Equal(t, "1m", cfg.Timeframes.Base.Interval)
	assert.Equal(t, "4h", cfg.Timeframes.HTF.Interval)
	assert.Equal(t, 9090, cfg.HTTP.Port)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load("/nonexistent/path/confluence.yaml")
	assert.Error(t, err)
}

func TestLoadInvalidYAMLErrors(t *testing.T) {
	path := writeTempConfig(t, "confluence: [this is not valid: yaml")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestBudgetsConfigDefaults(t *testing.T) {
	var b BudgetsConfig
	assert.Equal(t, 1000, int(b.PerIndicatorSoft().Milliseconds()))
	assert.Equal(t, 5000, int(b.AnalysisHard().Milliseconds()))
}

func TestBudgetsConfigHonorsExplicitValues(t *testing.T) {
	b := BudgetsConfig{PerIndicatorSoftMs: 250, AnalysisHardMs: 2000}
	assert.Equal(t, 250, int(b.PerIndicatorSoft().Milliseconds()))
	assert.Equal(t, 2000, int(b.AnalysisHard().Milliseconds()))
}
