// Package config loads the YAML configuration file into the structural
// values the core packages accept directly at construction time (spec.md
// §6: "all configuration is passed in structurally" — internal/config
// itself is never imported by the core packages).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration surface enumerated in spec.md §6.
type Config struct {
	Confluence ConfluenceConfig `yaml:"confluence"`
	Signal     SignalConfig     `yaml:"signal"`
	Orderflow  OrderflowConfig  `yaml:"orderflow"`
	Tracker    TrackerConfig    `yaml:"tracker"`
	Timeframes TimeframesConfig `yaml:"timeframes"`
	Budgets    BudgetsConfig    `yaml:"budgets"`
	HTTP       HTTPConfig       `yaml:"http"`
}

// ConfluenceConfig holds C3's weights and thresholds.
type ConfluenceConfig struct {
	Weights       map[string]float64 `yaml:"weights"`
	Thresholds    ThresholdsConfig    `yaml:"thresholds"`
	QualityFilter QualityFilterConfig `yaml:"quality_filter"`
}

// ThresholdsConfig is spec.md §6's confluence.thresholds.
type ThresholdsConfig struct {
	Buy           float64 `yaml:"buy"`
	Sell          float64 `yaml:"sell"`
	NeutralBuffer float64 `yaml:"neutral_buffer"`
}

// QualityFilterConfig is spec.md §6's confluence.quality_filter.
type QualityFilterConfig struct {
	MinConfidence   float64 `yaml:"min_confidence"`
	MaxDisagreement float64 `yaml:"max_disagreement"`
	Enabled         bool    `yaml:"enabled"`
}

// SignalConfig is spec.md §6's signal.* surface.
type SignalConfig struct {
	CooldownSeconds int64  `yaml:"cooldown_seconds"`
	DedupBackend    string `yaml:"dedup_backend"` // "in_process" (default) or "redis"
	RedisAddr       string `yaml:"redis_addr"`
}

// OrderflowConfig is spec.md §6's orderflow.* surface.
type OrderflowConfig struct {
	CVD          CVDConfig          `yaml:"cvd"`
	OpenInterest OpenInterestConfig `yaml:"open_interest"`
}

// CVDConfig is orderflow.cvd.*.
type CVDConfig struct {
	SaturationThreshold float64 `yaml:"saturation_threshold"`
}

// OpenInterestConfig is orderflow.open_interest.*.
type OpenInterestConfig struct {
	MinimalChangeThreshold  float64 `yaml:"minimal_change_threshold"`
	PriceDirectionThreshold float64 `yaml:"price_direction_threshold"`
	OISaturationThreshold   float64 `yaml:"oi_saturation_threshold"`
	PriceSaturationThreshold float64 `yaml:"price_saturation_threshold"`
}

// TrackerConfig is spec.md §6's tracker.* surface, plus the additive
// optional SQL mirror (SPEC_FULL.md §6).
type TrackerConfig struct {
	LogDir        string          `yaml:"log_dir"`
	CacheCapacity int             `yaml:"cache_capacity"`
	SQLMirror     SQLMirrorConfig `yaml:"sql_mirror"`
}

// SQLMirrorConfig configures the optional Postgres mirror.
type SQLMirrorConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// TimeframeConfig is one of timeframes.{base,ltf,mtf,htf}.
type TimeframeConfig struct {
	Interval string `yaml:"interval"`
}

// TimeframesConfig is spec.md §6's timeframes.* surface.
type TimeframesConfig struct {
	Base TimeframeConfig `yaml:"base"`
	LTF  TimeframeConfig `yaml:"ltf"`
	MTF  TimeframeConfig `yaml:"mtf"`
	HTF  TimeframeConfig `yaml:"htf"`
}

// BudgetsConfig is spec.md §6's "analysis hard budget & per-indicator soft
// budget".
type BudgetsConfig struct {
	PerIndicatorSoftMs int `yaml:"per_indicator_soft_ms"`
	AnalysisHardMs     int `yaml:"analysis_hard_ms"`
}

// PerIndicatorSoft returns the configured soft budget as a Duration.
func (b BudgetsConfig) PerIndicatorSoft() time.Duration {
	if b.PerIndicatorSoftMs <= 0 {
		return time.Second
	}
	return time.Duration(b.PerIndicatorSoftMs) * time.Millisecond
}

// AnalysisHard returns the configured hard budget as a Duration.
func (b BudgetsConfig) AnalysisHard() time.Duration {
	if b.AnalysisHardMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(b.AnalysisHardMs) * time.Millisecond
}

// HTTPConfig configures the read-only introspection server (ambient, not
// part of the core's configuration surface; SPEC_FULL.md §6).
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads and parses a YAML configuration file: read the file,
// unmarshal, wrap any error with context. A failure here must fail
// loudly before the process accepts snapshots (spec.md §7).
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, nil
}
