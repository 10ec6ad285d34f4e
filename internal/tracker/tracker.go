package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config controls the tracker's file location and in-memory ring capacity
// (spec.md §6: tracker.log_dir, tracker.cache_capacity).
type Config struct {
	LogDir        string
	CacheCapacity int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{LogDir: "logs/quality_metrics", CacheCapacity: 1000}
}

// ring is a fixed-capacity circular buffer of QualityRecord, single writer
// (the tracker's Record method) plus many concurrent readers (statistics
// queries), guarded by one RWMutex per spec.md §5.
type ring struct {
	mu       sync.RWMutex
	buf      []QualityRecord
	capacity int
	next     int
	filled   bool
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &ring{buf: make([]QualityRecord, capacity), capacity: capacity}
}

func (r *ring) push(rec QualityRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = rec
	r.next = (r.next + 1) % r.capacity
	if r.next == 0 {
		r.filled = true
	}
}

func (r *ring) snapshot() []QualityRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.filled {
		out := make([]QualityRecord, r.next)
		copy(out, r.buf[:r.next])
		return out
	}
	out := make([]QualityRecord, r.capacity)
	copy(out, r.buf[r.next:])
	copy(out[r.capacity-r.next:], r.buf[:r.next])
	return out
}

// Tracker is C5.
type Tracker struct {
	cfg Config
	log zerolog.Logger

	fileMu      sync.Mutex
	currentDate string
	currentFile *os.File

	ring   *ring
	mirror *SQLMirror
}

// New builds a Tracker. The log directory is created eagerly; failures to
// create it are a ConfigError per spec.md §7 and returned to the caller to
// fail loudly at init time.
func New(cfg Config, log zerolog.Logger) (*Tracker, error) {
	if cfg.LogDir == "" {
		cfg.LogDir = DefaultConfig().LogDir
	}
	if cfg.CacheCapacity <= 0 {
		cfg.CacheCapacity = DefaultConfig().CacheCapacity
	}
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("tracker: failed to create log dir: %w", err)
	}
	return &Tracker{cfg: cfg, log: log, ring: newRing(cfg.CacheCapacity)}, nil
}

// Record appends rec to the current day's JSONL file and the in-memory
// ring. TrackerIOError is logged and the record dropped; it never blocks
// or propagates back to the caller (spec.md §7).
func (t *Tracker) Record(rec QualityRecord) {
	t.ring.push(rec)

	if err := t.appendLine(rec); err != nil {
		t.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("tracker: failed to append quality record")
	}

	if t.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := t.mirror.Insert(ctx, rec); err != nil {
			t.log.Error().Err(err).Str("symbol", rec.Symbol).Msg("tracker: sql mirror insert failed")
		}
	}
}

func (t *Tracker) appendLine(rec QualityRecord) error {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()

	dateStr := time.UnixMilli(rec.TsMs).UTC().Format("20060102")
	if t.currentFile == nil || dateStr != t.currentDate {
		if t.currentFile != nil {
			t.currentFile.Close()
		}
		path := filepath.Join(t.cfg.LogDir, fmt.Sprintf("quality_metrics_%s.jsonl", dateStr))
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		t.currentFile = f
		t.currentDate = dateStr
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	line = append(line, '\n')
	_, err = t.currentFile.Write(line)
	return err
}

// Close closes the current log file; records are written unbuffered, so
// there is nothing to flush.
func (t *Tracker) Close() error {
	t.fileMu.Lock()
	defer t.fileMu.Unlock()
	if t.currentFile == nil {
		return nil
	}
	return t.currentFile.Close()
}

// MetricStats is the min/mean/median/max/stdev summary for one metric.
type MetricStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Stdev  float64 `json:"stdev"`
}

// Statistics is the aggregate response from the Statistics query.
type Statistics struct {
	PeriodHours    int                    `json:"period_hours"`
	Symbol         string                 `json:"symbol"`
	TotalSignals   int                    `json:"total_signals"`
	SignalsFiltered int                   `json:"signals_filtered"`
	FilterRatePct  float64                `json:"filter_rate"`
	Confidence     MetricStats            `json:"confidence"`
	Consensus      MetricStats            `json:"consensus"`
	Disagreement   MetricStats            `json:"disagreement"`
	FilterReasons  map[string]int         `json:"filter_reasons"`
}

// Statistics returns counts, filter rate, and per-metric summary stats over
// the trailing window (spec.md §4.5), optionally filtered to one symbol.
func (t *Tracker) Statistics(hours int, symbol string) (Statistics, bool) {
	records := t.windowed(hours, symbol)
	if len(records) == 0 {
		return Statistics{}, false
	}

	confidences := make([]float64, len(records))
	consensuses := make([]float64, len(records))
	disagreements := make([]float64, len(records))
	filteredCount := 0
	reasons := map[string]int{}
	for i, r := range records {
		confidences[i] = r.Confidence
		consensuses[i] = r.Consensus
		disagreements[i] = r.Disagreement
		if r.Filtered {
			filteredCount++
			if r.FilterReason != "" {
				reasons[r.FilterReason]++
			}
		}
	}

	return Statistics{
		PeriodHours:     hours,
		Symbol:          symbolOrAll(symbol),
		TotalSignals:    len(records),
		SignalsFiltered: filteredCount,
		FilterRatePct:   100 * float64(filteredCount) / float64(len(records)),
		Confidence:      summarize(confidences),
		Consensus:       summarize(consensuses),
		Disagreement:    summarize(disagreements),
		FilterReasons:   reasons,
	}, true
}

// FilterEffectivenessGroup is the per-group average for FilterEffectiveness.
type FilterEffectivenessGroup struct {
	AvgConfidence   float64 `json:"avg_confidence"`
	AvgConsensus    float64 `json:"avg_consensus"`
	AvgDisagreement float64 `json:"avg_disagreement"`
	Count           int     `json:"count"`
}

// FilterEffectiveness is the response from the FilterEffectiveness query.
type FilterEffectiveness struct {
	PeriodHours    int                        `json:"period_hours"`
	TotalSignals   int                        `json:"total_signals"`
	FilteredGroup  *FilterEffectivenessGroup  `json:"filtered_signals"`
	PassedGroup    *FilterEffectivenessGroup  `json:"passed_signals"`
	FilterRatePct  float64                    `json:"filter_rate"`
	FilterReasons  map[string]int             `json:"filter_reasons"`
}

// FilterEffectiveness returns the average quality metrics of filtered vs.
// passed signals plus a filter-reason histogram (spec.md §4.5).
func (t *Tracker) FilterEffectiveness(hours int) (FilterEffectiveness, bool) {
	records := t.windowed(hours, "")
	if len(records) == 0 {
		return FilterEffectiveness{}, false
	}

	var filtered, passed []QualityRecord
	reasons := map[string]int{}
	for _, r := range records {
		if r.Filtered {
			filtered = append(filtered, r)
			if r.FilterReason != "" {
				reasons[r.FilterReason]++
			}
		} else {
			passed = append(passed, r)
		}
	}

	return FilterEffectiveness{
		PeriodHours:   hours,
		TotalSignals:  len(records),
		FilteredGroup: groupAverage(filtered),
		PassedGroup:   groupAverage(passed),
		FilterRatePct: 100 * float64(len(filtered)) / float64(len(records)),
		FilterReasons: reasons,
	}, true
}

func groupAverage(records []QualityRecord) *FilterEffectivenessGroup {
	if len(records) == 0 {
		return nil
	}
	var confSum, consSum, disSum float64
	for _, r := range records {
		confSum += r.Confidence
		consSum += r.Consensus
		disSum += r.Disagreement
	}
	n := float64(len(records))
	return &FilterEffectivenessGroup{
		AvgConfidence:   confSum / n,
		AvgConsensus:    consSum / n,
		AvgDisagreement: disSum / n,
		Count:           len(records),
	}
}

func (t *Tracker) windowed(hours int, symbol string) []QualityRecord {
	if hours <= 0 {
		hours = 24
	}
	cutoff := time.Now().Add(-time.Duration(hours) * time.Hour).UnixMilli()
	all := t.ring.snapshot()
	out := make([]QualityRecord, 0, len(all))
	for _, r := range all {
		if r.TsMs < cutoff {
			continue
		}
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		out = append(out, r)
	}
	return out
}

func symbolOrAll(symbol string) string {
	if symbol == "" {
		return "all"
	}
	return symbol
}

func summarize(values []float64) MetricStats {
	n := len(values)
	if n == 0 {
		return MetricStats{}
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	mean := 0.0
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	var median float64
	if n%2 == 0 {
		median = (sorted[n/2-1] + sorted[n/2]) / 2
	} else {
		median = sorted[n/2]
	}

	var stdev float64
	if n > 1 {
		variance := 0.0
		for _, v := range values {
			d := v - mean
			variance += d * d
		}
		stdev = math.Sqrt(variance / float64(n-1))
	}

	return MetricStats{Mean: mean, Median: median, Min: sorted[0], Max: sorted[n-1], Stdev: stdev}
}
