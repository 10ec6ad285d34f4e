package tracker

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTracker(t *testing.T) *Tracker {
	t.Helper()
	cfg := Config{LogDir: t.TempDir(), CacheCapacity: 10}
	tr, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { tr.Close() })
	return tr
}

func TestTrackerStatisticsEmptyWindowReturnsFalse(t *testing.T) {
	tr := newTestTracker(t)
	_, ok := tr.Statistics(24, "")
	assert.False(t, ok)
}

func TestTrackerStatisticsAggregatesRecords(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()

	tr.Record(NewRecord(now, "BTC-USD", 80, 70, 10, 0.9, 0.6, 0.1, "BUY", false, ""))
	tr.Record(NewRecord(now, "BTC-USD", 30, 40, -10, 0.5, 0.1, 0.6, "", true, "low_confidence"))
	tr.Record(NewRecord(now, "ETH-USD", 90, 80, 10, 0.95, 0.8, 0.05, "BUY", false, ""))

	stats, ok := tr.Statistics(24, "")
	require.True(t, ok)
	assert.Equal(t, 3, stats.TotalSignals)
	assert.Equal(t, 1, stats.SignalsFiltered)
	assert.InDelta(t, 33.33, stats.FilterRatePct, 0.1)
	assert.Equal(t, 1, stats.FilterReasons["low_confidence"])
}

func TestTrackerStatisticsFiltersBySymbol(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()

	tr.Record(NewRecord(now, "BTC-USD", 80, 70, 10, 0.9, 0.6, 0.1, "BUY", false, ""))
	tr.Record(NewRecord(now, "ETH-USD", 90, 80, 10, 0.95, 0.8, 0.05, "BUY", false, ""))

	stats, ok := tr.Statistics(24, "BTC-USD")
	require.True(t, ok)
	assert.Equal(t, 1, stats.TotalSignals)
	assert.Equal(t, "BTC-USD", stats.Symbol)
}

func TestTrackerStatisticsExcludesOutsideWindow(t *testing.T) {
	tr := newTestTracker(t)
	old := time.Now().Add(-48 * time.Hour)

	tr.Record(NewRecord(old, "BTC-USD", 80, 70, 10, 0.9, 0.6, 0.1, "BUY", false, ""))

	_, ok := tr.Statistics(24, "")
	assert.False(t, ok)
}

func TestTrackerFilterEffectivenessSeparatesGroups(t *testing.T) {
	tr := newTestTracker(t)
	now := time.Now()

	tr.Record(NewRecord(now, "BTC-USD", 80, 70, 10, 0.9, 0.8, 0.1, "BUY", false, ""))
	tr.Record(NewRecord(now, "BTC-USD", 30, 40, -10, 0.5, 0.1, 0.6, "", true, "high_disagreement"))

	fe, ok := tr.FilterEffectiveness(24)
	require.True(t, ok)
	assert.Equal(t, 2, fe.TotalSignals)
	require.NotNil(t, fe.FilteredGroup)
	require.NotNil(t, fe.PassedGroup)
	assert.Equal(t, 1, fe.FilteredGroup.Count)
	assert.Equal(t, 1, fe.PassedGroup.Count)
	assert.Greater(t, fe.PassedGroup.AvgConfidence, fe.FilteredGroup.AvgConfidence)
}

func TestTrackerRingEvictsOldestBeyondCapacity(t *testing.T) {
	cfg := Config{LogDir: t.TempDir(), CacheCapacity: 2}
	tr, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer tr.Close()

	now := time.Now()
	tr.Record(NewRecord(now, "A", 1, 1, 0, 1, 1, 0, "BUY", false, ""))
	tr.Record(NewRecord(now, "B", 1, 1, 0, 1, 1, 0, "BUY", false, ""))
	tr.Record(NewRecord(now, "C", 1, 1, 0, 1, 1, 0, "BUY", false, ""))

	stats, ok := tr.Statistics(24, "")
	require.True(t, ok)
	assert.Equal(t, 2, stats.TotalSignals, "ring capacity 2 should have evicted the oldest record")
}
