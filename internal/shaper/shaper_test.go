package shaper

import (
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quorumtrade/confluence/internal/snapshot"
)

func makeBars(n int, startMs, stepMs int64) []snapshot.Bar {
	bars := make([]snapshot.Bar, n)
	for i := 0; i < n; i++ {
		bars[i] = snapshot.Bar{
			TsMs: startMs + int64(i)*stepMs, Open: 100, High: 101, Low: 99, Close: 100, Volume: 10,
		}
	}
	return bars
}

func TestValidateTopRejectsEmptySymbol(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	err := sh.ValidateTop(&snapshot.MarketSnapshot{Symbol: "", TimestampMs: 1, OHLCV: map[string]*snapshot.OHLCVFrame{"1m": {}}})
	assert.ErrorIs(t, err, ErrSnapshotRejected)
}

func TestValidateTopRejectsNoOHLCV(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	err := sh.ValidateTop(&snapshot.MarketSnapshot{Symbol: "BTC-USD", TimestampMs: 1})
	assert.ErrorIs(t, err, ErrSnapshotRejected)
}

func TestValidateTopAcceptsWellFormedSnapshot(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	snap := &snapshot.MarketSnapshot{
		Symbol: "BTC-USD", TimestampMs: 1000,
		OHLCV: map[string]*snapshot.OHLCVFrame{"1m": {Bars: makeBars(20, 0, 1000)}},
	}
	assert.NoError(t, sh.ValidateTop(snap))
}

func TestStandardizedFramesDropsShortFrames(t *testing.T) {
	sh := New(Config{MinCandles: 20}, zerolog.Nop())
	snap := &snapshot.MarketSnapshot{
		OHLCV: map[string]*snapshot.OHLCVFrame{
			"1m": {Bars: makeBars(5, 0, 1000)},
		},
	}
	frames := sh.StandardizedFrames(snap, 0)
	assert.Empty(t, frames, "frame with fewer bars than MinCandles should be dropped")
}

func TestStandardizedFramesResolvesKnownTags(t *testing.T) {
	sh := New(Config{MinCandles: 5}, zerolog.Nop())
	snap := &snapshot.MarketSnapshot{
		OHLCV: map[string]*snapshot.OHLCVFrame{
			"1m": {Bars: makeBars(10, 0, 60_000)},
			"4h": {Bars: makeBars(10, 0, 14_400_000)},
		},
	}
	frames := sh.StandardizedFrames(snap, 0)
	require.Contains(t, frames, snapshot.Base)
	require.Contains(t, frames, snapshot.HTF)
}

func TestFrameCheckRejectsOutOfOrderBars(t *testing.T) {
	sh := New(Config{MinCandles: 2}, zerolog.Nop())
	bars := makeBars(5, 0, 1000)
	bars[2].TsMs = bars[1].TsMs // non-monotonic
	snap := &snapshot.MarketSnapshot{OHLCV: map[string]*snapshot.OHLCVFrame{"1m": {Bars: bars}}}

	frames := sh.StandardizedFrames(snap, 0)
	assert.Empty(t, frames)
}

func TestFrameCheckRepairsSparseNaN(t *testing.T) {
	sh := New(Config{MinCandles: 5}, zerolog.Nop())
	bars := makeBars(20, 0, 1000)
	bars[5].Close = math.NaN()
	snap := &snapshot.MarketSnapshot{OHLCV: map[string]*snapshot.OHLCVFrame{"1m": {Bars: bars}}}

	frames := sh.StandardizedFrames(snap, 0)
	require.Contains(t, frames, snapshot.Base)
	assert.False(t, math.IsNaN(frames[snapshot.Base].Bars[5].Close), "sparse NaN should be repaired by fill")
}

func TestDeriveMissingFallsBackToNearestAvailable(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	frames := map[snapshot.Timeframe]*snapshot.OHLCVFrame{
		snapshot.LTF: {Bars: makeBars(10, 0, 1000)},
	}
	out := sh.DeriveMissing(frames)

	require.Contains(t, out, snapshot.Base)
	assert.Equal(t, out[snapshot.LTF], out[snapshot.Base], "Base should derive from LTF, the nearest available tag")
}

func TestDeriveMissingPlaceholderWhenNothingAvailable(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	out := sh.DeriveMissing(map[snapshot.Timeframe]*snapshot.OHLCVFrame{})

	for _, tag := range snapshot.AllTimeframes {
		require.Contains(t, out, tag)
		assert.Empty(t, out[tag].Bars)
	}
}

func TestCleanOrderBookDropsNegativeLevels(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	snap := &snapshot.MarketSnapshot{
		TimestampMs: 500,
		OrderBook: &snapshot.OrderBook{
			Bids: []snapshot.PriceLevel{{Price: 100, Size: 1}, {Price: -1, Size: 1}},
			Asks: []snapshot.PriceLevel{{Price: 101, Size: math.NaN()}},
		},
	}
	clean := sh.CleanOrderBook(snap)
	require.NotNil(t, clean)
	assert.Len(t, clean.Bids, 1)
	assert.Empty(t, clean.Asks)
}

func TestCleanTradesRepairsMissingPriceFromTicker(t *testing.T) {
	sh := New(Config{}, zerolog.Nop())
	snap := &snapshot.MarketSnapshot{
		TimestampMs: 1000,
		Trades:      []snapshot.Trade{{Price: -1, Side: snapshot.SideBuy}},
	}
	lastValid := 0.0
	out := sh.CleanTrades(snap, &snapshot.Ticker{Last: 50}, 0, &lastValid)

	require.Len(t, out, 1)
	assert.Equal(t, 50.0, out[0].Price)
}

func TestApplyTickRuleClassifiesByPriceDirection(t *testing.T) {
	trades := []snapshot.Trade{
		{Price: 100, Side: snapshot.SideBuy},
		{Price: 101, Side: snapshot.SideUnknown},
		{Price: 99, Side: snapshot.SideUnknown},
	}
	out := ApplyTickRule(trades)
	assert.Equal(t, snapshot.SideBuy, out[1].Side)
	assert.Equal(t, snapshot.SideSell, out[2].Side)
}

func TestUnknownShareWarningThreshold(t *testing.T) {
	trades := make([]snapshot.Trade, 10)
	for i := range trades {
		trades[i].Side = snapshot.SideBuy
	}
	trades[0].Side = snapshot.SideUnknown
	trades[1].Side = snapshot.SideUnknown

	share, warn := UnknownShareWarning(trades)
	assert.Equal(t, 0.2, share)
	assert.True(t, warn)
}
