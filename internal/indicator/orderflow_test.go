package indicator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

func TestOrderflowNilViewReturnsNeutral(t *testing.T) {
	mon := NewOrderflowMonitor(nil)
	r := Orderflow(nil, DefaultOrderflowConfig(), mon)
	assert.Equal(t, Neutral, r.Score)
}

func TestCVDScoreAllBuysIsBullish(t *testing.T) {
	trades := []snapshot.Trade{
		{Side: snapshot.SideBuy, Size: 10},
		{Side: snapshot.SideBuy, Size: 10},
	}
	score := cvdScore(trades, 0.15)
	assert.Greater(t, score, 50.0)
}

func TestCVDScoreAllSellsIsBearish(t *testing.T) {
	trades := []snapshot.Trade{
		{Side: snapshot.SideSell, Size: 10},
		{Side: snapshot.SideSell, Size: 10},
	}
	score := cvdScore(trades, 0.15)
	assert.Less(t, score, 50.0)
}

func TestCVDScoreNoVolumeIsNeutral(t *testing.T) {
	score := cvdScore(nil, 0.15)
	assert.Equal(t, Neutral, score)
}

func TestOpenInterestScoreBullishBuildup(t *testing.T) {
	oi := &snapshot.OpenInterest{Previous: 100, Current: 110}
	base := &snapshot.OHLCVFrame{Bars: []snapshot.Bar{{Close: 100}, {Close: 105}}}

	score := openInterestScore(oi, base, DefaultOpenInterestThresholds())
	assert.Greater(t, score, 50.0, "oi up + price up should be classified bullish (buildup)")
}

func TestOpenInterestScoreBearishShortCovering(t *testing.T) {
	oi := &snapshot.OpenInterest{Previous: 100, Current: 90}
	base := &snapshot.OHLCVFrame{Bars: []snapshot.Bar{{Close: 100}, {Close: 105}}}

	score := openInterestScore(oi, base, DefaultOpenInterestThresholds())
	assert.Less(t, score, 50.0, "oi down + price up is short covering, bearish")
}

func TestOpenInterestScoreNilInputsAreNeutral(t *testing.T) {
	th := DefaultOpenInterestThresholds()
	assert.Equal(t, Neutral, openInterestScore(nil, nil, th))
	assert.Equal(t, Neutral, openInterestScore(&snapshot.OpenInterest{}, nil, th))
}

func TestOrderflowProducesFlowBiasSignal(t *testing.T) {
	view := &shaper.OrderflowView{
		ProcessedTrades: []snapshot.Trade{
			{Side: snapshot.SideBuy, Size: 100, Price: 100},
			{Side: snapshot.SideBuy, Size: 100, Price: 101},
		},
		OHLCV: map[snapshot.Timeframe]*snapshot.OHLCVFrame{
			snapshot.Base: {Bars: []snapshot.Bar{{Close: 100}, {Close: 102}}},
		},
		OpenInterest: &snapshot.OpenInterest{Previous: 100, Current: 110},
	}

	mon := NewOrderflowMonitor(nil)
	r := Orderflow(view, DefaultOrderflowConfig(), mon)

	assert.Contains(t, r.Components, "cvd")
	assert.Contains(t, r.Components, "open_interest")
	assert.Equal(t, Bullish, r.Signals["flow_bias"])
}
