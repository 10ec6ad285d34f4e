package indicator

import (
	"math"

	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// Volume computes the volume indicator (spec.md §4.2.b): volume trend,
// volume anomaly, buy/sell balance from trade-side classification, and a
// range-volume validity check consumed by the price-structure indicator.
func Volume(view *shaper.VolumeView) Result {
	if view == nil {
		return NeutralResult("no volume view")
	}
	base := view.OHLCV[snapshot.Base]

	components := map[string]float64{}
	signals := map[string]SignalState{}

	components["volume_trend"] = volumeTrendScore(base)
	components["volume_anomaly"] = volumeAnomalyScore(base)

	buyVol, sellVol := 0.0, 0.0
	for _, t := range view.ProcessedTrades {
		switch t.Side {
		case snapshot.SideBuy:
			buyVol += t.Size
		case snapshot.SideSell:
			sellVol += t.Size
		}
	}
	balance := SafeRatio(buyVol-sellVol, buyVol+sellVol, 0, VolumeEpsilon)
	components["buy_sell_balance"] = Clip(50+balance*50, 0, 100, Neutral)

	components["range_volume_valid"] = rangeVolumeValidity(base)

	weights := map[string]float64{"volume_trend": 0.35, "volume_anomaly": 0.25, "buy_sell_balance": 0.30, "range_volume_valid": 0.10}
	score := 0.0
	for k, w := range weights {
		score += components[k] * w
	}
	score = Clip(score, 0, 100, Neutral)

	switch {
	case score >= 60:
		signals["volume_bias"] = Bullish
	case score <= 40:
		signals["volume_bias"] = Bearish
	default:
		signals["volume_bias"] = SigNeutral
	}

	return Result{Score: score, Components: components, Signals: signals}
}

func volumeTrendScore(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) < 20 {
		return Neutral
	}
	bars := frame.Bars
	n := len(bars)
	recentAvg, priorAvg := 0.0, 0.0
	for i := n - 10; i < n; i++ {
		recentAvg += bars[i].Volume
	}
	recentAvg /= 10
	for i := n - 20; i < n-10; i++ {
		priorAvg += bars[i].Volume
	}
	priorAvg /= 10
	ratio := SafeRatio(recentAvg-priorAvg, priorAvg, 0, VolumeEpsilon)
	return Clip(50+ratio*100, 0, 100, Neutral)
}

func volumeAnomalyScore(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) < 20 {
		return Neutral
	}
	bars := frame.Bars
	n := len(bars)
	mean, m2, count := 0.0, 0.0, 0.0
	for i := n - 20; i < n-1; i++ {
		count++
		delta := bars[i].Volume - mean
		mean += delta / count
		m2 += delta * (bars[i].Volume - mean)
	}
	if count < 2 {
		return Neutral
	}
	stddev := math.Sqrt(m2 / count)
	latest := bars[n-1].Volume
	z := SafeRatio(latest-mean, stddev, 0, VolumeEpsilon)
	return Clip(50+z*15, 0, 100, Neutral)
}

// rangeVolumeValidity flags whether the most recent bar's range is
// plausibly supported by its volume, a cheap sanity check the
// price-structure indicator consumes for breakout validation.
func rangeVolumeValidity(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) < 2 {
		return Neutral
	}
	bars := frame.Bars
	last := bars[len(bars)-1]
	rangeFrac := SafeRatio(last.High-last.Low, last.Close, 0, PriceEpsilon)
	if last.Volume <= 0 {
		return 20
	}
	if rangeFrac > 0.05 && last.Volume < medianVolume(bars) {
		return 30
	}
	return 70
}

func medianVolume(bars []snapshot.Bar) float64 {
	vols := make([]float64, len(bars))
	for i, b := range bars {
		vols[i] = b.Volume
	}
	for i := 1; i < len(vols); i++ {
		for j := i; j > 0 && vols[j-1] > vols[j]; j-- {
			vols[j-1], vols[j] = vols[j], vols[j-1]
		}
	}
	return vols[len(vols)/2]
}
