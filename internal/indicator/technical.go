package indicator

import (
	"math"

	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// tagWeights is the fixed per-timeframe weighting from spec.md §4.2.a.
var tagWeights = map[snapshot.Timeframe]float64{
	snapshot.Base: 0.4,
	snapshot.LTF:  0.3,
	snapshot.MTF:  0.2,
	snapshot.HTF:  0.1,
}

// Technical computes the technical indicator (spec.md §4.2.a): per
// timeframe, a weighted mean of momentum/trend/oscillator/moving-average
// alignment sub-indicators, then a tag-weighted combination across
// timeframes.
func Technical(view *shaper.TechnicalView) Result {
	if view == nil || len(view.OHLCV) == 0 {
		return NeutralResult("no technical view")
	}

	components := map[string]float64{}
	signals := map[string]SignalState{}
	weightedSum, weightTotal := 0.0, 0.0

	for _, tag := range snapshot.AllTimeframes {
		frame := view.OHLCV[tag]
		score, ok := perTimeframeScore(frame)
		if !ok {
			continue
		}
		components[string(tag)] = score
		w := tagWeights[tag]
		weightedSum += score * w
		weightTotal += w
	}

	if weightTotal < GeneralEpsilon {
		return NeutralResult("no usable timeframes")
	}

	finalScore := Clip(weightedSum/weightTotal, 0, 100, Neutral)
	components["combined"] = finalScore

	switch {
	case finalScore >= 60:
		signals["trend_bias"] = Bullish
	case finalScore <= 40:
		signals["trend_bias"] = Bearish
	default:
		signals["trend_bias"] = SigNeutral
	}

	return Result{Score: finalScore, Components: components, Signals: signals}
}

// perTimeframeScore combines momentum, trend, oscillator, and moving-average
// alignment sub-scores (each replaceable; the contract is [0,100] per sub,
// clipped weighted mean overall).
func perTimeframeScore(frame *snapshot.OHLCVFrame) (float64, bool) {
	if frame == nil || len(frame.Bars) < 20 {
		return 0, false
	}
	bars := frame.Bars
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	momentum := momentumScore(closes)
	trend := trendScore(closes)
	oscillator := oscillatorScore(closes)
	maAlignment := maAlignmentScore(closes)

	combined := Clip((momentum+trend+oscillator+maAlignment)/4, 0, 100, Neutral)
	return combined, true
}

func momentumScore(closes []float64) float64 {
	n := len(closes)
	lookback := 10
	if n <= lookback {
		return Neutral
	}
	ret := SafeRatio(closes[n-1]-closes[n-1-lookback], closes[n-1-lookback], 0, PriceEpsilon)
	return Clip(50+ret*500, 0, 100, Neutral)
}

func trendScore(closes []float64) float64 {
	short := sma(closes, 5)
	long := sma(closes, 20)
	if short == 0 || long == 0 {
		return Neutral
	}
	diff := SafeRatio(short-long, long, 0, PriceEpsilon)
	return Clip(50+diff*1000, 0, 100, Neutral)
}

func oscillatorScore(closes []float64) float64 {
	n := len(closes)
	period := 14
	if n <= period {
		return Neutral
	}
	gains, losses := 0.0, 0.0
	for i := n - period; i < n; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			gains += delta
		} else {
			losses -= delta
		}
	}
	rs := SafeRatio(gains, losses, math.Inf(1), GeneralEpsilon)
	if math.IsInf(rs, 1) {
		return 100
	}
	rsi := 100 - (100 / (1 + rs))
	return Clip(rsi, 0, 100, Neutral)
}

func maAlignmentScore(closes []float64) float64 {
	ma5, ma10, ma20 := sma(closes, 5), sma(closes, 10), sma(closes, 20)
	if ma5 == 0 || ma10 == 0 || ma20 == 0 {
		return Neutral
	}
	score := Neutral
	if ma5 > ma10 && ma10 > ma20 {
		score = 80
	} else if ma5 < ma10 && ma10 < ma20 {
		score = 20
	}
	return score
}

func sma(closes []float64, period int) float64 {
	n := len(closes)
	if n < period || period <= 0 {
		return 0
	}
	sum := 0.0
	for i := n - period; i < n; i++ {
		sum += closes[i]
	}
	return sum / float64(period)
}
