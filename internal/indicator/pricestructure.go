package indicator

import (
	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// PriceStructure computes the price-structure indicator (spec.md §4.2.f):
// multi-timeframe support/resistance, range position, and breakout
// detection, gated by the volume indicator's range-volume validity check.
func PriceStructure(view *shaper.PriceStructureView, rangeVolumeValid float64) Result {
	if view == nil {
		return NeutralResult("no price structure view")
	}
	components := map[string]float64{}
	signals := map[string]SignalState{}

	for _, tag := range snapshot.AllTimeframes {
		frame := view.OHLCV[tag]
		if frame == nil || len(frame.Bars) < 20 {
			continue
		}
		components[string(tag)+"_range_position"] = rangePositionScore(frame)
	}

	base := view.OHLCV[snapshot.Base]
	breakout := breakoutScore(base, rangeVolumeValid)
	components["breakout"] = breakout

	supportResistance := supportResistanceScore(base)
	components["support_resistance"] = supportResistance

	weights := map[string]float64{"breakout": 0.40, "support_resistance": 0.35}
	tfWeight := 0.25 / 4
	score, totalW := breakout*weights["breakout"]+supportResistance*weights["support_resistance"], weights["breakout"]+weights["support_resistance"]
	for _, tag := range snapshot.AllTimeframes {
		if v, ok := components[string(tag)+"_range_position"]; ok {
			score += v * tfWeight
			totalW += tfWeight
		}
	}
	if totalW < GeneralEpsilon {
		score = Neutral
	} else {
		score = Clip(score/totalW, 0, 100, Neutral)
	}

	switch {
	case score >= 60:
		signals["structure_bias"] = Bullish
	case score <= 40:
		signals["structure_bias"] = Bearish
	default:
		signals["structure_bias"] = SigNeutral
	}

	return Result{Score: score, Components: components, Signals: signals}
}

func rangePositionScore(frame *snapshot.OHLCVFrame) float64 {
	bars := frame.Bars
	hi, lo := bars[0].High, bars[0].Low
	for _, b := range bars {
		if b.High > hi {
			hi = b.High
		}
		if b.Low < lo {
			lo = b.Low
		}
	}
	last := bars[len(bars)-1].Close
	position := SafeRatio(last-lo, hi-lo, 0.5, PriceEpsilon)
	return Clip(position*100, 0, 100, Neutral)
}

func breakoutScore(frame *snapshot.OHLCVFrame, rangeVolumeValid float64) float64 {
	if frame == nil || len(frame.Bars) < 20 {
		return Neutral
	}
	bars := frame.Bars
	n := len(bars)
	priorHigh, priorLow := bars[n-20].High, bars[n-20].Low
	for i := n - 20; i < n-1; i++ {
		if bars[i].High > priorHigh {
			priorHigh = bars[i].High
		}
		if bars[i].Low < priorLow {
			priorLow = bars[i].Low
		}
	}
	last := bars[n-1]
	switch {
	case last.Close > priorHigh && rangeVolumeValid >= 50:
		return 80
	case last.Close < priorLow && rangeVolumeValid >= 50:
		return 20
	default:
		return Neutral
	}
}

func supportResistanceScore(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) < 20 {
		return Neutral
	}
	bars := frame.Bars
	n := len(bars)
	last := bars[n-1].Close

	nearestSupport, nearestResistance := last, last
	foundSupport, foundResistance := false, false
	for i := n - 20; i < n-1; i++ {
		if bars[i].Low < last && (!foundSupport || bars[i].Low > nearestSupport) {
			nearestSupport = bars[i].Low
			foundSupport = true
		}
		if bars[i].High > last && (!foundResistance || bars[i].High < nearestResistance) {
			nearestResistance = bars[i].High
			foundResistance = true
		}
	}
	if !foundSupport || !foundResistance {
		return Neutral
	}
	band := nearestResistance - nearestSupport
	position := SafeRatio(last-nearestSupport, band, 0.5, PriceEpsilon)
	return Clip(position*100, 0, 100, Neutral)
}
