package indicator

import (
	"math"

	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// MarketTrend is the derived qualitative label from spec.md §4.2.e.
type MarketTrend string

const (
	TrendStronglyBullish  MarketTrend = "strongly_bullish"
	TrendBullish          MarketTrend = "bullish"
	TrendNeutral          MarketTrend = "neutral"
	TrendVolatileNeutral  MarketTrend = "volatile_neutral"
	TrendBearish          MarketTrend = "bearish"
	TrendStronglyBearish  MarketTrend = "strongly_bearish"
)

// Sentiment computes the sentiment indicator (spec.md §4.2.e): derives
// enriched features from ticker+OHLCV when raw sentiment fields are absent,
// and combines them into a fear/greed composite.
func Sentiment(view *shaper.SentimentView) Result {
	if view == nil {
		return NeutralResult("no sentiment view")
	}
	base := view.OHLCV[snapshot.Base]
	components := map[string]float64{}
	signals := map[string]SignalState{}
	metadata := map[string]interface{}{}

	priceChangePct := change24h(base, func(b snapshot.Bar) float64 { return b.Close })
	volumeChangePct := volumeChange24h(base)
	volatility := volatility24h(base)

	fundingRate := 0.0
	longShortRatio := 1.0
	if view.SentimentEnriched != nil {
		fundingRate = view.SentimentEnriched.FundingRate
		if view.SentimentEnriched.LongShortRatio > 0 {
			longShortRatio = view.SentimentEnriched.LongShortRatio
		}
	}

	trend := deriveMarketTrend(priceChangePct, volatility)
	metadata["market_trend"] = string(trend)

	fearGreed := fearGreedIndex(priceChangePct, volumeChangePct, volatility, longShortRatio, fundingRate)
	components["price_change_24h"] = Clip(50+priceChangePct*250, 0, 100, Neutral)
	components["volume_change_24h"] = Clip(50+volumeChangePct*100, 0, 100, Neutral)
	components["volatility"] = Clip(100-volatility*500, 0, 100, Neutral)
	components["fear_greed"] = fearGreed

	score := Clip(fearGreed*0.6+components["price_change_24h"]*0.4, 0, 100, Neutral)

	switch {
	case score >= 65:
		signals["sentiment_bias"] = Bullish
	case score <= 35:
		signals["sentiment_bias"] = Bearish
	default:
		signals["sentiment_bias"] = SigNeutral
	}

	return Result{Score: score, Components: components, Signals: signals, Metadata: metadata}
}

func change24h(frame *snapshot.OHLCVFrame, extract func(snapshot.Bar) float64) float64 {
	if frame == nil || len(frame.Bars) < 2 {
		return 0
	}
	bars := frame.Bars
	first, last := extract(bars[0]), extract(bars[len(bars)-1])
	return SafeRatio(last-first, first, 0, PriceEpsilon)
}

func volumeChange24h(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) < 2 {
		return 0
	}
	bars := frame.Bars
	first, last := bars[0].Volume, bars[len(bars)-1].Volume
	return SafeRatio(last-first, first, 0, VolumeEpsilon)
}

func volatility24h(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) == 0 {
		return 0
	}
	bars := frame.Bars
	ranges := make([]float64, len(bars))
	mean := 0.0
	for i, b := range bars {
		ranges[i] = SafeRatio(b.High-b.Low, b.Close, 0, PriceEpsilon)
		mean += ranges[i]
	}
	mean /= float64(len(ranges))
	variance := 0.0
	for _, r := range ranges {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(ranges))
	return math.Sqrt(variance)
}

func deriveMarketTrend(priceChangePct, volatility float64) MarketTrend {
	switch {
	case priceChangePct > 0.10:
		return TrendStronglyBullish
	case priceChangePct > 0.03:
		return TrendBullish
	case priceChangePct < -0.10:
		return TrendStronglyBearish
	case priceChangePct < -0.03:
		return TrendBearish
	case volatility > 0.05:
		return TrendVolatileNeutral
	default:
		return TrendNeutral
	}
}

// fearGreedIndex combines price/volume change, volatility, long/short ratio,
// and funding rate into a composite [0,100] with documented coefficients
// (spec.md §4.2.e).
func fearGreedIndex(priceChangePct, volumeChangePct, volatility, longShortRatio, fundingRate float64) float64 {
	priceComponent := Clip(50+priceChangePct*300, 0, 100, Neutral)
	volumeComponent := Clip(50+volumeChangePct*80, 0, 100, Neutral)
	volComponent := Clip(100-volatility*600, 0, 100, Neutral)
	lsComponent := Clip(50+(longShortRatio-1)*25, 0, 100, Neutral)
	fundingComponent := Clip(50-fundingRate*2000, 0, 100, Neutral)

	weighted := priceComponent*0.30 + volumeComponent*0.15 + volComponent*0.15 + lsComponent*0.20 + fundingComponent*0.20
	return Clip(weighted, 0, 100, Neutral)
}
