package indicator

import (
	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// priceBounds is the ±N band around mid used for depth/impact calculations,
// adapted from the teacher's DepthCalculator default of ±2%.
const priceBounds = 0.02

// Orderbook computes the orderbook indicator (spec.md §4.2.c): imbalance,
// spread, depth, price impact, absorption/exhaustion, and DOM momentum/OBPS
// sub-scores, combined by configured weights. On books thinner than three
// levels per side every sub-score is neutral, except that an empty or
// crossed book still scores spread 0.
func Orderbook(view *shaper.OrderbookView, weights map[string]float64, prevSnapshot *OrderbookPrevState) (Result, *OrderbookPrevState) {
	if view == nil || view.OrderBook == nil {
		return NeutralResult("no orderbook view"), prevSnapshot
	}
	book := view.OrderBook
	components := map[string]float64{}
	signals := map[string]SignalState{}

	thin := len(book.Bids) < 3 || len(book.Asks) < 3

	components["imbalance"] = imbalanceScore(view.Pressure, thin)
	components["spread"] = spreadScore(book, thin)
	components["depth"] = depthScore(book, view.LastPrice, thin)
	components["price_impact"] = priceImpactScore(book, view.LastPrice, thin)

	absorption, exhaustion, nextState := absorptionExhaustion(book, prevSnapshot, thin)
	components["absorption"] = absorption
	components["exhaustion"] = exhaustion

	domMomentum, obps := domMomentumAndOBPS(view.Pressure, thin)
	components["dom_momentum"] = domMomentum
	components["obps"] = obps

	if weights == nil {
		weights = DefaultOrderbookWeights()
	}
	score := 0.0
	totalW := 0.0
	for k, w := range weights {
		if v, ok := components[k]; ok {
			score += v * w
			totalW += w
		}
	}
	if totalW < GeneralEpsilon {
		score = Neutral
	} else {
		score = Clip(score/totalW, 0, 100, Neutral)
	}

	switch {
	case score >= 60:
		signals["book_bias"] = Bullish
	case score <= 40:
		signals["book_bias"] = Bearish
	default:
		signals["book_bias"] = SigNeutral
	}

	return Result{Score: score, Components: components, Signals: signals}, nextState
}

// DefaultOrderbookWeights is the fixed-weight combination from spec.md
// §4.2.c "weights from configuration".
func DefaultOrderbookWeights() map[string]float64 {
	return map[string]float64{
		"imbalance": 0.25, "spread": 0.15, "depth": 0.20,
		"price_impact": 0.15, "absorption": 0.10, "exhaustion": 0.05,
		"dom_momentum": 0.07, "obps": 0.03,
	}
}

func imbalanceScore(p shaper.PressureSummary, thin bool) float64 {
	if thin {
		return Neutral
	}
	return Clip(50+p.Imbalance*50, 0, 100, Neutral)
}

// spreadScore: narrower spread -> higher score; crossed/empty book -> 0.
func spreadScore(book *snapshot.OrderBook, thin bool) float64 {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk || ask.Price <= bid.Price {
		return 0
	}
	if thin {
		return Neutral
	}
	mid := (bid.Price + ask.Price) / 2
	spreadBps := SafeRatio(ask.Price-bid.Price, mid, 0, PriceEpsilon) * 10000
	// 0bps -> 100, 100bps -> 0, clipped.
	return Clip(100-spreadBps, 0, 100, Neutral)
}

func depthScore(book *snapshot.OrderBook, lastPrice float64, thin bool) float64 {
	if thin || lastPrice <= 0 {
		return Neutral
	}
	lowerBound := lastPrice * (1 - priceBounds)
	upperBound := lastPrice * (1 + priceBounds)

	bidDepth, askDepth := 0.0, 0.0
	for _, l := range book.Bids {
		if l.Price < lowerBound {
			break
		}
		bidDepth += l.Price * l.Size
	}
	for _, l := range book.Asks {
		if l.Price > upperBound {
			break
		}
		askDepth += l.Price * l.Size
	}
	total := bidDepth + askDepth
	// Notional within +-2% scales linearly: $200k maps to the neutral 50,
	// $400k or more to 100.
	if total <= 0 {
		return 0
	}
	normalized := Clip(total/200000*50, 0, 100, Neutral)
	return normalized
}

// priceImpactScore estimates slippage to consume 5% of the ask side's total
// notional depth,
// adapted from the teacher's EstimateMarketImpact walk-the-book logic.
func priceImpactScore(book *snapshot.OrderBook, lastPrice float64, thin bool) float64 {
	if thin || lastPrice <= 0 {
		return Neutral
	}
	targetUSD := 0.0
	for _, l := range book.Asks {
		targetUSD += l.Price * l.Size
	}
	targetUSD *= 0.05
	if targetUSD <= 0 {
		return Neutral
	}

	filled := 0.0
	startPrice := book.Asks[0].Price
	finalPrice := startPrice
	for _, l := range book.Asks {
		levelUSD := l.Price * l.Size
		if filled+levelUSD >= targetUSD {
			finalPrice = l.Price
			filled = targetUSD
			break
		}
		filled += levelUSD
		finalPrice = l.Price
	}
	slippageBps := SafeRatio(finalPrice-startPrice, startPrice, 0, PriceEpsilon) * 10000
	return Clip(100-slippageBps*2, 0, 100, Neutral)
}

// OrderbookPrevState carries the top-of-book snapshot from a prior call so
// absorptionExhaustion can compare size decay between snapshots; the caller
// (confluence.Analyzer) owns its lifetime per symbol across analyses.
type OrderbookPrevState struct {
	BidTopSize float64
	AskTopSize float64
}

func absorptionExhaustion(book *snapshot.OrderBook, prev *OrderbookPrevState, thin bool) (absorption, exhaustion float64, next *OrderbookPrevState) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if thin || !okBid || !okAsk {
		return Neutral, Neutral, prev
	}
	next = &OrderbookPrevState{BidTopSize: bid.Size, AskTopSize: ask.Size}
	if prev == nil {
		return Neutral, Neutral, next
	}
	bidDecay := SafeRatio(prev.BidTopSize-bid.Size, prev.BidTopSize, 0, VolumeEpsilon)
	askDecay := SafeRatio(prev.AskTopSize-ask.Size, prev.AskTopSize, 0, VolumeEpsilon)

	// Large resting size repeatedly refilled after being hit -> absorption.
	absorption = Clip(50+ (0.3-bidDecay)*80, 0, 100, Neutral)
	// Rapidly thinning size -> exhaustion.
	exhaustion = Clip(50+askDecay*80, 0, 100, Neutral)
	return absorption, exhaustion, next
}

func domMomentumAndOBPS(p shaper.PressureSummary, thin bool) (domMomentum, obps float64) {
	if thin {
		return Neutral, Neutral
	}
	domMomentum = Clip(50+p.Imbalance*40, 0, 100, Neutral)
	concDiff := p.BidTopConcFrac - p.AskTopConcFrac
	obps = Clip(50+concDiff*50, 0, 100, Neutral)
	return domMomentum, obps
}
