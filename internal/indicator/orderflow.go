package indicator

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// OpenInterestThresholds configures the four-scenario OI classifier
// (spec.md §4.2.d).
type OpenInterestThresholds struct {
	MinimalChange     float64 // default 0.02
	PriceDirection    float64 // default 0.01
	OISaturation      float64 // default 2.0
	PriceSaturation   float64 // default 1.0
}

// DefaultOpenInterestThresholds returns the spec.md §4.2.d defaults.
func DefaultOpenInterestThresholds() OpenInterestThresholds {
	return OpenInterestThresholds{MinimalChange: 0.02, PriceDirection: 0.01, OISaturation: 2.0, PriceSaturation: 1.0}
}

// OrderflowConfig bundles the configurable knobs spec.md §6 enumerates for
// the orderflow indicator.
type OrderflowConfig struct {
	CVDSaturationThreshold float64 // default 0.15
	OI                     OpenInterestThresholds
	SubWeights             map[string]float64
}

// DefaultOrderflowConfig returns spec.md defaults.
func DefaultOrderflowConfig() OrderflowConfig {
	return OrderflowConfig{
		CVDSaturationThreshold: 0.15,
		OI:                     DefaultOpenInterestThresholds(),
		SubWeights: map[string]float64{
			"cvd": 0.30, "open_interest": 0.20, "trade_flow": 0.15,
			"trades_imbalance": 0.15, "trades_pressure": 0.10, "liquidity": 0.05, "liquidity_zones": 0.05,
		},
	}
}

// PerfStats is the orderflow indicator's exposed performance-metrics map
// (spec.md §4.2.d "get_performance_metrics"), keyed by sub-score name.
type PerfStats struct {
	Count int64
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean duration, zero if Count is zero.
func (p PerfStats) Avg() time.Duration {
	if p.Count == 0 {
		return 0
	}
	return p.Total / time.Duration(p.Count)
}

// OrderflowMonitor accumulates per-operation timing across calls to
// Orderflow; safe for concurrent use since the analyzer may run several
// symbols' orderflow indicators concurrently sharing warnings plumbing
// through a single process-wide monitor instance is optional — callers
// typically keep one per process, not per snapshot.
type OrderflowMonitor struct {
	mu    sync.Mutex
	stats map[string]PerfStats
	warn  func(op string, dur time.Duration)
}

// NewOrderflowMonitor builds a monitor; warn is invoked (if non-nil) for any
// operation exceeding 100ms per spec.md §4.2.d.
func NewOrderflowMonitor(warn func(op string, dur time.Duration)) *OrderflowMonitor {
	return &OrderflowMonitor{stats: make(map[string]PerfStats), warn: warn}
}

func (m *OrderflowMonitor) record(op string, dur time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats[op]
	s.Count++
	s.Total += dur
	if s.Min == 0 || dur < s.Min {
		s.Min = dur
	}
	if dur > s.Max {
		s.Max = dur
	}
	m.stats[op] = s
	if dur > 100*time.Millisecond && m.warn != nil {
		m.warn(op, dur)
	}
}

// GetPerformanceMetrics returns a snapshot of the accumulated stats.
func (m *OrderflowMonitor) GetPerformanceMetrics() map[string]PerfStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]PerfStats, len(m.stats))
	for k, v := range m.stats {
		out[k] = v
	}
	return out
}

func (m *OrderflowMonitor) timed(op string, fn func() float64) float64 {
	start := time.Now()
	v := fn()
	if m != nil {
		m.record(op, time.Since(start))
	}
	return v
}

// Orderflow computes the orderflow indicator (spec.md §4.2.d): tick-rule
// classified CVD, open-interest scenario scoring, and trade-flow/pressure/
// liquidity sub-scores, combined by configured weights. mon may be nil.
func Orderflow(view *shaper.OrderflowView, cfg OrderflowConfig, mon *OrderflowMonitor) Result {
	if view == nil {
		return NeutralResult("no orderflow view")
	}
	components := map[string]float64{}
	signals := map[string]SignalState{}
	metadata := map[string]interface{}{}

	if share, warn := shaper.UnknownShareWarning(view.ProcessedTrades); warn {
		metadata["unknown_share_warning"] = share
	}

	components["cvd"] = mon.timed("cvd", func() float64 {
		return cvdScore(view.ProcessedTrades, cfg.CVDSaturationThreshold)
	})

	baseFrame := view.OHLCV[snapshot.Base]
	components["open_interest"] = mon.timed("open_interest", func() float64 {
		return openInterestScore(view.OpenInterest, baseFrame, cfg.OI)
	})

	components["trade_flow"] = mon.timed("trade_flow", func() float64 { return tradeFlowScore(view.ProcessedTrades) })
	components["trades_imbalance"] = mon.timed("trades_imbalance", func() float64 { return tradesImbalanceScore(view.ProcessedTrades) })
	components["trades_pressure"] = mon.timed("trades_pressure", func() float64 { return tradesPressureScore(view.ProcessedTrades) })
	components["liquidity"] = mon.timed("liquidity", func() float64 { return liquidityScore(view.ProcessedTrades) })
	components["liquidity_zones"] = mon.timed("liquidity_zones", func() float64 { return liquidityZonesScore(view.ProcessedTrades) })

	weights := cfg.SubWeights
	if weights == nil {
		weights = DefaultOrderflowConfig().SubWeights
	}
	score, totalW := 0.0, 0.0
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
		signals["flow_bias"] = Bullish
	case score <= 40:
		signals["flow_bias"] = Bearish
	default:
		signals["flow_bias"] = SigNeutral
	}

	return Result{Score: score, Components: components, Signals: signals, Metadata: metadata}
}

// cvdScore computes cumulative volume delta and maps its ratio to [0,100]
// using shopspring/decimal for the ratio step to avoid float precision loss
// on very large volumes (spec.md §4.2.d, §9).
func cvdScore(trades []snapshot.Trade, saturation float64) float64 {
	if saturation <= 0 {
		saturation = 0.15
	}
	cvd := decimal.Zero
	totalVolume := decimal.Zero
	for _, t := range trades {
		size := decimal.NewFromFloat(t.Size)
		switch t.Side {
		case snapshot.SideBuy:
			cvd = cvd.Add(size)
		case snapshot.SideSell:
			cvd = cvd.Sub(size)
		}
		totalVolume = totalVolume.Add(size.Abs())
	}

	totalVolumeF, _ := totalVolume.Float64()
	if totalVolumeF < VolumeEpsilon {
		return Neutral
	}
	cvdF, _ := cvd.Float64()
	if math.Abs(cvdF) > MaxCVDValue {
		return Neutral
	}

	cvdPct := decimalRatio(cvd, totalVolume)
	cvdPct = Clip(cvdPct, -1, 1, 0)

	// tanh-like saturation mapping: cvdPct == saturation -> maximal strength.
	normalized := Clip(cvdPct/saturation, -1, 1, 0)
	return Clip(50+50*normalized, 0, 100, Neutral)
}

// decimalRatio divides n by d using fixed-decimal arithmetic, returning 0
// when d is effectively zero.
func decimalRatio(n, d decimal.Decimal) float64 {
	if d.Abs().LessThan(decimal.NewFromFloat(VolumeEpsilon)) {
		return 0
	}
	ratio, _ := n.DivRound(d, 12).Float64()
	return ratio
}

// openInterestScore applies the four-scenario classifier from spec.md §4.2.d.
func openInterestScore(oi *snapshot.OpenInterest, base *snapshot.OHLCVFrame, th OpenInterestThresholds) float64 {
	if oi == nil {
		return Neutral
	}
	if base == nil || len(base.Bars) < 2 {
		return Neutral
	}

	previous := decimal.NewFromFloat(oi.Previous)
	current := decimal.NewFromFloat(oi.Current)
	oiEps := decimal.NewFromFloat(OIEpsilon)
	denom := previous
	if denom.Abs().LessThan(oiEps) {
		denom = oiEps
	}
	oiChangeRatio, _ := current.Sub(previous).DivRound(denom, 12).Float64()
	oiChangePct := Clip(oiChangeRatio*100, -500, 500, 0)

	n := len(base.Bars)
	priceChangePct := SafeRatio(base.Bars[n-1].Close-base.Bars[n-2].Close, base.Bars[n-2].Close, 0, PriceEpsilon) * 100

	oiUp := oiChangePct/100 > th.MinimalChange
	oiDown := oiChangePct/100 < -th.MinimalChange
	priceUp := priceChangePct/100 > th.PriceDirection
	priceDown := priceChangePct/100 < -th.PriceDirection

	oiStrength := Clip(math.Abs(oiChangePct/100)/th.OISaturation, 0, 1, 0)
	priceStrength := Clip(math.Abs(priceChangePct/100)/th.PriceSaturation, 0, 1, 0)
	strength := (oiStrength + priceStrength) / 2

	switch {
	case oiUp && priceUp:
		return Clip(65+strength*35, 0, 100, Neutral) // scenario 1: buildup, bullish
	case oiDown && priceUp:
		return Clip(35-strength*35, 0, 100, Neutral) // scenario 2: short covering, bearish
	case oiUp && priceDown:
		return Clip(35-strength*35, 0, 100, Neutral) // scenario 3: new shorts, bearish
	case oiDown && priceDown:
		return Clip(65+strength*35, 0, 100, Neutral) // scenario 4: long liquidation exhaustion, bullish
	default:
		return Neutral
	}
}

func tradeFlowScore(trades []snapshot.Trade) float64 {
	if len(trades) == 0 {
		return Neutral
	}
	n := len(trades)
	weighted, totalW := 0.0, 0.0
	for i, t := range trades {
		// linear recency decay: most recent trade weighs most.
		w := float64(i+1) / float64(n)
		switch t.Side {
		case snapshot.SideBuy:
			weighted += t.Size * w
		case snapshot.SideSell:
			weighted -= t.Size * w
		}
		totalW += t.Size * w
	}
	ratio := SafeRatio(weighted, totalW, 0, VolumeEpsilon)
	return Clip(50+ratio*50, 0, 100, Neutral)
}

func tradesImbalanceScore(trades []snapshot.Trade) float64 {
	buy, sell := 0.0, 0.0
	for _, t := range trades {
		switch t.Side {
		case snapshot.SideBuy:
			buy++
		case snapshot.SideSell:
			sell++
		}
	}
	ratio := SafeRatio(buy-sell, buy+sell, 0, GeneralEpsilon)
	return Clip(50+ratio*50, 0, 100, Neutral)
}

func tradesPressureScore(trades []snapshot.Trade) float64 {
	if len(trades) < 2 {
		return Neutral
	}
	span := trades[len(trades)-1].TsMs - trades[0].TsMs
	if span <= 0 {
		return Neutral
	}
	tps := float64(len(trades)) / (float64(span) / 1000.0)
	return Clip(tps*10, 0, 100, Neutral)
}

func liquidityScore(trades []snapshot.Trade) float64 {
	if len(trades) < 2 {
		return Neutral
	}
	span := trades[len(trades)-1].TsMs - trades[0].TsMs
	if span <= 0 {
		return Neutral
	}
	volume := 0.0
	for _, t := range trades {
		volume += t.Size
	}
	tradesPerSec := float64(len(trades)) / (float64(span) / 1000.0)
	volumeSaturation := SafeRatio(volume, float64(len(trades)), 0, VolumeEpsilon)
	return Clip((tradesPerSec*5+volumeSaturation*2)/2, 0, 100, Neutral)
}

func liquidityZonesScore(trades []snapshot.Trade) float64 {
	if len(trades) < 5 {
		return Neutral
	}
	buckets := map[int64]float64{}
	for _, t := range trades {
		bucket := int64(t.Price / (trades[0].Price*0.001 + 1e-9))
		buckets[bucket] += t.Size
	}
	total := 0.0
	maxBucket := 0.0
	for _, v := range buckets {
		total += v
		if v > maxBucket {
			maxBucket = v
		}
	}
	concentration := SafeRatio(maxBucket, total, 0, VolumeEpsilon)
	// Concentration is the largest 0.1%-wide price bucket's share of traded
	// size; no percentile threshold is applied. Heavy concentration reads as
	// a defended level, scored as bullish-leaning stability rather than
	// directional.
	return Clip(50+concentration*30, 0, 100, Neutral)
}
