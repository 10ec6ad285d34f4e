package provider

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/quorumtrade/confluence/internal/snapshot"
)

// DemoSupplier is a SnapshotSupplier that synthesizes a random-walk market
// for cmd/confluence's `run` command when no real data source is wired; it
// is paced by a token-bucket limiter rather than by the demo source's own
// throughput, the way the teacher would rate-limit a real REST provider
// (SPEC_FULL.md §6).
type DemoSupplier struct {
	name    string
	limiter *rate.Limiter
	rng     *rand.Rand

	mu    sync.Mutex
	price map[string]float64
}

// NewDemoSupplier builds a DemoSupplier pacing snapshot generation to ratePerSecond.
func NewDemoSupplier(ratePerSecond float64) *DemoSupplier {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &DemoSupplier{
		name:    "demo",
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		rng:     rand.New(rand.NewSource(1)),
		price:   make(map[string]float64),
	}
}

// Name implements SnapshotSupplier.
func (d *DemoSupplier) Name() string { return d.name }

// Health implements SnapshotSupplier; the demo source is always healthy.
func (d *DemoSupplier) Health() SupplierHealth {
	return SupplierHealth{Healthy: true, Status: "synthetic", LastCheck: time.Now(), SuccessRate: 1.0}
}

// Supply waits for the rate limiter, then builds a synthetic snapshot
// around a per-symbol random-walk price.
func (d *DemoSupplier) Supply(ctx context.Context, symbol string) (*snapshot.MarketSnapshot, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	d.mu.Lock()
	base, ok := d.price[symbol]
	if !ok {
		base = 100 + d.rng.Float64()*900
	}
	base = math.Max(1, base*(1+(d.rng.Float64()-0.5)*0.01))
	d.price[symbol] = base
	rng := d.rng
	d.mu.Unlock()

	now := time.Now().UnixMilli()
	frames := map[string]*snapshot.OHLCVFrame{
		"base": syntheticFrame(rng, base, 60, now, 1_000),
		"ltf":  syntheticFrame(rng, base, 60, now, 5*60_000),
		"mtf":  syntheticFrame(rng, base, 60, now, 60*60_000),
		"htf":  syntheticFrame(rng, base, 60, now, 4*60*60_000),
	}

	spread := base * 0.0005
	book := &snapshot.OrderBook{TimestampMs: now}
	for i := 0; i < 10; i++ {
		book.Bids = append(book.Bids, snapshot.PriceLevel{Price: base - spread - float64(i)*spread, Size: 1 + rng.Float64()*10})
		book.Asks = append(book.Asks, snapshot.PriceLevel{Price: base + spread + float64(i)*spread, Size: 1 + rng.Float64()*10})
	}

	var trades []snapshot.Trade
	for i := 0; i < 20; i++ {
		side := snapshot.SideBuy
		if rng.Float64() < 0.5 {
			side = snapshot.SideSell
		}
		trades = append(trades, snapshot.Trade{
			ID:    symbol + "-" + time.Now().Format("150405.000000"),
			Price: base + (rng.Float64()-0.5)*spread*2,
			Size:  rng.Float64() * 5,
			Side:  side,
			TsMs:  now - int64(i*500),
		})
	}

	funding := (rng.Float64() - 0.5) * 0.001
	oiCurrent := 1_000_000 + rng.Float64()*200_000
	oiPrevious := oiCurrent * (1 + (rng.Float64()-0.5)*0.05)

	return &snapshot.MarketSnapshot{
		Symbol:      symbol,
		Exchange:    "demo",
		TimestampMs: now,
		OHLCV:       frames,
		OrderBook:   book,
		Trades:      trades,
		Ticker: &snapshot.Ticker{
			Last:        base,
			Bid:         base - spread,
			Ask:         base + spread,
			High:        base * 1.02,
			Low:         base * 0.98,
			Volume:      10_000 + rng.Float64()*5_000,
			FundingRate: &funding,
		},
		OpenInterest: &snapshot.OpenInterest{Current: oiCurrent, Previous: oiPrevious, TimestampMs: now},
		Sentiment: &snapshot.Sentiment{
			FundingRate:    funding,
			LongShortRatio: 0.8 + rng.Float64()*0.4,
		},
	}, nil
}

func syntheticFrame(rng *rand.Rand, base float64, n int, nowMs int64, stepMs int64) *snapshot.OHLCVFrame {
	bars := make([]snapshot.Bar, n)
	price := base * (1 - float64(n)*0.0005)
	for i := 0; i < n; i++ {
		open := price
		price = math.Max(0.01, price*(1+(rng.Float64()-0.5)*0.01))
		high := math.Max(open, price) * (1 + rng.Float64()*0.002)
		low := math.Min(open, price) * (1 - rng.Float64()*0.002)
		bars[i] = snapshot.Bar{
			TsMs:   nowMs - int64(n-1-i)*stepMs,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  price,
			Volume: 10 + rng.Float64()*100,
		}
	}
	return &snapshot.OHLCVFrame{Bars: bars}
}
