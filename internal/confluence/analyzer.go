package confluence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/quorumtrade/confluence/internal/cache"
	"github.com/quorumtrade/confluence/internal/indicator"
	"github.com/quorumtrade/confluence/internal/shaper"
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// Budgets holds the soft per-indicator and hard overall timeouts from
// spec.md §5.
type Budgets struct {
	PerIndicatorSoft time.Duration // default 1s
	AnalysisHard     time.Duration // default 5s
}

// DefaultBudgets returns spec.md §5's documented defaults.
func DefaultBudgets() Budgets {
	return Budgets{PerIndicatorSoft: time.Second, AnalysisHard: 5 * time.Second}
}

// Config bundles everything the analyzer needs beyond the snapshot itself.
type Config struct {
	Weights         Weights
	OrderbookWeights map[string]float64
	Orderflow       indicator.OrderflowConfig
	Budgets         Budgets
	CacheCapacity   int
	CacheTTL        time.Duration
}

// DefaultConfig returns spec.md defaults for every knob.
func DefaultConfig() Config {
	return Config{
		Weights:          DefaultWeights(),
		OrderbookWeights: indicator.DefaultOrderbookWeights(),
		Orderflow:        indicator.DefaultOrderflowConfig(),
		Budgets:          DefaultBudgets(),
		CacheCapacity:    256,
		CacheTTL:         30 * time.Second,
	}
}

// perSymbolState is the cross-snapshot state the analyzer keeps per symbol:
// the orderbook absorption/exhaustion comparison point and the last valid
// trade price the shaper carries between snapshots (spec.md §5 "no global mutable state outside the
// tracker file and the dedup table" — this is process-local bookkeeping the
// analyzer itself owns, not shared outside it).
type perSymbolState struct {
	mu            sync.Mutex
	obPrev        *indicator.OrderbookPrevState
	lastValidTick float64
}

// Analyzer is C3.
type Analyzer struct {
	shaper *shaper.Shaper
	cfg    Config
	log    zerolog.Logger
	mon    *indicator.OrderflowMonitor

	symbolsMu sync.Mutex
	symbols   map[string]*perSymbolState
}

// New builds an Analyzer.
func New(sh *shaper.Shaper, cfg Config, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		shaper:  sh,
		cfg:     cfg,
		log:     log,
		mon:     indicator.NewOrderflowMonitor(func(op string, dur time.Duration) { log.Warn().Str("op", op).Dur("duration", dur).Msg("orderflow sub-score exceeded 100ms") }),
		symbols: make(map[string]*perSymbolState),
	}
}

func (a *Analyzer) stateFor(symbol string) *perSymbolState {
	a.symbolsMu.Lock()
	defer a.symbolsMu.Unlock()
	st, ok := a.symbols[symbol]
	if !ok {
		st = &perSymbolState{}
		a.symbols[symbol] = st
	}
	return st
}

// Analyze implements C3's contract: analyze(snapshot) -> FusionResult.
// Individual indicator failures (timeout, panic-recovered internal error)
// are excluded from fusion rather than propagated, per spec.md §4.3.
func (a *Analyzer) Analyze(ctx context.Context, snap *snapshot.MarketSnapshot) FusionResult {
	result := FusionResult{Symbol: snap.Symbol, TimestampMs: snap.TimestampMs, Components: map[string]indicator.Result{}}

	if err := a.shaper.ValidateTop(snap); err != nil {
		a.log.Warn().Err(err).Str("symbol", snap.Symbol).Msg("snapshot rejected at top-level validation")
		result.Score = indicator.Neutral
		result.Consensus = 1
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Budgets.AnalysisHard)
	defer cancel()

	snapCache := cache.New(a.cfg.CacheCapacity, a.cfg.CacheTTL)
	st := a.stateFor(snap.Symbol)

	type outcome struct {
		name   string
		result indicator.Result
		dur    time.Duration
		err    error
	}
	outcomes := make(chan outcome, len(shaper.AllKinds))

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range shaper.AllKinds {
		kind := kind
		g.Go(func() error {
			indicatorCtx, icancel := context.WithTimeout(gctx, a.cfg.Budgets.PerIndicatorSoft)
			defer icancel()

			done := make(chan indicator.Result, 1)
			failed := make(chan error, 1)
			start := time.Now()
			go func() {
				defer func() {
					if rec := recover(); rec != nil {
						failed <- fmt.Errorf("indicator %s panicked: %v", kind, rec)
					}
				}()
				done <- a.runIndicator(kind, snap, snapCache, st)
			}()

			select {
			case r := <-done:
				outcomes <- outcome{name: kind.String(), result: r, dur: time.Since(start)}
				return nil
			case err := <-failed:
				a.log.Warn().Err(err).Str("indicator", kind.String()).Str("symbol", snap.Symbol).Msg("indicator failed, excluded from fusion")
				outcomes <- outcome{name: kind.String(), err: err, dur: time.Since(start)}
				return nil
			case <-indicatorCtx.Done():
				a.log.Warn().Str("indicator", kind.String()).Str("symbol", snap.Symbol).Msg("indicator soft budget exceeded, excluded from fusion")
				outcomes <- outcome{name: kind.String(), err: indicatorCtx.Err(), dur: time.Since(start)}
				return nil
			}
		})
	}
	_ = g.Wait()
	close(outcomes)

	scores := map[string]float64{}
	timings := map[string]time.Duration{}
	completed := 0
	for o := range outcomes {
		timings[o.name] = o.dur
		if o.err != nil {
			continue
		}
		completed++
		result.Components[o.name] = o.result
		scores[o.name] = o.result.Score
	}
	result.Timings = timings

	if len(scores) == 0 {
		result.Score = indicator.Neutral
		result.Consensus = 1
		return result
	}

	scoreRaw, disagreement, consensus, confidence, score, _ := Fuse(scores, a.cfg.Weights)
	result.ScoreRaw = scoreRaw
	result.Disagreement = disagreement
	result.Consensus = consensus
	result.Confidence = confidence
	result.Score = score
	result.Reliability = float64(completed) / float64(len(shaper.AllKinds))

	return result
}

func (a *Analyzer) runIndicator(kind shaper.IndicatorKind, snap *snapshot.MarketSnapshot, snapCache *cache.Cache, st *perSymbolState) indicator.Result {
	switch kind {
	case shaper.Technical:
		return indicator.Technical(a.shaper.PrepareTechnical(snap))
	case shaper.Volume:
		st.mu.Lock()
		defer st.mu.Unlock()
		return indicator.Volume(a.shaper.PrepareVolume(snap, &st.lastValidTick))
	case shaper.Orderbook:
		st.mu.Lock()
		defer st.mu.Unlock()
		view := a.shaper.PrepareOrderbook(snap, &st.lastValidTick)
		r, next := indicator.Orderbook(view, a.cfg.OrderbookWeights, st.obPrev)
		st.obPrev = next
		return r
	case shaper.Orderflow:
		st.mu.Lock()
		defer st.mu.Unlock()
		view := a.shaper.PrepareOrderflow(snap, &st.lastValidTick)
		return indicator.Orderflow(view, a.cfg.Orderflow, a.mon)
	case shaper.Sentiment:
		return indicator.Sentiment(a.shaper.PrepareSentiment(snap))
	case shaper.PriceStructure:
		st.mu.Lock()
		defer st.mu.Unlock()
		view := a.shaper.PrepareVolume(snap, &st.lastValidTick)
		volResult := indicator.Volume(view)
		psView := a.shaper.PreparePriceStructure(snap)
		return indicator.PriceStructure(psView, volResult.Components["range_volume_valid"])
	default:
		return indicator.NeutralResult("unknown indicator kind")
	}
}
