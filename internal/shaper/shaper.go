// Package shaper implements C1, the data validator and shaper: it turns a
// snapshot.MarketSnapshot into per-indicator views, rejecting or repairing
// structurally invalid inputs per the documented rules.
package shaper

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/quorumtrade/confluence/internal/snapshot"
)

// ErrSnapshotRejected is returned when the top-level structural check on a
// snapshot fails outright (nil snapshot, empty symbol, non-positive
// timestamp, or an empty ohlcv map).
var ErrSnapshotRejected = errors.New("shaper: snapshot rejected")

// IndicatorKind enumerates the six indicator variants C2 dispatches over.
type IndicatorKind int

const (
	Technical IndicatorKind = iota
	Volume
	Orderbook
	Orderflow
	Sentiment
	PriceStructure
)

func (k IndicatorKind) String() string {
	switch k {
	case Technical:
		return "technical"
	case Volume:
		return "volume"
	case Orderbook:
		return "orderbook"
	case Orderflow:
		return "orderflow"
	case Sentiment:
		return "sentiment"
	case PriceStructure:
		return "price_structure"
	default:
		return "unknown"
	}
}

// AllKinds lists the six indicator kinds in the order the analyzer
// dispatches them.
var AllKinds = []IndicatorKind{Technical, Volume, Orderbook, Orderflow, Sentiment, PriceStructure}

// Config controls shaper behavior; all fields have sane zero-value-safe
// defaults applied by New.
type Config struct {
	// MinCandles is the minimum bar count a frame needs to pass the frame
	// check; indicator-specific minimums may override this.
	MinCandles int
	// IntervalToTag maps exchange-native interval labels to canonical tags.
	IntervalToTag map[string]snapshot.Timeframe
}

// DefaultIntervalToTag is the explicit mapping table from spec.md §4.1 rule 3.
func DefaultIntervalToTag() map[string]snapshot.Timeframe {
	return map[string]snapshot.Timeframe{
		"1": snapshot.Base, "1m": snapshot.Base,
		"5": snapshot.LTF, "5m": snapshot.LTF,
		"30": snapshot.MTF, "30m": snapshot.MTF, "60": snapshot.MTF, "1h": snapshot.MTF, "120": snapshot.MTF, "180": snapshot.MTF,
		"240": snapshot.HTF, "4h": snapshot.HTF, "360": snapshot.HTF, "720": snapshot.HTF, "1440": snapshot.HTF, "1d": snapshot.HTF,
	}
}

// Shaper is C1: stateless beyond its configuration, safe for concurrent use.
type Shaper struct {
	cfg Config
	log zerolog.Logger
}

// New builds a Shaper. A zero Config gets spec defaults filled in.
func New(cfg Config, log zerolog.Logger) *Shaper {
	if cfg.MinCandles <= 0 {
		cfg.MinCandles = 20
	}
	if cfg.IntervalToTag == nil {
		cfg.IntervalToTag = DefaultIntervalToTag()
	}
	return &Shaper{cfg: cfg, log: log}
}

// ValidateTop applies the top-level structural check (spec.md §4.1 rule 1-2):
// a snapshot failing this check is rejected outright, not merely for one
// indicator.
func (s *Shaper) ValidateTop(snap *snapshot.MarketSnapshot) error {
	if snap == nil {
		return fmt.Errorf("%w: nil snapshot", ErrSnapshotRejected)
	}
	if strings.TrimSpace(snap.Symbol) == "" {
		return fmt.Errorf("%w: empty symbol", ErrSnapshotRejected)
	}
	if snap.TimestampMs <= 0 {
		return fmt.Errorf("%w: non-positive timestamp", ErrSnapshotRejected)
	}
	if len(snap.OHLCV) == 0 {
		return fmt.Errorf("%w: no ohlcv data", ErrSnapshotRejected)
	}
	return nil
}

// StandardizedFrames resolves every incoming ohlcv tag to one of the four
// canonical timeframes, applies the frame check (column completeness, NaN
// repair, minimum row count), and returns only the frames that pass.
// Unresolvable labels fall back to a numeric-prefix min/max bucket heuristic.
func (s *Shaper) StandardizedFrames(snap *snapshot.MarketSnapshot, minCandles int) map[snapshot.Timeframe]*snapshot.OHLCVFrame {
	if minCandles <= 0 {
		minCandles = s.cfg.MinCandles
	}
	out := make(map[snapshot.Timeframe]*snapshot.OHLCVFrame, 4)
	for label, frame := range snap.OHLCV {
		tag, ok := s.resolveTag(label)
		if !ok {
			continue
		}
		if _, exists := out[tag]; exists {
			// Collisions keep the first non-empty frame.
			continue
		}
		cleaned, ok := s.frameCheck(frame, minCandles)
		if !ok {
			continue
		}
		out[tag] = cleaned
	}
	return out
}

var numericPrefix = regexp.MustCompile(`\d+`)

// resolveTag maps an exchange-native interval label to a canonical tag,
// falling back to a numeric-prefix heuristic for unrecognized labels.
func (s *Shaper) resolveTag(label string) (snapshot.Timeframe, bool) {
	if tag, ok := s.cfg.IntervalToTag[strings.ToLower(label)]; ok {
		return tag, true
	}
	for _, tf := range snapshot.AllTimeframes {
		if strings.EqualFold(label, string(tf)) {
			return tf, true
		}
	}
	match := numericPrefix.FindString(label)
	if match == "" {
		return "", false
	}
	var minutes int
	fmt.Sscanf(match, "%d", &minutes)
	switch {
	case minutes <= 1:
		return snapshot.Base, true
	case minutes <= 5:
		return snapshot.LTF, true
	case minutes <= 180:
		return snapshot.MTF, true
	default:
		return snapshot.HTF, true
	}
}

// frameCheck validates column completeness and bar ordering, repairing
// sparse NaN runs by forward-then-backward fill. Returns ok=false when the
// frame must be dropped.
func (s *Shaper) frameCheck(frame *snapshot.OHLCVFrame, minCandles int) (*snapshot.OHLCVFrame, bool) {
	if frame == nil || len(frame.Bars) < minCandles {
		return nil, false
	}
	bars := make([]snapshot.Bar, len(frame.Bars))
	copy(bars, frame.Bars)

	for i := 1; i < len(bars); i++ {
		if bars[i].TsMs <= bars[i-1].TsMs {
			return nil, false
		}
	}

	if !repairColumn(bars, func(b *snapshot.Bar) *float64 { return &b.Open }) {
		return nil, false
	}
	if !repairColumn(bars, func(b *snapshot.Bar) *float64 { return &b.High }) {
		return nil, false
	}
	if !repairColumn(bars, func(b *snapshot.Bar) *float64 { return &b.Low }) {
		return nil, false
	}
	if !repairColumn(bars, func(b *snapshot.Bar) *float64 { return &b.Close }) {
		return nil, false
	}
	if !repairColumn(bars, func(b *snapshot.Bar) *float64 { return &b.Volume }) {
		return nil, false
	}

	return &snapshot.OHLCVFrame{Bars: bars}, true
}

// repairColumn forward-then-backward fills NaNs in one column when they are
// under 10% of the rows; otherwise reports the column (and thus the frame)
// unrecoverable.
func repairColumn(bars []snapshot.Bar, get func(*snapshot.Bar) *float64) bool {
	n := len(bars)
	nanCount := 0
	for i := range bars {
		if math.IsNaN(*get(&bars[i])) {
			nanCount++
		}
	}
	if nanCount == 0 {
		return true
	}
	if nanCount == n {
		return false
	}
	if float64(nanCount)/float64(n) >= 0.10 {
		return false
	}
	var last float64
	haveLast := false
	for i := range bars {
		v := get(&bars[i])
		if math.IsNaN(*v) {
			if haveLast {
				*v = last
			}
			continue
		}
		last = *v
		haveLast = true
	}
	var next float64
	haveNext := false
	for i := n - 1; i >= 0; i-- {
		v := get(&bars[i])
		if math.IsNaN(*v) {
			if haveNext {
				*v = next
			}
			continue
		}
		next = *v
		haveNext = true
	}
	return true
}

// derivationFallback is the documented fallback order (spec.md §4.1 rule 4)
// used when a required timeframe tag is missing after tag resolution: the
// missing tag copies the first available tag in its list, finer-grained
// tags (nearest first) ahead of coarser ones.
var derivationFallback = map[snapshot.Timeframe][]snapshot.Timeframe{
	snapshot.Base: {snapshot.LTF, snapshot.MTF, snapshot.HTF},
	snapshot.LTF:  {snapshot.Base, snapshot.MTF, snapshot.HTF},
	snapshot.MTF:  {snapshot.LTF, snapshot.Base, snapshot.HTF},
	snapshot.HTF:  {snapshot.MTF, snapshot.LTF, snapshot.Base},
}

// DeriveMissing fills in any of the four tags absent from frames by walking
// the documented fallback order; a tag that cannot be derived at all gets an
// empty-columns placeholder so downstream bounds checks stay safe.
func (s *Shaper) DeriveMissing(frames map[snapshot.Timeframe]*snapshot.OHLCVFrame) map[snapshot.Timeframe]*snapshot.OHLCVFrame {
	out := make(map[snapshot.Timeframe]*snapshot.OHLCVFrame, 4)
	for tag, frame := range frames {
		out[tag] = frame
	}
	for _, tag := range snapshot.AllTimeframes {
		if _, ok := out[tag]; ok {
			continue
		}
		derived := false
		for _, candidate := range derivationFallback[tag] {
			if src, ok := out[candidate]; ok && src.Len() > 0 {
				s.log.Debug().Str("missing_tag", string(tag)).Str("derived_from", string(candidate)).Msg("derived timeframe via fallback chain")
				out[tag] = src
				derived = true
				break
			}
		}
		if !derived {
			out[tag] = &snapshot.OHLCVFrame{Bars: nil}
		}
	}
	return out
}

// CleanOrderBook validates and repairs an order book per spec.md §4.1 rule 5.
func (s *Shaper) CleanOrderBook(snap *snapshot.MarketSnapshot) *snapshot.OrderBook {
	if snap.OrderBook == nil {
		return nil
	}
	clean := &snapshot.OrderBook{TimestampMs: snap.OrderBook.TimestampMs}
	if clean.TimestampMs <= 0 {
		clean.TimestampMs = snap.TimestampMs
	}
	for _, lvl := range snap.OrderBook.Bids {
		if lvl.Price >= 0 && lvl.Size >= 0 && !math.IsNaN(lvl.Price) && !math.IsNaN(lvl.Size) {
			clean.Bids = append(clean.Bids, lvl)
		}
	}
	for _, lvl := range snap.OrderBook.Asks {
		if lvl.Price >= 0 && lvl.Size >= 0 && !math.IsNaN(lvl.Price) && !math.IsNaN(lvl.Size) {
			clean.Asks = append(clean.Asks, lvl)
		}
	}
	return clean
}

// CleanTrades repairs missing side/price/ts_ms per spec.md §4.1 rule 6.
// lastValidPrice is the caller's running last-known-good price (repair
// priority 4); it is updated in place as trades are processed in order.
func (s *Shaper) CleanTrades(snap *snapshot.MarketSnapshot, ticker *snapshot.Ticker, lastClose float64, lastValidPrice *float64) []snapshot.Trade {
	out := make([]snapshot.Trade, 0, len(snap.Trades))
	for _, tr := range snap.Trades {
		if tr.Side == "" {
			tr.Side = snapshot.SideUnknown
		}
		if tr.Price <= 0 || math.IsNaN(tr.Price) {
			repaired, ok := repairTradePrice(ticker, lastClose, *lastValidPrice)
			if !ok {
				continue
			}
			tr.Price = repaired
		}
		*lastValidPrice = tr.Price
		if tr.TsMs <= 0 {
			tr.TsMs = snap.TimestampMs
		}
		out = append(out, tr)
	}
	return out
}

func repairTradePrice(ticker *snapshot.Ticker, lastClose, lastValid float64) (float64, bool) {
	if ticker != nil && ticker.Last > 0 {
		return ticker.Last, true
	}
	if lastClose > 0 {
		return lastClose, true
	}
	if lastValid > 0 {
		return lastValid, true
	}
	return 0, false
}

// ApplyTickRule reclassifies unknown-side trades by comparing consecutive
// prices in time order (spec.md §4.2.d). Trades are expected already sorted
// by TsMs; this is pure and does not mutate the input slice's order.
func ApplyTickRule(trades []snapshot.Trade) []snapshot.Trade {
	out := make([]snapshot.Trade, len(trades))
	copy(out, trades)

	lastKnownPrice := 0.0
	haveLast := false
	for i := range out {
		if !haveLast {
			lastKnownPrice = out[i].Price
			haveLast = true
			continue
		}
		if out[i].Side == snapshot.SideUnknown {
			switch {
			case out[i].Price > lastKnownPrice:
				out[i].Side = snapshot.SideBuy
			case out[i].Price < lastKnownPrice:
				out[i].Side = snapshot.SideSell
			}
		}
		lastKnownPrice = out[i].Price
	}
	return out
}

// UnknownShareWarning reports whether the unknown-side share after
// reclassification exceeds the 10% diagnostic threshold from spec.md §4.2.d.
func UnknownShareWarning(trades []snapshot.Trade) (share float64, warn bool) {
	if len(trades) == 0 {
		return 0, false
	}
	unknown := 0
	for _, t := range trades {
		if t.Side == snapshot.SideUnknown {
			unknown++
		}
	}
	share = float64(unknown) / float64(len(trades))
	return share, share > 0.10
}

// SnapshotTime converts a snapshot's millisecond timestamp to a time.Time,
// used wherever views need a wall-clock reference.
func SnapshotTime(snap *snapshot.MarketSnapshot) time.Time {
	return time.UnixMilli(snap.TimestampMs)
}
