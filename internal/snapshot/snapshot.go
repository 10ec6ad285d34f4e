// Package snapshot defines the wire data model consumed by the confluence
// pipeline: MarketSnapshot and its nested sub-records.
package snapshot

// Timeframe is one of the four canonical period tags the pipeline uses
// internally regardless of exchange-native interval labels.
type Timeframe string

const (
	Base Timeframe = "base"
	LTF  Timeframe = "ltf"
	MTF  Timeframe = "mtf"
	HTF  Timeframe = "htf"
)

// AllTimeframes lists the four tags in canonical (finest-to-coarsest) order.
var AllTimeframes = []Timeframe{Base, LTF, MTF, HTF}

// Bar is one OHLCV row. Timestamps are monotonic milliseconds.
type Bar struct {
	TsMs   int64   `json:"ts_ms"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// OHLCVFrame is an ordered sequence of bars for one timeframe.
type OHLCVFrame struct {
	Bars []Bar `json:"bars"`
}

// Len returns the number of bars, safe on a nil frame.
func (f *OHLCVFrame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// PriceLevel is one [price, size] entry of an order book side.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook holds both sides of a venue order book at an instant.
// Bids are expected descending in price, asks ascending.
type OrderBook struct {
	Bids        []PriceLevel `json:"bids"`
	Asks        []PriceLevel `json:"asks"`
	TimestampMs int64        `json:"timestamp_ms"`
}

// BestBid returns the best bid level and whether one exists.
func (ob *OrderBook) BestBid() (PriceLevel, bool) {
	if ob == nil || len(ob.Bids) == 0 {
		return PriceLevel{}, false
	}
	return ob.Bids[0], true
}

// BestAsk returns the best ask level and whether one exists.
func (ob *OrderBook) BestAsk() (PriceLevel, bool) {
	if ob == nil || len(ob.Asks) == 0 {
		return PriceLevel{}, false
	}
	return ob.Asks[0], true
}

// Mid returns the order book mid price; valid only when both sides are
// non-empty and the book is not crossed (best ask > best bid).
func (ob *OrderBook) Mid() (float64, bool) {
	bid, okBid := ob.BestBid()
	ask, okAsk := ob.BestAsk()
	if !okBid || !okAsk || ask.Price <= bid.Price {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// TradeSide is the classified (or unknown) direction of a trade.
type TradeSide string

const (
	SideBuy     TradeSide = "buy"
	SideSell    TradeSide = "sell"
	SideUnknown TradeSide = "unknown"
)

// Trade is one executed trade print.
type Trade struct {
	ID    string    `json:"id"`
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	Side  TradeSide `json:"side"`
	TsMs  int64     `json:"ts_ms"`
}

// Ticker is the last-quote summary for a symbol.
type Ticker struct {
	Last           float64  `json:"last"`
	Bid            float64  `json:"bid"`
	Ask            float64  `json:"ask"`
	High           float64  `json:"high"`
	Low            float64  `json:"low"`
	Volume         float64  `json:"volume"`
	Percentage     *float64 `json:"percentage,omitempty"`
	FundingRate    *float64 `json:"funding_rate,omitempty"`
	OpenInterest   *float64 `json:"open_interest,omitempty"`
}

// OpenInterest is a before/after open-interest pair for a venue.
type OpenInterest struct {
	Current     float64 `json:"current"`
	Previous    float64 `json:"previous"`
	TimestampMs int64   `json:"timestamp_ms"`
}

// Liquidation is one forced-close event reported by a venue.
type Liquidation struct {
	Side  TradeSide `json:"side"`
	Price float64   `json:"price"`
	Size  float64   `json:"size"`
	TsMs  int64     `json:"ts_ms"`
}

// Sentiment carries the raw sentiment-adjacent fields a venue may report.
type Sentiment struct {
	FundingRate    float64       `json:"funding_rate"`
	LongShortRatio float64       `json:"long_short_ratio"`
	Liquidations   []Liquidation `json:"liquidations"`
	OpenInterest   *OpenInterest `json:"open_interest,omitempty"`
}

// MarketSnapshot is one sample for one symbol at one instant: the sole
// input to the confluence pipeline.
type MarketSnapshot struct {
	Symbol       string                    `json:"symbol"`
	Exchange     string                    `json:"exchange"`
	TimestampMs  int64                     `json:"timestamp_ms"`
	OHLCV        map[string]*OHLCVFrame    `json:"ohlcv"`
	OrderBook    *OrderBook                `json:"orderbook,omitempty"`
	Trades       []Trade                   `json:"trades,omitempty"`
	Ticker       *Ticker                   `json:"ticker,omitempty"`
	OpenInterest *OpenInterest             `json:"open_interest,omitempty"`
	Sentiment    *Sentiment                `json:"sentiment,omitempty"`
}
