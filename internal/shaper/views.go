package shaper

import (
	"github.com/quorumtrade/confluence/internal/snapshot"
)

// TechnicalView is C2's input for the technical indicator.
type TechnicalView struct {
	OHLCV      map[snapshot.Timeframe]*snapshot.OHLCVFrame
	Ticker     *snapshot.Ticker
	Timeframes []snapshot.Timeframe
}

// VolumeView is C2's input for the volume indicator.
type VolumeView struct {
	OHLCV           map[snapshot.Timeframe]*snapshot.OHLCVFrame
	ProcessedTrades []snapshot.Trade
	Ticker          *snapshot.Ticker
}

// PressureSummary is the pre-computed order-book pressure summary carried
// alongside OrderbookView so the orderbook indicator does not recompute it.
type PressureSummary struct {
	BidVolume        float64
	AskVolume        float64
	Imbalance        float64 // (bid-ask)/(bid+ask), in [-1,1]
	SpreadAbs        float64
	SpreadPct        float64
	BidTopConcFrac   float64 // share of bid volume resting at the best level
	AskTopConcFrac   float64
}

// OrderbookView is C2's input for the orderbook indicator.
type OrderbookView struct {
	OrderBook *snapshot.OrderBook
	Trades    []snapshot.Trade
	Ticker    *snapshot.Ticker
	LastPrice float64
	Pressure  PressureSummary
}

// OrderflowView is C2's input for the orderflow indicator.
type OrderflowView struct {
	ProcessedTrades []snapshot.Trade
	OrderBook       *snapshot.OrderBook
	OHLCV           map[snapshot.Timeframe]*snapshot.OHLCVFrame
	OpenInterest    *snapshot.OpenInterest
}

// SentimentView is C2's input for the sentiment indicator.
type SentimentView struct {
	SentimentEnriched *snapshot.Sentiment
	OHLCV             map[snapshot.Timeframe]*snapshot.OHLCVFrame
	Ticker            *snapshot.Ticker
}

// PriceStructureView is C2's input for the price-structure indicator.
type PriceStructureView struct {
	OHLCV  map[snapshot.Timeframe]*snapshot.OHLCVFrame
	Ticker *snapshot.Ticker
}

// PrepareTechnical builds the technical indicator's view (min 20 candles).
func (s *Shaper) PrepareTechnical(snap *snapshot.MarketSnapshot) *TechnicalView {
	frames := s.DeriveMissing(s.StandardizedFrames(snap, 20))
	return &TechnicalView{OHLCV: frames, Ticker: snap.Ticker, Timeframes: snapshot.AllTimeframes}
}

// PrepareVolume builds the volume indicator's view.
func (s *Shaper) PrepareVolume(snap *snapshot.MarketSnapshot, lastValidPrice *float64) *VolumeView {
	frames := s.DeriveMissing(s.StandardizedFrames(snap, 20))
	lastClose := lastCloseOf(frames[snapshot.Base])
	trades := s.CleanTrades(snap, snap.Ticker, lastClose, lastValidPrice)
	trades = ApplyTickRule(trades)
	return &VolumeView{OHLCV: frames, ProcessedTrades: trades, Ticker: snap.Ticker}
}

// PrepareOrderbook builds the orderbook indicator's view, including the
// pre-computed pressure summary (spec.md §4.1).
func (s *Shaper) PrepareOrderbook(snap *snapshot.MarketSnapshot, lastValidPrice *float64) *OrderbookView {
	book := s.CleanOrderBook(snap)
	lastClose := lastCloseOf(s.DeriveMissing(s.StandardizedFrames(snap, 1))[snapshot.Base])
	trades := s.CleanTrades(snap, snap.Ticker, lastClose, lastValidPrice)

	lastPrice := 0.0
	switch {
	case snap.Ticker != nil && snap.Ticker.Last > 0:
		lastPrice = snap.Ticker.Last
	case lastClose > 0:
		lastPrice = lastClose
	}

	return &OrderbookView{
		OrderBook: book,
		Trades:    trades,
		Ticker:    snap.Ticker,
		LastPrice: lastPrice,
		Pressure:  computePressure(book),
	}
}

func computePressure(book *snapshot.OrderBook) PressureSummary {
	var ps PressureSummary
	if book == nil || len(book.Bids) < 3 || len(book.Asks) < 3 {
		return ps
	}
	for _, l := range book.Bids {
		ps.BidVolume += l.Size
	}
	for _, l := range book.Asks {
		ps.AskVolume += l.Size
	}
	total := ps.BidVolume + ps.AskVolume
	if total > 1e-12 {
		ps.Imbalance = (ps.BidVolume - ps.AskVolume) / total
	}
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if okBid && okAsk && ask.Price > bid.Price {
		mid := (bid.Price + ask.Price) / 2
		ps.SpreadAbs = ask.Price - bid.Price
		if mid > 1e-9 {
			ps.SpreadPct = ps.SpreadAbs / mid
		}
	}
	if ps.BidVolume > 1e-12 {
		ps.BidTopConcFrac = book.Bids[0].Size / ps.BidVolume
	}
	if ps.AskVolume > 1e-12 {
		ps.AskTopConcFrac = book.Asks[0].Size / ps.AskVolume
	}
	return ps
}

// PrepareOrderflow builds the orderflow indicator's view.
func (s *Shaper) PrepareOrderflow(snap *snapshot.MarketSnapshot, lastValidPrice *float64) *OrderflowView {
	frames := s.DeriveMissing(s.StandardizedFrames(snap, 1))
	lastClose := lastCloseOf(frames[snapshot.Base])
	trades := s.CleanTrades(snap, snap.Ticker, lastClose, lastValidPrice)
	trades = ApplyTickRule(trades)
	book := s.CleanOrderBook(snap)

	oi := snap.OpenInterest
	if oi == nil && snap.Sentiment != nil {
		oi = snap.Sentiment.OpenInterest
	}

	return &OrderflowView{ProcessedTrades: trades, OrderBook: book, OHLCV: frames, OpenInterest: oi}
}

// PrepareSentiment builds the sentiment indicator's view, synthesizing a
// Sentiment record from ticker fields when the raw one is absent (spec.md
// §4.2.e / §4.6).
func (s *Shaper) PrepareSentiment(snap *snapshot.MarketSnapshot) *SentimentView {
	frames := s.DeriveMissing(s.StandardizedFrames(snap, 2))
	sentiment := snap.Sentiment
	if sentiment == nil {
		sentiment = &snapshot.Sentiment{}
		if snap.Ticker != nil {
			if snap.Ticker.FundingRate != nil {
				sentiment.FundingRate = *snap.Ticker.FundingRate
			}
			if snap.Ticker.OpenInterest != nil {
				sentiment.OpenInterest = &snapshot.OpenInterest{Current: *snap.Ticker.OpenInterest}
			}
		}
	} else if sentiment.OpenInterest == nil && snap.Ticker != nil && snap.Ticker.OpenInterest != nil {
		sentiment.OpenInterest = &snapshot.OpenInterest{Current: *snap.Ticker.OpenInterest}
	}
	return &SentimentView{SentimentEnriched: sentiment, OHLCV: frames, Ticker: snap.Ticker}
}

// PreparePriceStructure builds the price-structure indicator's view,
// requiring all four tag frames (deriving where needed).
func (s *Shaper) PreparePriceStructure(snap *snapshot.MarketSnapshot) *PriceStructureView {
	frames := s.DeriveMissing(s.StandardizedFrames(snap, 50))
	return &PriceStructureView{OHLCV: frames, Ticker: snap.Ticker}
}

func lastCloseOf(frame *snapshot.OHLCVFrame) float64 {
	if frame == nil || len(frame.Bars) == 0 {
		return 0
	}
	return frame.Bars[len(frame.Bars)-1].Close
}
