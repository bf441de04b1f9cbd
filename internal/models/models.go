// Package models provides domain models for the breakout trading engine.
package models

import (
	"math"
	"time"
)

// Exchange represents a stock exchange segment.
type Exchange string

const (
	NSE Exchange = "NSE"
	NFO Exchange = "NFO" // F&O
)

// OrderSide represents the side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// OrderType represents the type of an order.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

// ProductType represents the product type of an order.
type ProductType string

const (
	ProductMIS  ProductType = "MIS"  // Intraday
	ProductNRML ProductType = "NRML" // F&O Normal
)

// TradingMode selects simulated or real order execution.
type TradingMode string

const (
	ModePaper TradingMode = "paper"
	ModeLive  TradingMode = "live"
)

// IsLive reports whether orders reach the brokerage.
func (m TradingMode) IsLive() bool {
	return m == ModeLive
}

// Candle represents OHLCV data for a time period.
type Candle struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    int64
}

// Instrument identifies one priceable contract for a quote request.
type Instrument struct {
	Key      InstrumentKey
	Exchange Exchange
	Symbol   string
	Token    uint32
}

// ExchangeSymbol returns the "EXCHANGE:SYMBOL" form used by Kite quote APIs.
func (i Instrument) ExchangeSymbol() string {
	return string(i.Exchange) + ":" + i.Symbol
}

// Prices maps an instrument key to its last traded price. A missing entry or
// one that is not a positive finite number means the quote was unavailable
// this tick.
type Prices map[InstrumentKey]float64

// Get returns the price for key and whether it is usable.
func (p Prices) Get(key InstrumentKey) (float64, bool) {
	ltp, ok := p[key]
	if !ok || ltp <= 0 || math.IsNaN(ltp) || math.IsInf(ltp, 0) {
		return 0, false
	}
	return ltp, true
}
