package models

import (
	"fmt"
	"time"
)

// OptionKind is the side of an option contract.
type OptionKind string

const (
	Call OptionKind = "CALL"
	Put  OptionKind = "PUT"
)

// OptionKinds lists both kinds in evaluation order.
var OptionKinds = []OptionKind{Call, Put}

// Suffix returns the exchange suffix for the kind (CE or PE).
func (k OptionKind) Suffix() string {
	if k == Put {
		return "PE"
	}
	return "CE"
}

// InstrumentKey identifies one watchlist option leg, e.g. "SBIN_CE".
type InstrumentKey string

// NewInstrumentKey builds the key for an underlying and option kind.
func NewInstrumentKey(underlying string, kind OptionKind) InstrumentKey {
	return InstrumentKey(fmt.Sprintf("%s_%s", underlying, kind.Suffix()))
}

// OptionLeg is one tradable side (call or put) of a watchlist entry.
type OptionLeg struct {
	Symbol     string
	Token      uint32
	LTP        float64
	Candle     Candle
	CandleTime time.Time
}

// WatchlistEntry is an underlying with its ATM call and put legs.
// It is built once before monitoring starts and never mutated afterward.
type WatchlistEntry struct {
	Symbol  string
	Spot    float64
	Strike  float64
	LotSize int
	Expiry  string
	Call    OptionLeg
	Put     OptionLeg
}

// Leg returns the option leg for kind.
func (w WatchlistEntry) Leg(kind OptionKind) OptionLeg {
	if kind == Put {
		return w.Put
	}
	return w.Call
}

// Key returns the instrument key for kind.
func (w WatchlistEntry) Key(kind OptionKind) InstrumentKey {
	return NewInstrumentKey(w.Symbol, kind)
}

// Instrument returns the quote request for kind.
func (w WatchlistEntry) Instrument(kind OptionKind) Instrument {
	leg := w.Leg(kind)
	return Instrument{
		Key:      w.Key(kind),
		Exchange: NFO,
		Symbol:   leg.Symbol,
		Token:    leg.Token,
	}
}

// Candidate is an underlying selected for monitoring before its options are resolved.
type Candidate struct {
	Symbol         string
	PriceChangePct float64
	Score          float64
	LTP            float64
	Volume         int64
	PrevClose      float64
}

// OptionContract is one entry of the exchange instrument master.
type OptionContract struct {
	Symbol     string
	Token      uint32
	Underlying string
	Strike     float64
	Expiry     time.Time
	Kind       OptionKind
	LotSize    int
}
