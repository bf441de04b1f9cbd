package models

import "time"

// TradeStatus is the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen   TradeStatus = "OPEN"
	TradeClosed TradeStatus = "CLOSED"
)

// ExitReason records why a trade was closed.
type ExitReason string

const (
	ExitStopLoss     ExitReason = "Stop Loss"
	ExitTrailingStop ExitReason = "Trailing Stop"
	ExitAutoExit     ExitReason = "Auto-Exit"
	ExitManual       ExitReason = "Manual"
)

// Trade is a single long option position, opened on a breakout and closed
// exactly once.
type Trade struct {
	ID            string        `json:"id"`
	Key           InstrumentKey `json:"key"`
	TradingSymbol string        `json:"tradingsymbol"`
	Token         uint32        `json:"token"`
	Exchange      Exchange      `json:"exchange"`
	LotSize       int           `json:"lot"`
	Underlying    string        `json:"symbol"`
	Strike        float64       `json:"strike"`
	Kind          OptionKind    `json:"type"`
	Mode          TradingMode   `json:"mode"`
	Strategy      string        `json:"strategy"`

	Status     TradeStatus `json:"status"`
	EntryPrice float64     `json:"entry"`
	EntryTime  time.Time   `json:"entry_time"`
	OrderID    string      `json:"order_id"`

	LTP            float64  `json:"ltp"`
	PnL            float64  `json:"pnl"`
	StopLoss       float64  `json:"stop_loss"`
	TrailingStop   *float64 `json:"trailing_sl"`
	TrailingActive bool     `json:"trailing_active"`
	PeakPnL        float64  `json:"peak_pnl"`

	ExitPrice   float64    `json:"exit,omitempty"`
	ExitTime    time.Time  `json:"exit_time,omitempty"`
	RealizedPnL float64    `json:"realized_pnl,omitempty"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	ExitOrderID string     `json:"exit_order_id,omitempty"`
}

// IsOpen reports whether the trade is still live.
func (t *Trade) IsOpen() bool {
	return t != nil && t.Status == TradeOpen
}

// Clone returns a deep copy safe to hand to observers.
func (t *Trade) Clone() *Trade {
	if t == nil {
		return nil
	}
	c := *t
	if t.TrailingStop != nil {
		v := *t.TrailingStop
		c.TrailingStop = &v
	}
	return &c
}

// Instrument returns the quote request for the trade's contract.
func (t *Trade) Instrument() Instrument {
	return Instrument{
		Key:      t.Key,
		Exchange: t.Exchange,
		Symbol:   t.TradingSymbol,
		Token:    t.Token,
	}
}

// HoldDuration returns how long the trade was (or has been) open.
func (t *Trade) HoldDuration(now time.Time) time.Duration {
	if t.Status == TradeClosed {
		return t.ExitTime.Sub(t.EntryTime)
	}
	return now.Sub(t.EntryTime)
}
