// Package store persists closed trades and session results.
package store

import (
	"context"
	"time"

	"breakout-trader/internal/models"
)

// TradeStore is the append-only record of a trading day.
type TradeStore interface {
	RecordTrade(ctx context.Context, trade *models.Trade) error
	Trades(ctx context.Context, filter TradeFilter) ([]models.Trade, error)

	RecordSession(ctx context.Context, session SessionRecord) error
	Sessions(ctx context.Context, limit int) ([]SessionRecord, error)

	Close() error
}

// TradeFilter narrows a trade query. Zero fields match everything.
type TradeFilter struct {
	Underlying string
	Mode       models.TradingMode
	From       time.Time
	To         time.Time
	Limit      int
}

// SessionRecord is the end-of-run report of one monitor session.
type SessionRecord struct {
	ID            string
	Mode          models.TradingMode
	State         string
	StartedAt     time.Time
	EndedAt       time.Time
	Ticks         int
	TotalTrades   int
	ClosedTrades  int
	WinningTrades int
	RealizedPnL   float64
	Error         string
}

// WinRate returns winning trades as a percentage of closed trades.
func (s SessionRecord) WinRate() float64 {
	if s.ClosedTrades == 0 {
		return 0
	}
	return float64(s.WinningTrades) / float64(s.ClosedTrades) * 100
}
