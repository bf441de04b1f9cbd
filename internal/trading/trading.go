// Package trading implements the breakout engine: level registry, position
// ledger, risk rules, tick processing and the monitor loop.
package trading

import (
	"context"

	"breakout-trader/internal/models"
)

// OrderGateway places market orders. A failed placement wraps
// errors.ErrOrderRejected and may be retried by the caller.
type OrderGateway interface {
	PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error)
}

// MarketDataClient returns last traded prices for a batch of instruments.
// Missing or non-positive entries mean the quote is unavailable this tick.
type MarketDataClient interface {
	GetLastPrices(ctx context.Context, instruments []models.Instrument) (models.Prices, error)
}

// StatePublisher receives a snapshot after every tick. Implementations must
// not block the caller.
type StatePublisher interface {
	Publish(ctx context.Context, snap models.Snapshot) error
}

// TradeRecorder persists closed trades.
type TradeRecorder interface {
	RecordTrade(ctx context.Context, trade *models.Trade) error
}
