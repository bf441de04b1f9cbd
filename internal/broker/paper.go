package broker

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
	"breakout-trader/internal/trading"
)

// PaperGatewayConfig holds configuration for the paper gateway.
type PaperGatewayConfig struct {
	// MarketData, when set, supplies the fill price. Otherwise the
	// requested price is used.
	MarketData trading.MarketDataClient
	FillDelay  time.Duration
	Logger     zerolog.Logger
	Clock      func() time.Time
}

// PaperGateway simulates order execution. Every order fills immediately at
// the instrument's current LTP after a short simulated latency.
type PaperGateway struct {
	cfg    PaperGatewayConfig
	logger zerolog.Logger

	orders []models.Order
	mu     sync.Mutex
}

// NewPaperGateway creates a new paper execution gateway.
func NewPaperGateway(cfg PaperGatewayConfig) *PaperGateway {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &PaperGateway{
		cfg:    cfg,
		logger: logging.WithOperation(cfg.Logger, "paper"),
	}
}

// PlaceOrder records a simulated fill. It fails only when the context is
// cancelled during the fill delay.
func (p *PaperGateway) PlaceOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	now := p.cfg.Clock()
	orderID := fmt.Sprintf("PAPER_%d_%d", now.Unix(), 1000+rand.IntN(9000))

	price := req.Price
	if ltp, ok := p.lastPrice(ctx, req); ok {
		price = ltp
	}

	if p.cfg.FillDelay > 0 {
		timer := time.NewTimer(p.cfg.FillDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, errors.NewOrderError(req.Symbol, string(req.Side), "paper fill interrupted", ctx.Err())
		case <-timer.C:
		}
	}

	exchange := req.Exchange
	if exchange == "" {
		exchange = models.NFO
	}

	p.mu.Lock()
	p.orders = append(p.orders, models.Order{
		ID:           orderID,
		Symbol:       req.Symbol,
		Exchange:     exchange,
		Side:         req.Side,
		Type:         models.OrderTypeMarket,
		Product:      models.ProductMIS,
		Quantity:     req.Quantity,
		Status:       "COMPLETE",
		AveragePrice: price,
		PlacedAt:     now,
	})
	p.mu.Unlock()

	p.logger.Info().
		Str("order_id", orderID).
		Str("symbol", req.Symbol).
		Str("side", string(req.Side)).
		Int("quantity", req.Quantity).
		Float64("price", price).
		Msg("Paper order filled")

	return &models.OrderResult{
		OrderID:  orderID,
		Status:   "COMPLETE",
		Price:    price,
		Mode:     models.ModePaper,
		PlacedAt: now,
		Message:  "Paper order filled",
	}, nil
}

func (p *PaperGateway) lastPrice(ctx context.Context, req models.OrderRequest) (float64, bool) {
	if p.cfg.MarketData == nil {
		return 0, false
	}
	exchange := req.Exchange
	if exchange == "" {
		exchange = models.NFO
	}
	key := models.InstrumentKey(req.Symbol)
	prices, err := p.cfg.MarketData.GetLastPrices(ctx, []models.Instrument{{
		Key:      key,
		Exchange: exchange,
		Symbol:   req.Symbol,
		Token:    req.Token,
	}})
	if err != nil {
		p.logger.Debug().Err(err).Str("symbol", req.Symbol).Msg("Paper fill falling back to requested price")
		return 0, false
	}
	return prices.Get(key)
}

// Orders returns a copy of the simulated order book.
func (p *PaperGateway) Orders(ctx context.Context) ([]models.Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Order, len(p.orders))
	copy(out, p.orders)
	return out, nil
}

var (
	_ trading.OrderGateway     = (*PaperGateway)(nil)
	_ trading.OrderGateway     = (*Zerodha)(nil)
	_ trading.MarketDataClient = (*Zerodha)(nil)
)
