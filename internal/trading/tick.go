package trading

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/models"
)

// Failure is an order that could not be placed this tick.
type Failure struct {
	Key  models.InstrumentKey
	Side models.OrderSide
	Err  error
}

// TickResult summarizes one tick.
type TickResult struct {
	Entries     []*models.Trade
	Exits       []*models.Trade
	Failures    []Failure
	Unavailable int
}

type watchItem struct {
	entry models.WatchlistEntry
	kind  models.OptionKind
}

// Processor turns a price snapshot into entries and exits.
type Processor struct {
	watchlist []models.WatchlistEntry
	items     map[models.InstrumentKey]watchItem
	levels    *BreakoutLevels
	ledger    *Ledger
	risk      RiskLimiter
	gateway   OrderGateway
	mode      models.TradingMode
	logger    zerolog.Logger
}

// NewProcessor wires a processor over the given watchlist and collaborators.
func NewProcessor(watchlist []models.WatchlistEntry, levels *BreakoutLevels, ledger *Ledger, risk RiskLimiter, gateway OrderGateway, mode models.TradingMode, logger zerolog.Logger) *Processor {
	items := make(map[models.InstrumentKey]watchItem, len(watchlist)*2)
	for _, w := range watchlist {
		for _, kind := range models.OptionKinds {
			items[w.Key(kind)] = watchItem{entry: w, kind: kind}
		}
	}
	return &Processor{
		watchlist: watchlist,
		items:     items,
		levels:    levels,
		ledger:    ledger,
		risk:      risk,
		gateway:   gateway,
		mode:      mode,
		logger:    logger,
	}
}

// ProcessTick evaluates breakouts for untraded instruments, then risk exits for
// trades that were open when the tick began. Order failures are collected in
// the result; only ledger invariant violations are returned as errors.
func (p *Processor) ProcessTick(ctx context.Context, prices models.Prices) (TickResult, error) {
	var res TickResult
	open := p.ledger.OpenKeys()

	for _, key := range p.ledger.UntradedKeys(p.watchlist) {
		ltp, ok := prices.Get(key)
		if !ok {
			res.Unavailable++
			continue
		}
		level := p.levels.LevelFor(key)
		if ltp < level {
			continue
		}
		trade, err := p.enter(ctx, key, ltp, level)
		if err != nil {
			if errors.IsInvariant(err) {
				return res, err
			}
			res.Failures = append(res.Failures, Failure{Key: key, Side: models.OrderSideBuy, Err: err})
			continue
		}
		res.Entries = append(res.Entries, trade)
	}

	for _, key := range open {
		ltp, ok := prices.Get(key)
		if !ok {
			res.Unavailable++
			continue
		}
		trade, err := p.manage(ctx, key, ltp)
		if err != nil {
			if errors.IsInvariant(err) {
				return res, err
			}
			res.Failures = append(res.Failures, Failure{Key: key, Side: models.OrderSideSell, Err: err})
			continue
		}
		if trade != nil {
			res.Exits = append(res.Exits, trade)
		}
	}

	return res, nil
}

func (p *Processor) enter(ctx context.Context, key models.InstrumentKey, ltp, level float64) (*models.Trade, error) {
	item := p.items[key]
	leg := item.entry.Leg(item.kind)

	result, err := p.placeOrder(ctx, models.OrderRequest{
		Symbol:   leg.Symbol,
		Token:    leg.Token,
		Exchange: models.NFO,
		Side:     models.OrderSideBuy,
		Quantity: item.entry.LotSize,
		Price:    ltp,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("key", string(key)).Float64("ltp", ltp).Msg("Entry order failed, will re-evaluate next tick")
		return nil, err
	}

	trade, err := p.ledger.OpenTrade(key, item.entry, item.kind, ltp, result.OrderID, item.entry.LotSize)
	if err != nil {
		return nil, err
	}
	metrics.RecordEntry(string(item.kind))
	logging.LogEntry(p.logger, string(key), leg.Symbol, ltp, level, item.entry.LotSize, result.OrderID)
	return trade, nil
}

// manage updates an open trade and exits it if a rule fires. It returns the
// closed trade, or nil if the trade stays open.
func (p *Processor) manage(ctx context.Context, key models.InstrumentKey, ltp float64) (*models.Trade, error) {
	p.ledger.UpdateLive(key, ltp)
	trade, _ := p.ledger.Trade(key)

	if p.risk.StopLossTriggered(trade) {
		return p.exit(ctx, trade, ltp, models.ExitStopLoss)
	}

	if p.risk.TrailingShouldActivate(trade) {
		stop := p.risk.TrailingStopPrice(trade, ltp)
		if err := p.ledger.ActivateTrailing(key, stop); err != nil {
			return nil, err
		}
		p.logger.Info().Str("key", string(key)).Float64("trailing_sl", stop).Float64("pnl", trade.PnL).Msg("Trailing stop activated")
	} else if trade.TrailingActive {
		stop := p.risk.TrailingStopPrice(trade, ltp)
		raised, err := p.ledger.RaiseTrailingStop(key, stop)
		if err != nil {
			return nil, err
		}
		if raised {
			p.logger.Debug().Str("key", string(key)).Float64("trailing_sl", stop).Msg("Trailing stop raised")
		}
	}

	if p.risk.TrailingStopTriggered(trade) {
		return p.exit(ctx, trade, ltp, models.ExitTrailingStop)
	}
	return nil, nil
}

func (p *Processor) exit(ctx context.Context, trade *models.Trade, ltp float64, reason models.ExitReason) (*models.Trade, error) {
	result, err := p.placeOrder(ctx, models.OrderRequest{
		Symbol:   trade.TradingSymbol,
		Token:    trade.Token,
		Exchange: trade.Exchange,
		Side:     models.OrderSideSell,
		Quantity: trade.LotSize,
		Price:    ltp,
	})
	if err != nil {
		p.logger.Warn().Err(err).Str("key", string(trade.Key)).Str("reason", string(reason)).Msg("Exit order failed, position remains open")
		return nil, err
	}

	closed, err := p.ledger.CloseTrade(trade.Key, ltp, result.OrderID, reason)
	if err != nil {
		return nil, err
	}
	metrics.RecordExit(string(reason))
	logging.LogExit(p.logger, string(closed.Key), closed.TradingSymbol, string(reason), ltp, closed.RealizedPnL, result.OrderID)
	return closed, nil
}

func (p *Processor) placeOrder(ctx context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	start := time.Now()
	result, err := p.gateway.PlaceOrder(ctx, req)
	metrics.RecordOrder(string(p.mode), string(req.Side), time.Since(start), err)
	if err != nil {
		if !errors.Is(err, errors.ErrOrderRejected) {
			err = errors.NewOrderError(req.Symbol, string(req.Side), "placement failed", err)
		}
		return nil, err
	}
	if result == nil || result.OrderID == "" {
		return nil, errors.NewOrderError(req.Symbol, string(req.Side), "no order id returned", nil)
	}
	logging.LogOrder(p.logger, result.OrderID, req.Symbol, string(req.Side), result.Status)
	return result, nil
}
