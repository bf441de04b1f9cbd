package trading

import (
	"fmt"
	"sort"
	"time"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
	"breakout-trader/pkg/id"
)

// DailyLedger accumulates realized results for the session.
type DailyLedger struct {
	Realized float64
	Closed   []*models.Trade
}

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	StopLossAmount float64
	Mode           models.TradingMode
	Strategy       string
	Clock          func() time.Time
	NewID          func() string
}

// Ledger maps instrument keys to trades and owns the daily ledger.
// It is owned by a single control loop and is not safe for concurrent use.
type Ledger struct {
	cfg    LedgerConfig
	trades map[models.InstrumentKey]*models.Trade
	daily  DailyLedger
}

// NewLedger creates an empty ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = id.New
	}
	return &Ledger{
		cfg:    cfg,
		trades: make(map[models.InstrumentKey]*models.Trade),
	}
}

// OpenTrade records a new OPEN trade for key. It fails with ErrAlreadyOpen if
// key already has a trade this session, open or closed.
func (l *Ledger) OpenTrade(key models.InstrumentKey, entry models.WatchlistEntry, kind models.OptionKind, entryPrice float64, orderID string, lotSize int) (*models.Trade, error) {
	if existing, ok := l.trades[key]; ok {
		if existing.IsOpen() {
			return nil, errors.NewInvariantError(string(key), "open", errors.ErrAlreadyOpen)
		}
		return nil, errors.NewInvariantError(string(key), "reopen", errors.ErrAlreadyOpen)
	}
	if lotSize <= 0 {
		return nil, errors.NewInvariantError(string(key), "open", fmt.Errorf("non-positive lot size %d", lotSize))
	}

	leg := entry.Leg(kind)
	t := &models.Trade{
		ID:            l.cfg.NewID(),
		Key:           key,
		TradingSymbol: leg.Symbol,
		Token:         leg.Token,
		Exchange:      models.NFO,
		LotSize:       lotSize,
		Underlying:    entry.Symbol,
		Strike:        entry.Strike,
		Kind:          kind,
		Mode:          l.cfg.Mode,
		Strategy:      l.cfg.Strategy,
		Status:        models.TradeOpen,
		EntryPrice:    entryPrice,
		EntryTime:     l.cfg.Clock(),
		OrderID:       orderID,
		LTP:           entryPrice,
		StopLoss:      entryPrice - l.cfg.StopLossAmount/float64(lotSize),
	}
	l.trades[key] = t
	return t, nil
}

// UpdateLive recomputes P&L for an OPEN trade and raises its peak.
// Updates for closed or unknown keys are dropped.
func (l *Ledger) UpdateLive(key models.InstrumentKey, ltp float64) {
	t, ok := l.trades[key]
	if !ok || !t.IsOpen() {
		return
	}
	t.LTP = ltp
	t.PnL = (ltp - t.EntryPrice) * float64(t.LotSize)
	if t.PnL > t.PeakPnL {
		t.PeakPnL = t.PnL
	}
}

// CloseTrade finalizes an OPEN trade and appends it to the daily ledger.
func (l *Ledger) CloseTrade(key models.InstrumentKey, exitPrice float64, exitOrderID string, reason models.ExitReason) (*models.Trade, error) {
	t, ok := l.trades[key]
	if !ok || !t.IsOpen() {
		return nil, errors.NewInvariantError(string(key), "close", errors.ErrNotOpen)
	}

	realized := (exitPrice - t.EntryPrice) * float64(t.LotSize)
	t.Status = models.TradeClosed
	t.LTP = exitPrice
	t.ExitPrice = exitPrice
	t.ExitTime = l.cfg.Clock()
	t.ExitOrderID = exitOrderID
	t.ExitReason = reason
	t.RealizedPnL = realized
	t.PnL = realized

	l.daily.Realized += realized
	l.daily.Closed = append(l.daily.Closed, t.Clone())
	return t, nil
}

// ActivateTrailing arms the trailing stop at stop.
func (l *Ledger) ActivateTrailing(key models.InstrumentKey, stop float64) error {
	t, ok := l.trades[key]
	if !ok || !t.IsOpen() {
		return errors.NewInvariantError(string(key), "activate trailing", errors.ErrNotOpen)
	}
	t.TrailingActive = true
	t.TrailingStop = &stop
	return nil
}

// RaiseTrailingStop moves the trailing stop up to stop. Lower values are
// ignored. Returns true if the stop moved.
func (l *Ledger) RaiseTrailingStop(key models.InstrumentKey, stop float64) (bool, error) {
	t, ok := l.trades[key]
	if !ok || !t.IsOpen() {
		return false, errors.NewInvariantError(string(key), "raise trailing", errors.ErrNotOpen)
	}
	if t.TrailingStop != nil && stop <= *t.TrailingStop {
		return false, nil
	}
	t.TrailingStop = &stop
	return true, nil
}

// Trade returns the trade for key, if any. The result is engine-owned.
func (l *Ledger) Trade(key models.InstrumentKey) (*models.Trade, bool) {
	t, ok := l.trades[key]
	return t, ok
}

// OpenKeys returns keys with an OPEN trade, sorted.
func (l *Ledger) OpenKeys() []models.InstrumentKey {
	var keys []models.InstrumentKey
	for k, t := range l.trades {
		if t.IsOpen() {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys
}

// UntradedKeys returns watchlist keys that have never been traded, in
// watchlist order.
func (l *Ledger) UntradedKeys(watchlist []models.WatchlistEntry) []models.InstrumentKey {
	var keys []models.InstrumentKey
	for _, w := range watchlist {
		for _, kind := range models.OptionKinds {
			k := w.Key(kind)
			if _, traded := l.trades[k]; !traded {
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// Traded reports whether key has any trade this session.
func (l *Ledger) Traded(key models.InstrumentKey) bool {
	_, ok := l.trades[key]
	return ok
}

// Realized returns the running realized P&L.
func (l *Ledger) Realized() float64 {
	return l.daily.Realized
}

// ClosedCount returns the number of trades closed this session.
func (l *Ledger) ClosedCount() int {
	return len(l.daily.Closed)
}

// Daily returns a copy of the daily ledger.
func (l *Ledger) Daily() DailyLedger {
	closed := make([]*models.Trade, len(l.daily.Closed))
	for i, t := range l.daily.Closed {
		closed[i] = t.Clone()
	}
	return DailyLedger{Realized: l.daily.Realized, Closed: closed}
}

// All returns copies of every trade keyed by instrument.
func (l *Ledger) All() map[models.InstrumentKey]*models.Trade {
	out := make(map[models.InstrumentKey]*models.Trade, len(l.trades))
	for k, t := range l.trades {
		out[k] = t.Clone()
	}
	return out
}

func sortKeys(keys []models.InstrumentKey) {
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
}
