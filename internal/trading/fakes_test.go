package trading

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

// wednesday 10:00 IST, inside the session and before auto-exit.
var testNow = time.Date(2025, 1, 15, 10, 0, 0, 0, utils.IndiaLocation)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeGateway struct {
	mu     sync.Mutex
	orders []models.OrderRequest
	fail   map[string]int // symbol -> remaining failures
	seq    int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{fail: make(map[string]int)}
}

func (g *fakeGateway) PlaceOrder(_ context.Context, req models.OrderRequest) (*models.OrderResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n := g.fail[req.Symbol]; n != 0 {
		if n > 0 {
			g.fail[req.Symbol] = n - 1
		}
		return nil, errors.NewOrderError(req.Symbol, string(req.Side), "rejected by test", nil)
	}
	g.seq++
	g.orders = append(g.orders, req)
	return &models.OrderResult{OrderID: fmt.Sprintf("T%d", g.seq), Status: "COMPLETE", Price: req.Price}, nil
}

func (g *fakeGateway) sides(side models.OrderSide) []models.OrderRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []models.OrderRequest
	for _, o := range g.orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}

// scriptedMarket serves one price map per call, repeating the last.
type scriptedMarket struct {
	mu    sync.Mutex
	ticks []models.Prices
	calls int
	err   error
	seen  [][]models.Instrument
	hook  func(call int)
}

func (m *scriptedMarket) GetLastPrices(_ context.Context, instruments []models.Instrument) (models.Prices, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append(m.seen, instruments)
	call := m.calls
	m.calls++
	if m.hook != nil {
		m.hook(call)
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.ticks) == 0 {
		return models.Prices{}, nil
	}
	if call >= len(m.ticks) {
		call = len(m.ticks) - 1
	}
	out := make(models.Prices, len(m.ticks[call]))
	for k, v := range m.ticks[call] {
		out[k] = v
	}
	return out, nil
}

type recordingPublisher struct {
	mu    sync.Mutex
	snaps []models.Snapshot
}

func (p *recordingPublisher) Publish(_ context.Context, s models.Snapshot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
	return nil
}

type recordingRecorder struct {
	mu     sync.Mutex
	trades []*models.Trade
}

func (r *recordingRecorder) RecordTrade(_ context.Context, t *models.Trade) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.trades = append(r.trades, t)
	return nil
}

func testEntry(symbol string, callHigh, putHigh float64, lot int) models.WatchlistEntry {
	return models.WatchlistEntry{
		Symbol:  symbol,
		Spot:    1000,
		Strike:  1000,
		LotSize: lot,
		Expiry:  "28JAN2025",
		Call: models.OptionLeg{
			Symbol: symbol + "25JAN1000CE",
			Token:  1,
			Candle: models.Candle{High: callHigh},
		},
		Put: models.OptionLeg{
			Symbol: symbol + "25JAN1000PE",
			Token:  2,
			Candle: models.Candle{High: putHigh},
		},
	}
}

func testLimits() RiskLimits {
	l := DefaultRiskLimits()
	return l
}

func newTestProcessor(watchlist []models.WatchlistEntry, gw OrderGateway) (*Processor, *Ledger) {
	levels := NewBreakoutLevels(watchlist)
	ledger := NewLedger(LedgerConfig{StopLossAmount: testLimits().StopLossAmount, Mode: models.ModePaper, Clock: func() time.Time { return testNow }})
	return NewProcessor(watchlist, levels, ledger, NewRiskLimiter(testLimits()), gw, models.ModePaper, zerolog.Nop()), ledger
}

func noSleep(ctx context.Context, _ time.Duration) error {
	return ctx.Err()
}
