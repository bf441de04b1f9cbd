package trading

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
)

func TestProcessTick_BreakoutBoundaryInclusive(t *testing.T) {
	// Levels: CE = 100 × 1.01 = 101, PE = 200 × 1.01 = 202.
	entry := testEntry("SBIN", 100, 200, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)

	res, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 101, "SBIN_PE": 201.99})
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	assert.Equal(t, models.InstrumentKey("SBIN_CE"), res.Entries[0].Key)
	assert.Equal(t, 101.0, res.Entries[0].EntryPrice)
	assert.False(t, ledger.Traded("SBIN_PE"))

	buys := gw.sides(models.OrderSideBuy)
	require.Len(t, buys, 1)
	assert.Equal(t, 50, buys[0].Quantity)
	assert.Equal(t, "SBIN25JAN1000CE", buys[0].Symbol)
	assert.Equal(t, models.NFO, buys[0].Exchange)
}

func TestProcessTick_MissingQuoteSkipsInstrument(t *testing.T) {
	entry := testEntry("SBIN", 100, 100, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)

	_, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 150, "SBIN_PE": 150})
	require.NoError(t, err)
	trade := mustTrade(ledger, "SBIN_CE")
	ledger.UpdateLive("SBIN_CE", 160)
	before := *trade

	tests := []struct {
		name  string
		price float64
	}{
		{"zero", 0},
		{"negative", -3},
		{"not a number", math.NaN()},
		{"infinite", math.Inf(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": tt.price})
			require.NoError(t, err)
			assert.Equal(t, 2, res.Unavailable)
			assert.Empty(t, res.Exits)
			assert.Equal(t, before.LTP, trade.LTP)
			assert.Equal(t, before.PnL, trade.PnL)
			assert.Equal(t, before.StopLoss, trade.StopLoss)
			assert.Equal(t, before.TrailingStop, trade.TrailingStop)
			assert.Equal(t, before.PeakPnL, trade.PeakPnL)
		})
	}
}

func TestProcessTick_EntryFailureRetriedNextTick(t *testing.T) {
	entry := testEntry("SBIN", 100, 100, 50)
	gw := newFakeGateway()
	gw.fail[entry.Call.Symbol] = 1
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)

	res, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 105})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.ErrorIs(t, res.Failures[0].Err, errors.ErrOrderRejected)
	assert.Equal(t, models.OrderSideBuy, res.Failures[0].Side)
	assert.False(t, ledger.Traded("SBIN_CE"))

	res, err = p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 106})
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, 106.0, res.Entries[0].EntryPrice)
}

func TestProcessTick_StopLossExit(t *testing.T) {
	entry := testEntry("SBIN", 99, 1000, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)

	_, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 100})
	require.NoError(t, err)

	res, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 50.5})
	require.NoError(t, err)
	assert.Empty(t, res.Exits)

	res, err = p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 50})
	require.NoError(t, err)
	require.Len(t, res.Exits, 1)
	closed := res.Exits[0]
	assert.Equal(t, models.ExitStopLoss, closed.ExitReason)
	assert.Equal(t, -2500.0, closed.RealizedPnL)
	assert.Equal(t, -2500.0, ledger.Realized())

	sells := gw.sides(models.OrderSideSell)
	require.Len(t, sells, 1)
	assert.Equal(t, 50, sells[0].Quantity)
}

func TestProcessTick_TrailingStopLifecycle(t *testing.T) {
	entry := testEntry("SBIN", 99, 1000, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)
	ctx := context.Background()

	_, err := p.ProcessTick(ctx, models.Prices{"SBIN_CE": 100})
	require.NoError(t, err)
	trade := mustTrade(ledger, "SBIN_CE")

	_, err = p.ProcessTick(ctx, models.Prices{"SBIN_CE": 199})
	require.NoError(t, err)
	assert.False(t, trade.TrailingActive)

	_, err = p.ProcessTick(ctx, models.Prices{"SBIN_CE": 200})
	require.NoError(t, err)
	require.True(t, trade.TrailingActive)
	assert.Equal(t, 150.0, *trade.TrailingStop)

	_, err = p.ProcessTick(ctx, models.Prices{"SBIN_CE": 260})
	require.NoError(t, err)
	assert.Equal(t, 8000.0, trade.PeakPnL)
	assert.Equal(t, 210.0, *trade.TrailingStop)

	// A pullback leaves the stored stop where it was.
	res, err := p.ProcessTick(ctx, models.Prices{"SBIN_CE": 230})
	require.NoError(t, err)
	assert.Empty(t, res.Exits)
	assert.Equal(t, 210.0, *trade.TrailingStop)

	res, err = p.ProcessTick(ctx, models.Prices{"SBIN_CE": 210})
	require.NoError(t, err)
	require.Len(t, res.Exits, 1)
	assert.Equal(t, models.ExitTrailingStop, res.Exits[0].ExitReason)
	assert.Equal(t, 5500.0, res.Exits[0].RealizedPnL)
}

func TestProcessTick_ExitFailureKeepsTradeOpen(t *testing.T) {
	entry := testEntry("SBIN", 99, 1000, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)
	ctx := context.Background()

	_, err := p.ProcessTick(ctx, models.Prices{"SBIN_CE": 100})
	require.NoError(t, err)

	gw.fail[entry.Call.Symbol] = 1
	res, err := p.ProcessTick(ctx, models.Prices{"SBIN_CE": 40})
	require.NoError(t, err)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, models.OrderSideSell, res.Failures[0].Side)
	assert.True(t, mustTrade(ledger, "SBIN_CE").IsOpen())

	res, err = p.ProcessTick(ctx, models.Prices{"SBIN_CE": 45})
	require.NoError(t, err)
	require.Len(t, res.Exits, 1)
	assert.Equal(t, 45.0, res.Exits[0].ExitPrice)
}

func TestProcessTick_FailuresIsolatedPerInstrument(t *testing.T) {
	a := testEntry("AAA", 10, 10, 10)
	b := testEntry("BBB", 10, 10, 10)
	gw := newFakeGateway()
	gw.fail[a.Call.Symbol] = -1
	p, ledger := newTestProcessor([]models.WatchlistEntry{a, b}, gw)

	res, err := p.ProcessTick(context.Background(), models.Prices{"AAA_CE": 20, "BBB_CE": 20, "BBB_PE": 20})
	require.NoError(t, err)
	assert.Len(t, res.Failures, 1)
	assert.Len(t, res.Entries, 2)
	assert.True(t, ledger.Traded("BBB_CE"))
	assert.True(t, ledger.Traded("BBB_PE"))
}

func TestProcessTick_NewEntryNotExitedSameTick(t *testing.T) {
	limits := testLimits()
	entry := testEntry("SBIN", 99, 1000, 50)
	gw := newFakeGateway()
	p, ledger := newTestProcessor([]models.WatchlistEntry{entry}, gw)
	p.risk = NewRiskLimiter(RiskLimits{StopLossAmount: 0, TrailingProfitTrigger: limits.TrailingProfitTrigger, TrailingDrawdown: limits.TrailingDrawdown})

	res, err := p.ProcessTick(context.Background(), models.Prices{"SBIN_CE": 100})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)
	assert.Empty(t, res.Exits)
	assert.True(t, mustTrade(ledger, "SBIN_CE").IsOpen())
}
