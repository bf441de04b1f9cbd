package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

var day = time.Date(2025, 1, 15, 9, 30, 0, 0, utils.IndiaLocation)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func closedTrade(underlying string, minute int, pnl float64) *models.Trade {
	symbol := fmt.Sprintf("%s25JAN800CE", underlying)
	entry := day.Add(time.Duration(minute) * time.Minute)
	return &models.Trade{
		Key:           models.InstrumentKey(symbol),
		TradingSymbol: symbol,
		Token:         12345,
		Exchange:      models.NFO,
		LotSize:       750,
		Underlying:    underlying,
		Strike:        800,
		Kind:          models.Call,
		Mode:          models.ModePaper,
		Strategy:      "breakout",
		Status:        models.TradeClosed,
		EntryPrice:    12.5,
		EntryTime:     entry,
		OrderID:       "PAPER_1_1000",
		StopLoss:      11.5,
		PeakPnL:       pnl,
		ExitPrice:     12.5 + pnl/750,
		ExitTime:      entry.Add(5 * time.Minute),
		RealizedPnL:   pnl,
		ExitReason:    models.ExitTrailingStop,
		ExitOrderID:   "PAPER_2_1000",
	}
}

func TestSQLiteStore_RecordAndReadTrade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := closedTrade("SBIN", 0, 1500)
	in.ID = "01HTRADE"
	require.NoError(t, s.RecordTrade(ctx, in))

	trades, err := s.Trades(ctx, TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 1)

	got := trades[0]
	assert.Equal(t, "01HTRADE", got.ID)
	assert.Equal(t, in.Key, got.Key)
	assert.Equal(t, models.TradeClosed, got.Status)
	assert.Equal(t, models.Call, got.Kind)
	assert.Equal(t, 750, got.LotSize)
	assert.Equal(t, 1500.0, got.RealizedPnL)
	assert.Equal(t, models.ExitTrailingStop, got.ExitReason)
	assert.True(t, in.EntryTime.Equal(got.EntryTime))
	assert.True(t, in.ExitTime.Equal(got.ExitTime))
	assert.Equal(t, utils.IndiaLocation, got.EntryTime.Location())
}

func TestSQLiteStore_AppendOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	tr := closedTrade("SBIN", 0, 100)
	tr.ID = "dup"
	require.NoError(t, s.RecordTrade(ctx, tr))
	assert.Error(t, s.RecordTrade(ctx, tr), "same id twice")

	open := closedTrade("INFY", 1, 0)
	open.Status = models.TradeOpen
	assert.Error(t, s.RecordTrade(ctx, open))
	assert.Error(t, s.RecordTrade(ctx, nil))
}

func TestSQLiteStore_GeneratesIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTrade(ctx, closedTrade("SBIN", 0, 10)))
	require.NoError(t, s.RecordTrade(ctx, closedTrade("SBIN", 0, 20)))

	trades, err := s.Trades(ctx, TradeFilter{})
	require.NoError(t, err)
	require.Len(t, trades, 2)
	assert.NotEmpty(t, trades[0].ID)
	assert.NotEqual(t, trades[0].ID, trades[1].ID)
}

func TestSQLiteStore_TradeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTrade(ctx, closedTrade("SBIN", 0, 10)))
	require.NoError(t, s.RecordTrade(ctx, closedTrade("INFY", 10, 20)))
	live := closedTrade("SBIN", 20, 30)
	live.Mode = models.ModeLive
	require.NoError(t, s.RecordTrade(ctx, live))
	tomorrow := closedTrade("SBIN", 24*60, 40)
	require.NoError(t, s.RecordTrade(ctx, tomorrow))

	tests := []struct {
		name   string
		filter TradeFilter
		want   []float64
	}{
		{"all", TradeFilter{}, []float64{10, 20, 30, 40}},
		{"underlying is case-insensitive", TradeFilter{Underlying: "sbin"}, []float64{10, 30, 40}},
		{"mode", TradeFilter{Mode: models.ModeLive}, []float64{30}},
		{"one day", TradeFilter{From: day.Add(-time.Hour), To: day.Add(23 * time.Hour)}, []float64{10, 20, 30}},
		{"limit", TradeFilter{Limit: 2}, []float64{10, 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trades, err := s.Trades(ctx, tt.filter)
			require.NoError(t, err)
			var got []float64
			for _, tr := range trades {
				got = append(got, tr.RealizedPnL)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSQLiteStore_Sessions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordSession(ctx, SessionRecord{
			Mode:          models.ModePaper,
			State:         "MARKET_CLOSED",
			StartedAt:     day.AddDate(0, 0, i),
			EndedAt:       day.AddDate(0, 0, i).Add(6 * time.Hour),
			Ticks:         100 + i,
			TotalTrades:   4,
			ClosedTrades:  4,
			WinningTrades: 3,
			RealizedPnL:   float64(i) * 1000,
		}))
	}

	sessions, err := s.Sessions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, 102, sessions[0].Ticks, "newest first")
	assert.Equal(t, 75.0, sessions[0].WinRate())
	assert.Equal(t, "", sessions[0].Error)
	assert.True(t, day.AddDate(0, 0, 2).Equal(sessions[0].StartedAt))
}

func TestSessionRecord_WinRateWithoutTrades(t *testing.T) {
	assert.Equal(t, 0.0, SessionRecord{}.WinRate())
}

// Property: Every recorded trade is read back exactly once, in entry-time
// order, and the realized total is preserved.
func TestProperty_RecordedTradesRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 20
	properties := gopter.NewProperties(parameters)

	properties.Property("trades read back in entry order", prop.ForAll(
		func(pnls []int) bool {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "prop.db"))
			if err != nil {
				return false
			}
			defer s.Close()
			ctx := context.Background()

			var want float64
			// Insert newest first so ordering comes from the query.
			for i := len(pnls) - 1; i >= 0; i-- {
				if err := s.RecordTrade(ctx, closedTrade("SBIN", i, float64(pnls[i]))); err != nil {
					return false
				}
				want += float64(pnls[i])
			}

			trades, err := s.Trades(ctx, TradeFilter{})
			if err != nil || len(trades) != len(pnls) {
				return false
			}
			var got float64
			for i, tr := range trades {
				if i > 0 && tr.EntryTime.Before(trades[i-1].EntryTime) {
					return false
				}
				got += tr.RealizedPnL
			}
			return got == want
		},
		gen.SliceOfN(8, gen.IntRange(-5000, 5000)),
	))

	properties.TestingRun(t)
}
