package trading

import (
	"time"

	"breakout-trader/internal/models"
)

// buildSnapshot assembles an observer copy of the engine state. Nothing in
// the result aliases ledger memory.
func buildSnapshot(ledger *Ledger, watchlist []models.WatchlistEntry, levels *BreakoutLevels, mode models.TradingMode, state State, tick int, at time.Time) models.Snapshot {
	trades := ledger.All()
	snap := models.Snapshot{
		Trades:         trades,
		Watchlist:      make([]string, 0, len(watchlist)),
		Mode:           mode,
		IsLiveTrading:  mode.IsLive(),
		Connected:      state == StateRunning,
		State:          string(state),
		Tick:           tick,
		LastUpdate:     at,
		DailyPnL:       ledger.Realized(),
		LivePrices:     make(map[models.InstrumentKey]models.LivePosition),
		BreakoutStatus: make(map[string]models.BreakoutStatus, len(watchlist)),
	}

	for key, t := range trades {
		if t.IsOpen() {
			snap.OpenTrades++
			snap.UnrealizedPnL += t.PnL
			snap.LivePrices[key] = models.LivePosition{
				LTP:            t.LTP,
				Entry:          t.EntryPrice,
				PnL:            t.PnL,
				StopLoss:       t.StopLoss,
				TrailingStop:   t.TrailingStop,
				TrailingActive: t.TrailingActive,
			}
			continue
		}
		snap.ClosedTrades++
		snap.RealizedPnL += t.RealizedPnL
		if t.RealizedPnL > 0 {
			snap.WinningTrades++
		}
	}
	snap.TotalTrades = snap.OpenTrades + snap.ClosedTrades
	snap.CombinedPnL = snap.RealizedPnL + snap.UnrealizedPnL

	for _, w := range watchlist {
		snap.Watchlist = append(snap.Watchlist, w.Symbol)
		callKey, putKey := w.Key(models.Call), w.Key(models.Put)
		callLevel, _ := levels.Lookup(callKey)
		putLevel, _ := levels.Lookup(putKey)
		snap.BreakoutStatus[w.Symbol] = models.BreakoutStatus{
			CallBreakout: callLevel,
			PutBreakout:  putLevel,
			CallTraded:   ledger.Traded(callKey),
			PutTraded:    ledger.Traded(putKey),
			CandleTime:   w.Call.CandleTime,
		}
	}
	return snap
}
