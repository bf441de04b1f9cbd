package models

import "time"

// LivePosition is the per-instrument view of an open trade.
type LivePosition struct {
	LTP            float64  `json:"ltp"`
	Entry          float64  `json:"entry"`
	PnL            float64  `json:"pnl"`
	StopLoss       float64  `json:"stop_loss"`
	TrailingStop   *float64 `json:"trailing_sl"`
	TrailingActive bool     `json:"trailing_active"`
}

// BreakoutStatus describes both legs of one watchlist underlying.
type BreakoutStatus struct {
	CallBreakout float64   `json:"ce_breakout"`
	PutBreakout  float64   `json:"pe_breakout"`
	CallTraded   bool      `json:"ce_traded"`
	PutTraded    bool      `json:"pe_traded"`
	CandleTime   time.Time `json:"candle_time"`
}

// Snapshot is the read-only state handed to publishers after every tick.
// It never references engine-owned memory.
type Snapshot struct {
	Trades         map[InstrumentKey]*Trade       `json:"trades"`
	Watchlist      []string                       `json:"buildup_stocks"`
	RealizedPnL    float64                        `json:"total_pnl"`
	UnrealizedPnL  float64                        `json:"unrealized_pnl"`
	CombinedPnL    float64                        `json:"combined_pnl"`
	TotalTrades    int                            `json:"total_trades"`
	OpenTrades     int                            `json:"open_trades"`
	ClosedTrades   int                            `json:"closed_trades"`
	WinningTrades  int                            `json:"winning_trades"`
	DailyPnL       float64                        `json:"daily_pnl"`
	Mode           TradingMode                    `json:"mode"`
	IsLiveTrading  bool                           `json:"is_live_trading"`
	Connected      bool                           `json:"connected"`
	State          string                         `json:"state"`
	Tick           int                            `json:"tick"`
	LastUpdate     time.Time                      `json:"last_update"`
	LivePrices     map[InstrumentKey]LivePosition `json:"live_prices"`
	BreakoutStatus map[string]BreakoutStatus      `json:"breakout_status"`
}
