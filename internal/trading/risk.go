package trading

import (
	"time"

	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

// RiskLimits are the per-trade and account-wide thresholds, in INR.
type RiskLimits struct {
	StopLossAmount        float64
	TrailingProfitTrigger float64
	TrailingDrawdown      float64
	MaxTradesPerDay       int
	MaxDailyLoss          float64
	AutoExit              utils.ClockTime
	Location              *time.Location
}

// DefaultRiskLimits returns the stock limits for a two-underlying watchlist.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		StopLossAmount:        2500,
		TrailingProfitTrigger: 5000,
		TrailingDrawdown:      2500,
		MaxTradesPerDay:       8,
		MaxDailyLoss:          10000,
		AutoExit:              utils.ClockTime{Hour: 15, Minute: 15},
		Location:              utils.IndiaLocation,
	}
}

// RiskLimiter evaluates exit and halt rules. It holds no state.
type RiskLimiter struct {
	limits RiskLimits
}

// NewRiskLimiter creates a limiter for limits.
func NewRiskLimiter(limits RiskLimits) RiskLimiter {
	if limits.Location == nil {
		limits.Location = utils.IndiaLocation
	}
	return RiskLimiter{limits: limits}
}

// StopLossTriggered reports whether the trade has lost the full stop amount.
func (r RiskLimiter) StopLossTriggered(t *models.Trade) bool {
	return t.PnL <= -r.limits.StopLossAmount
}

// TrailingShouldActivate reports whether an inactive trailing stop should arm.
func (r RiskLimiter) TrailingShouldActivate(t *models.Trade) bool {
	return !t.TrailingActive && t.PnL >= r.limits.TrailingProfitTrigger
}

// TrailingStopPrice returns the stop price implied by ltp.
func (r RiskLimiter) TrailingStopPrice(t *models.Trade, ltp float64) float64 {
	return ltp - r.limits.TrailingDrawdown/float64(t.LotSize)
}

// TrailingStopTriggered reports whether P&L has given back the drawdown from
// its peak since entry.
func (r RiskLimiter) TrailingStopTriggered(t *models.Trade) bool {
	return t.TrailingActive && t.PeakPnL-t.PnL >= r.limits.TrailingDrawdown
}

// DailyLossLimitReached reports whether realized loss has hit the daily cap.
func (r RiskLimiter) DailyLossLimitReached(realized float64) bool {
	return realized <= -r.limits.MaxDailyLoss
}

// MaxTradesReached reports whether the closed trade count has hit the cap.
func (r RiskLimiter) MaxTradesReached(closed int) bool {
	return closed >= r.limits.MaxTradesPerDay
}

// AutoExitDue reports whether now is at or past the auto-exit time of day.
func (r RiskLimiter) AutoExitDue(now time.Time) bool {
	local := now.In(r.limits.Location)
	return local.Hour()*60+local.Minute() >= r.limits.AutoExit.Minutes()
}

// AutoExitReason is the exit reason recorded for scheduled square-off.
func (r RiskLimiter) AutoExitReason() models.ExitReason {
	return models.ExitReason(string(models.ExitAutoExit) + " @ " + r.limits.AutoExit.String())
}
