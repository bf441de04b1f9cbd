// Package notify pushes trade entries, exits and the session summary to
// external channels such as a webhook or a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"breakout-trader/internal/logging"
	"breakout-trader/internal/models"
	"breakout-trader/internal/trading"
	"breakout-trader/pkg/utils"
)

// Type identifies what a notification is about.
type Type string

const (
	TypeEntry   Type = "entry"
	TypeExit    Type = "exit"
	TypeSession Type = "session"
)

// Level selects which notification types are sent.
type Level string

const (
	LevelAll     Level = "all"
	LevelTrades  Level = "trades"
	LevelSummary Level = "summary"
)

// Allows reports whether t is sent at this level.
func (l Level) Allows(t Type) bool {
	switch l {
	case LevelTrades:
		return t == TypeEntry || t == TypeExit
	case LevelSummary:
		return t == TypeSession
	default:
		return true
	}
}

// Notification is one message to deliver.
type Notification struct {
	Type      Type           `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Channel delivers notifications to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Config wires a Notifier.
type Config struct {
	Level    Level
	Channels []Channel
	// Limit caps deliveries per second across channels; 0 means one per second.
	Limit  rate.Limit
	Burst  int
	Logger zerolog.Logger
}

// Notifier fans notifications out to its channels. A failing channel is
// logged and does not stop delivery to the others.
type Notifier struct {
	mu       sync.Mutex
	level    Level
	channels []Channel
	limiter  *rate.Limiter
	logger   zerolog.Logger
}

// New creates a Notifier.
func New(cfg Config) *Notifier {
	if cfg.Level == "" {
		cfg.Level = LevelAll
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Notifier{
		level:    cfg.Level,
		channels: cfg.Channels,
		limiter:  rate.NewLimiter(cfg.Limit, cfg.Burst),
		logger:   logging.WithOperation(cfg.Logger, "notify"),
	}
}

// Enabled reports whether any channel is configured.
func (n *Notifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.channels) > 0
}

// Send delivers msg to every channel if its type is allowed. It returns the
// number of channels that failed, wrapped in an error when non-zero.
func (n *Notifier) Send(ctx context.Context, msg Notification) error {
	if !n.level.Allows(msg.Type) {
		return nil
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	n.mu.Lock()
	channels := append([]Channel(nil), n.channels...)
	n.mu.Unlock()

	failed := 0
	for _, ch := range channels {
		if err := n.limiter.Wait(ctx); err != nil {
			return err
		}
		if err := ch.Send(ctx, msg); err != nil {
			failed++
			n.logger.Warn().Err(err).Str("channel", ch.Name()).Str("type", string(msg.Type)).Msg("Notification failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d notification channels failed", failed, len(channels))
	}
	return nil
}

// EntryNotification describes a newly opened trade.
func EntryNotification(t *models.Trade) Notification {
	return Notification{
		Type:  TypeEntry,
		Title: fmt.Sprintf("BUY %s", t.TradingSymbol),
		Message: fmt.Sprintf("%s %s breakout: %d @ %s, stop loss %s",
			t.Underlying, t.Kind.Suffix(), t.LotSize, utils.FormatPrice(t.EntryPrice), utils.FormatPrice(t.StopLoss)),
		Data: map[string]any{
			"symbol":   t.TradingSymbol,
			"quantity": t.LotSize,
			"price":    t.EntryPrice,
			"mode":     t.Mode,
			"order_id": t.OrderID,
		},
		Timestamp: t.EntryTime,
	}
}

// ExitNotification describes a closed trade.
func ExitNotification(t *models.Trade) Notification {
	return Notification{
		Type:  TypeExit,
		Title: fmt.Sprintf("SELL %s (%s)", t.TradingSymbol, t.ExitReason),
		Message: fmt.Sprintf("Exit %s → %s after %s, P&L %s",
			utils.FormatPrice(t.EntryPrice), utils.FormatPrice(t.ExitPrice),
			t.HoldDuration(t.ExitTime).Round(time.Second), utils.FormatPnL(t.RealizedPnL)),
		Data: map[string]any{
			"symbol":       t.TradingSymbol,
			"quantity":     t.LotSize,
			"entry":        t.EntryPrice,
			"exit":         t.ExitPrice,
			"realized_pnl": t.RealizedPnL,
			"reason":       t.ExitReason,
		},
		Timestamp: t.ExitTime,
	}
}

// SessionNotification summarises a finished session.
func SessionNotification(s trading.Summary, at time.Time) Notification {
	msg := fmt.Sprintf("%s: %d trades (%d closed, %d winners), realized P&L %s",
		s.State, s.TotalTrades, s.ClosedTrades, s.WinningTrades, utils.FormatPnL(s.RealizedPnL))
	if s.OpenTrades > 0 {
		msg += fmt.Sprintf(", %d position(s) still open", s.OpenTrades)
	}
	if s.Err != nil {
		msg += "\nError: " + s.Err.Error()
	}
	return Notification{
		Type:    TypeSession,
		Title:   fmt.Sprintf("Session ended (%s)", s.Mode),
		Message: msg,
		Data: map[string]any{
			"state":        s.State,
			"ticks":        s.Ticks,
			"total_trades": s.TotalTrades,
			"realized_pnl": s.RealizedPnL,
		},
		Timestamp: at,
	}
}
