package trading

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/logging"
	"breakout-trader/internal/metrics"
	"breakout-trader/internal/models"
)

// State is the monitor loop state.
type State string

const (
	StateRunning               State = "RUNNING"
	StateMarketClosed          State = "MARKET_CLOSED"
	StateStoppedDailyLossLimit State = "STOPPED_DAILY_LOSS_LIMIT"
	StateStoppedMaxTrades      State = "STOPPED_MAX_TRADES"
	StateStoppedAutoExit       State = "STOPPED_AUTO_EXIT"
	StateStoppedNoInstruments  State = "STOPPED_NO_INSTRUMENTS"
	StateStoppedUserInterrupt  State = "STOPPED_USER_INTERRUPT"
	StateStoppedFatalError     State = "STOPPED_FATAL_ERROR"
)

// AllStates lists every monitor state.
var AllStates = []State{
	StateRunning,
	StateMarketClosed,
	StateStoppedDailyLossLimit,
	StateStoppedMaxTrades,
	StateStoppedAutoExit,
	StateStoppedNoInstruments,
	StateStoppedUserInterrupt,
	StateStoppedFatalError,
}

// MonitorConfig wires a Monitor.
type MonitorConfig struct {
	Watchlist    []models.WatchlistEntry
	Limits       RiskLimits
	Mode         models.TradingMode
	Strategy     string
	TickInterval time.Duration
	Session      *MarketSession

	Gateway    OrderGateway
	MarketData MarketDataClient
	Publisher  StatePublisher // optional
	Recorder   TradeRecorder  // optional

	Clock  func() time.Time
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger zerolog.Logger
}

// Summary is the end-of-session report.
type Summary struct {
	Mode          models.TradingMode
	State         State
	Ticks         int
	TotalTrades   int
	OpenTrades    int
	ClosedTrades  int
	WinningTrades int
	RealizedPnL   float64
	Err           error
}

// Monitor is the single control loop that owns the ledger. Run must not be
// called concurrently.
type Monitor struct {
	cfg       MonitorConfig
	levels    *BreakoutLevels
	ledger    *Ledger
	risk      RiskLimiter
	processor *Processor
	logger    zerolog.Logger

	state      State
	ticks      int
	autoExited bool
	lastUpdate time.Time
	fatal      error
}

// NewMonitor validates cfg and builds the engine components.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if len(cfg.Watchlist) == 0 {
		return nil, errors.ErrEmptyWatchlist
	}
	if cfg.Gateway == nil || cfg.MarketData == nil {
		return nil, fmt.Errorf("monitor requires an order gateway and a market data client")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	if cfg.Session == nil {
		cfg.Session = DefaultMarketSession()
	}
	if cfg.Limits.Location == nil {
		cfg.Limits.Location = cfg.Session.Location()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Sleep == nil {
		cfg.Sleep = sleepContext
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModePaper
	}

	logger := logging.WithOperation(cfg.Logger, "monitor")
	levels := NewBreakoutLevels(cfg.Watchlist)
	ledger := NewLedger(LedgerConfig{
		StopLossAmount: cfg.Limits.StopLossAmount,
		Mode:           cfg.Mode,
		Strategy:       cfg.Strategy,
		Clock:          cfg.Clock,
	})
	risk := NewRiskLimiter(cfg.Limits)

	return &Monitor{
		cfg:       cfg,
		levels:    levels,
		ledger:    ledger,
		risk:      risk,
		processor: NewProcessor(cfg.Watchlist, levels, ledger, risk, cfg.Gateway, cfg.Mode, logger),
		logger:    logger,
	}, nil
}

// Ledger returns the position ledger. It must only be read while Run is not executing.
func (m *Monitor) Ledger() *Ledger {
	return m.ledger
}

// Err returns the error that stopped the loop in StateStoppedFatalError.
func (m *Monitor) Err() error {
	return m.fatal
}

// Run executes cycles until a terminal state is reached. Cancelling ctx stops
// the loop before the next tick; a tick in progress always completes. Open
// positions are left as-is on interrupt.
func (m *Monitor) Run(ctx context.Context) (state State) {
	m.setState(StateRunning)
	defer func() {
		if r := recover(); r != nil {
			m.fatal = fmt.Errorf("panic in monitor loop: %v", r)
			m.logger.Error().Str("stack", string(debug.Stack())).Err(m.fatal).Msg("Monitor loop panicked")
			state = StateStoppedFatalError
		}
		m.setState(state)
		m.publishFinal(context.WithoutCancel(ctx))
		m.logger.Info().Str("state", string(state)).Int("ticks", m.ticks).Float64("realized", m.ledger.Realized()).Msg("Monitor stopped")
	}()

	for {
		if ctx.Err() != nil {
			return StateStoppedUserInterrupt
		}
		if next := m.checkTermination(ctx); next != StateRunning {
			return next
		}

		instruments := m.instruments()
		if len(instruments) == 0 {
			return StateStoppedNoInstruments
		}

		if err := m.tick(context.WithoutCancel(ctx), instruments); err != nil {
			m.fatal = err
			m.logger.Error().Err(err).Msg("Tick failed")
			return StateStoppedFatalError
		}
		m.publish(context.WithoutCancel(ctx))

		if err := m.cfg.Sleep(ctx, m.cfg.TickInterval); err != nil {
			return StateStoppedUserInterrupt
		}
	}
}

func (m *Monitor) checkTermination(ctx context.Context) State {
	now := m.cfg.Clock()

	if !m.cfg.Session.IsOpen(now) {
		m.logger.Info().Time("now", now).Msg("Market closed")
		return StateMarketClosed
	}

	if !m.autoExited && m.risk.AutoExitDue(now) {
		m.autoExited = true
		closed := m.CloseAllPositions(context.WithoutCancel(ctx), m.risk.AutoExitReason())
		m.logger.Info().Int("closed", closed).Msg("Auto-exit complete")
		return StateStoppedAutoExit
	}

	if m.risk.DailyLossLimitReached(m.ledger.Realized()) {
		m.logger.Warn().Float64("realized", m.ledger.Realized()).Msg("Daily loss limit reached")
		return StateStoppedDailyLossLimit
	}

	if m.risk.MaxTradesReached(m.ledger.ClosedCount()) {
		m.logger.Warn().Int("closed", m.ledger.ClosedCount()).Msg("Max daily trades reached")
		return StateStoppedMaxTrades
	}

	return StateRunning
}

// instruments returns the price set: untraded watchlist legs plus open trades.
func (m *Monitor) instruments() []models.Instrument {
	var out []models.Instrument
	for _, key := range m.ledger.UntradedKeys(m.cfg.Watchlist) {
		item := m.processor.items[key]
		out = append(out, item.entry.Instrument(item.kind))
	}
	for _, key := range m.ledger.OpenKeys() {
		t, _ := m.ledger.Trade(key)
		out = append(out, t.Instrument())
	}
	return out
}

func (m *Monitor) tick(ctx context.Context, instruments []models.Instrument) error {
	start := time.Now()
	m.ticks++

	prices, err := m.cfg.MarketData.GetLastPrices(ctx, instruments)
	if err != nil {
		m.logger.Warn().Err(err).Int("instruments", len(instruments)).Msg("Price fetch failed, treating all quotes as unavailable")
		prices = models.Prices{}
	}

	res, err := m.processor.ProcessTick(ctx, prices)
	for _, t := range res.Exits {
		m.record(ctx, t)
	}
	if err != nil {
		return err
	}

	metrics.RecordTick(time.Since(start), res.Unavailable)
	logging.LogTick(m.logger, m.ticks, len(prices), len(res.Entries), len(res.Exits), len(res.Failures), time.Since(start))
	return nil
}

// CloseAllPositions sells every open trade and closes it with reason. Prices
// come from one batched fetch, falling back to the last known LTP and then the
// entry price. A trade whose exit order fails stays open. Returns the number
// of trades closed.
func (m *Monitor) CloseAllPositions(ctx context.Context, reason models.ExitReason) int {
	keys := m.ledger.OpenKeys()
	if len(keys) == 0 {
		return 0
	}
	m.logger.Info().Str("reason", string(reason)).Int("open", len(keys)).Msg("Closing all positions")

	instruments := make([]models.Instrument, 0, len(keys))
	for _, key := range keys {
		t, _ := m.ledger.Trade(key)
		instruments = append(instruments, t.Instrument())
	}
	prices, err := m.cfg.MarketData.GetLastPrices(ctx, instruments)
	if err != nil {
		m.logger.Warn().Err(err).Msg("Price fetch for close-all failed, using last known prices")
		prices = models.Prices{}
	}

	closed := 0
	for _, key := range keys {
		t, _ := m.ledger.Trade(key)
		ltp, ok := prices.Get(key)
		if !ok {
			ltp = t.LTP
			if ltp <= 0 {
				ltp = t.EntryPrice
			}
		}
		m.ledger.UpdateLive(key, ltp)

		trade, err := m.processor.exit(ctx, t, ltp, reason)
		if err != nil {
			m.logger.Error().Err(err).Str("key", string(key)).Msg("Failed to close position")
			continue
		}
		m.record(ctx, trade)
		closed++
	}
	return closed
}

// Snapshot returns the current observer view. LastUpdate never goes backwards.
func (m *Monitor) Snapshot() models.Snapshot {
	now := m.cfg.Clock()
	if now.Before(m.lastUpdate) {
		now = m.lastUpdate
	}
	m.lastUpdate = now
	snap := buildSnapshot(m.ledger, m.cfg.Watchlist, m.levels, m.cfg.Mode, m.state, m.ticks, now)
	metrics.SetPnL(snap.RealizedPnL, snap.UnrealizedPnL, snap.OpenTrades)
	return snap
}

// Summary returns the session report.
func (m *Monitor) Summary() Summary {
	snap := buildSnapshot(m.ledger, m.cfg.Watchlist, m.levels, m.cfg.Mode, m.state, m.ticks, m.lastUpdate)
	return Summary{
		Mode:          m.cfg.Mode,
		State:         m.state,
		Ticks:         m.ticks,
		TotalTrades:   snap.TotalTrades,
		OpenTrades:    snap.OpenTrades,
		ClosedTrades:  snap.ClosedTrades,
		WinningTrades: snap.WinningTrades,
		RealizedPnL:   m.ledger.Realized(),
		Err:           m.fatal,
	}
}

func (m *Monitor) publish(ctx context.Context) {
	if m.cfg.Publisher == nil {
		return
	}
	if err := m.cfg.Publisher.Publish(ctx, m.Snapshot()); err != nil {
		m.logger.Debug().Err(err).Msg("Snapshot publish failed")
	}
}

// publishFinal publishes the terminal snapshot; a misbehaving publisher must
// not turn a clean stop into a crash.
func (m *Monitor) publishFinal(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().Interface("panic", r).Msg("Final snapshot publish panicked")
		}
	}()
	m.publish(ctx)
}

func (m *Monitor) record(ctx context.Context, t *models.Trade) {
	if m.cfg.Recorder == nil {
		return
	}
	if err := m.cfg.Recorder.RecordTrade(ctx, t.Clone()); err != nil {
		m.logger.Error().Err(err).Str("key", string(t.Key)).Msg("Failed to record trade")
	}
}

func (m *Monitor) setState(s State) {
	m.state = s
	all := make([]string, len(AllStates))
	for i, st := range AllStates {
		all[i] = string(st)
	}
	metrics.SetMonitorState(string(s), all)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
