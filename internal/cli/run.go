package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/models"
	"breakout-trader/internal/notify"
	"breakout-trader/internal/resilience"
	"breakout-trader/internal/scanner"
	"breakout-trader/internal/security"
	"breakout-trader/internal/store"
	"breakout-trader/internal/stream"
	"breakout-trader/internal/trading"
	"breakout-trader/internal/web"
	"breakout-trader/pkg/utils"
)

func newRunCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Scan, build the watchlist and run the breakout monitor",
		Long: `Run one trading session: select candidates, resolve ATM option legs for the
monthly expiry, then monitor them until the market closes, a risk limit stops
the session, the auto-exit time is reached or Ctrl+C is pressed.

Open positions are not closed on Ctrl+C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if live, _ := cmd.Flags().GetBool("live"); live {
				app.Config.Trading.Mode = string(models.ModeLive)
			}
			if err := app.Config.Validate(); err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return app.run(ctx, cmd)
		},
	}
	cmd.Flags().Bool("live", false, "place real orders (overrides trading.mode)")
	return cmd
}

func (a *App) run(ctx context.Context, cmd *cobra.Command) error {
	output := NewOutput(cmd)
	cfg := a.Config
	logger := a.Logger
	startedAt := time.Now()

	session, err := a.marketSession()
	if err != nil {
		return err
	}
	if !session.IsOpen(startedAt) {
		output.Warning("Market is closed. Next session opens %s", session.NextOpen(startedAt).Format("Mon 02 Jan 15:04 MST"))
		return nil
	}
	limits, err := a.riskLimits()
	if err != nil {
		return err
	}

	z := a.zerodha()
	if err := z.Authenticate(ctx); err != nil {
		output.Error("Kite session unavailable: %s", security.MaskSecrets(err.Error()))
		return err
	}

	health := resilience.NewHealthChecker(resilience.HealthCheckerConfig{})

	var marketData trading.MarketDataClient = z
	if cfg.Broker.Streaming {
		sq := broker.NewStreamingQuotes(broker.StreamingQuotesConfig{
			APIKey:      cfg.Credentials.Kite.APIKey,
			AccessToken: z.AccessToken(),
			Fallback:    z,
			Logger:      logger,
		})
		if err := sq.Connect(ctx); err != nil {
			logger.Warn().Err(err).Msg("Streaming quotes unavailable, using REST")
		} else {
			defer sq.Close()
			marketData = sq
			health.Register("ticker", func(context.Context) resilience.ComponentHealth {
				if sq.IsConnected() {
					return resilience.ComponentHealth{Status: resilience.HealthStatusHealthy}
				}
				return resilience.ComponentHealth{Status: resilience.HealthStatusDegraded, Message: "reconnecting, quotes via REST"}
			})
		}
	}

	// Candidates and watchlist.
	master := broker.NewInstrumentMaster(z)
	if err := master.Load(ctx); err != nil {
		return fmt.Errorf("loading instrument master: %w", err)
	}
	nse := a.nseScanner()
	candidates, err := nse.Candidates(ctx)
	if err != nil {
		return err
	}
	printCandidates(output, nse.LastSource(), candidates)

	expiry := scanner.MonthlyExpiry(startedAt)
	watchlist, err := a.watchlistBuilder(z, master).Build(ctx, candidates, expiry)
	if err != nil {
		return err
	}
	output.Println()
	printWatchlist(output, watchlist)
	output.Println()

	// Execution.
	var gateway trading.OrderGateway
	var paper *broker.PaperGateway
	if cfg.IsLive() {
		gateway = z
		output.Warning("LIVE MODE: orders are sent to the exchange")
	} else {
		paper = broker.NewPaperGateway(broker.PaperGatewayConfig{
			MarketData: marketData,
			FillDelay:  cfg.Paper.FillDelay,
			Logger:     logger,
		})
		gateway = paper
	}

	// Observers.
	var wg conc.WaitGroup
	defer wg.Wait()

	hubCtx, stopHub := context.WithCancel(context.WithoutCancel(ctx))
	defer stopHub()
	hub := stream.NewHubWithConfig(stream.HubConfig{Logger: logger})
	hub.Start(hubCtx)
	defer hub.Stop()
	health.Register("monitor", resilience.FreshnessCheck(func() (time.Time, bool) {
		snap, ok := hub.Latest()
		return snap.LastUpdate, ok
	}, 3*cfg.Monitor.TickInterval+5*time.Second, nil))

	var recorder trading.TradeRecorder
	st, err := a.openStore()
	if err != nil {
		logger.Warn().Err(err).Msg("Trade record unavailable")
	} else {
		defer st.Close()
		recorder = st
		health.Register("store", resilience.PingCheck(st.Ping))
	}

	if cfg.Redis.URL != "" {
		pub, err := stream.NewRedisPublisher(stream.RedisConfig{
			URL:     cfg.Redis.URL,
			Channel: cfg.Redis.Channel,
			Logger:  logger,
		})
		if err == nil {
			err = pub.Ping(ctx)
		}
		if err != nil {
			logger.Warn().Err(err).Msg("Redis mirror disabled")
		} else {
			health.Register("redis", resilience.PingCheck(pub.Ping))
			sub := hub.Subscribe("redis")
			wg.Go(func() {
				pub.Run(hubCtx, sub)
				pub.Close()
			})
		}
	}

	notifier := a.notifier()
	if notifier.Enabled() {
		sub := hub.Subscribe("notify")
		wg.Go(func() { notifier.Run(hubCtx, sub) })
	}

	if cfg.Server.Enabled {
		var trades web.TradeQuerier
		if st != nil {
			trades = st
		}
		srv := web.NewServer(web.ServerConfig{
			Addr:      cfg.ServerAddr(),
			Snapshots: hub,
			Trades:    trades,
			Health:    health,
			Logger:    logger,
		})
		srv.Start(hubCtx)
		output.Info("Dashboard: http://%s", cfg.ServerAddr())
	}

	monitor, err := trading.NewMonitor(trading.MonitorConfig{
		Watchlist:    watchlist,
		Limits:       limits,
		Mode:         cfg.Mode(),
		Strategy:     cfg.Trading.StrategyLabel,
		TickInterval: cfg.Monitor.TickInterval,
		Session:      session,
		Gateway:      gateway,
		MarketData:   marketData,
		Publisher:    hub,
		Recorder:     recorder,
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	output.Bold("Monitoring %d instruments, expiry %s (%s mode). Ctrl+C to stop.", 2*len(watchlist), scanner.FormatExpiry(expiry), cfg.Mode())
	monitor.Run(ctx)
	summary := monitor.Summary()

	// The context may already be cancelled; reporting still needs the broker.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if st != nil {
		rec := store.SessionRecord{
			Mode:          summary.Mode,
			State:         string(summary.State),
			StartedAt:     startedAt,
			EndedAt:       time.Now(),
			Ticks:         summary.Ticks,
			TotalTrades:   summary.TotalTrades,
			ClosedTrades:  summary.ClosedTrades,
			WinningTrades: summary.WinningTrades,
			RealizedPnL:   summary.RealizedPnL,
		}
		if summary.Err != nil {
			rec.Error = summary.Err.Error()
		}
		if err := st.RecordSession(reportCtx, rec); err != nil {
			logger.Warn().Err(err).Msg("Session not recorded")
		}
	}

	if notifier.Enabled() {
		if err := notifier.Send(reportCtx, notify.SessionNotification(summary, time.Now())); err != nil {
			logger.Warn().Err(err).Msg("Session summary not delivered")
		}
	}

	output.Println()
	printSummary(output, summary)

	var orders []models.Order
	if paper != nil {
		orders, err = paper.Orders(reportCtx)
	} else {
		orders, err = z.Orders(reportCtx)
	}
	if err != nil {
		logger.Warn().Err(err).Msg("Order book unavailable")
	} else {
		output.Println()
		printOrders(output, orders)
	}

	if summary.State == trading.StateStoppedFatalError {
		return fmt.Errorf("monitor stopped on error: %w", summary.Err)
	}
	return nil
}

func printSummary(output *Output, s trading.Summary) {
	output.Bold("Session summary")
	output.Printf("  Mode:           %s\n", s.Mode)
	output.Printf("  Final state:    %s\n", s.State)
	output.Printf("  Ticks:          %d\n", s.Ticks)
	output.Printf("  Trades:         %d (%d open, %d closed, %d winners)\n", s.TotalTrades, s.OpenTrades, s.ClosedTrades, s.WinningTrades)
	output.Printf("  Realized P&L:   %s\n", output.PnL(s.RealizedPnL, utils.FormatPnL(s.RealizedPnL)))
	if s.OpenTrades > 0 {
		output.Warning("  %d position(s) remain open", s.OpenTrades)
	}
	if s.Err != nil {
		output.Error("  Error: %v", s.Err)
	}
}

func printOrders(output *Output, orders []models.Order) {
	output.Bold("Order book (%d)", len(orders))
	for _, o := range orders {
		output.Printf("  %-20s %-5s %-24s %6d @ %-10s %s\n",
			o.ID, o.Side, o.Symbol, o.Quantity, utils.FormatPrice(o.AveragePrice), o.Status)
	}
}
