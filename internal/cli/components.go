package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/config"
	"breakout-trader/internal/notify"
	"breakout-trader/internal/scanner"
	"breakout-trader/internal/store"
	"breakout-trader/internal/trading"
	"breakout-trader/pkg/utils"
)

func (a *App) zerodha() *broker.Zerodha {
	cfg := a.Config
	return broker.NewZerodha(broker.ZerodhaConfig{
		APIKey:          cfg.Credentials.Kite.APIKey,
		APISecret:       cfg.Credentials.Kite.APISecret,
		AccessToken:     cfg.Credentials.Kite.AccessToken,
		UserID:          cfg.Credentials.Kite.UserID,
		SessionPath:     config.SessionFile(a.ConfigDir),
		OrdersPerSecond: cfg.Broker.OrdersPerSecond,
		QuotesPerSecond: cfg.Broker.QuotesPerSecond,
		QuoteBatchSize:  cfg.Broker.QuoteBatchSize,
		QuoteRetries:    cfg.Broker.QuoteRetries,
		Logger:          a.Logger,
	})
}

func (a *App) nseScanner() *scanner.NSEScanner {
	cfg := a.Config
	return scanner.NewNSEScanner(scanner.NSEConfig{
		URL:          cfg.Scanner.URL,
		MinChangePct: cfg.Scanner.MinChangePct,
		MinVolume:    cfg.Scanner.MinVolume,
		MinPrice:     cfg.Risk.MinStockPrice,
		MaxResults:   cfg.Risk.MaxInstruments,
		Timeout:      cfg.Scanner.Timeout,
		Logger:       a.Logger,
	})
}

func (a *App) watchlistBuilder(quotes scanner.QuoteSource, chain scanner.ChainSource) *scanner.WatchlistBuilder {
	return scanner.NewWatchlistBuilder(scanner.WatchlistConfig{
		Quotes:   quotes,
		Chain:    chain,
		Interval: a.Config.Scanner.CandleInterval,
		Lookback: a.Config.Scanner.CandleLookback,
		Logger:   a.Logger,
	})
}

func (a *App) marketSession() (*trading.MarketSession, error) {
	cfg := a.Config.Monitor
	open, err := utils.ParseClock(cfg.SessionOpen)
	if err != nil {
		return nil, err
	}
	closeAt, err := utils.ParseClock(cfg.SessionClose)
	if err != nil {
		return nil, err
	}
	session := trading.NewMarketSession(a.Config.Location(), open, closeAt)
	if err := session.AddHolidays(cfg.Holidays); err != nil {
		return nil, fmt.Errorf("monitor.holidays: %w", err)
	}
	return session, nil
}

func (a *App) riskLimits() (trading.RiskLimits, error) {
	cfg := a.Config
	autoExit, err := utils.ParseClock(cfg.Monitor.AutoExitTime)
	if err != nil {
		return trading.RiskLimits{}, err
	}
	return trading.RiskLimits{
		StopLossAmount:        cfg.Risk.StopLossAmount,
		TrailingProfitTrigger: cfg.Risk.TrailingProfitTrigger,
		TrailingDrawdown:      cfg.Risk.TrailingDrawdown,
		MaxTradesPerDay:       cfg.Risk.MaxTradesPerDay,
		MaxDailyLoss:          cfg.Risk.MaxDailyLoss,
		AutoExit:              autoExit,
		Location:              cfg.Location(),
	}, nil
}

func (a *App) openStore() (*store.SQLiteStore, error) {
	path := a.Config.Store.Path
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return store.NewSQLiteStore(path)
}

func (a *App) notifier() *notify.Notifier {
	cfg := a.Config
	var channels []notify.Channel
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookChannel(cfg.Notify.WebhookURL))
	}
	if token := cfg.Credentials.Telegram.BotToken; token != "" && cfg.Notify.TelegramChatID != "" {
		channels = append(channels, notify.NewTelegramChannel(token, cfg.Notify.TelegramChatID))
	}
	return notify.New(notify.Config{
		Level:    notify.Level(cfg.Notify.Level),
		Channels: channels,
		Logger:   a.Logger,
	})
}
