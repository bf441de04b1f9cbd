// Package config provides configuration management for the trading application.
package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"breakout-trader/internal/errors"
	"breakout-trader/internal/models"
	"breakout-trader/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Trading     TradingConfig `mapstructure:"trading"`
	Risk        RiskConfig    `mapstructure:"risk"`
	Monitor     MonitorConfig `mapstructure:"monitor"`
	Scanner     ScannerConfig `mapstructure:"scanner"`
	Paper       PaperConfig   `mapstructure:"paper"`
	Broker      BrokerConfig  `mapstructure:"broker"`
	Server      ServerConfig  `mapstructure:"server"`
	Redis       RedisConfig   `mapstructure:"redis"`
	Store       StoreConfig   `mapstructure:"store"`
	Notify      NotifyConfig  `mapstructure:"notify"`
	Logging     LoggingConfig `mapstructure:"logging"`
	Credentials Credentials   `mapstructure:"-"` // Loaded separately

	// DotenvErrors lists .env files that exist but could not be loaded.
	DotenvErrors []error `mapstructure:"-" json:"-"`
}

// TradingConfig holds trading-related configuration.
type TradingConfig struct {
	Mode          string `mapstructure:"mode"` // "live", "paper"
	StrategyLabel string `mapstructure:"strategy_label"`
}

// RiskConfig holds per-trade and account-wide limits. Amounts are in INR per position.
type RiskConfig struct {
	StopLossAmount        float64 `mapstructure:"stop_loss_amount"`
	TrailingProfitTrigger float64 `mapstructure:"trailing_profit_trigger"`
	TrailingDrawdown      float64 `mapstructure:"trailing_drawdown"`
	MaxTradesPerDay       int     `mapstructure:"max_trades_per_day"`
	MaxDailyLoss          float64 `mapstructure:"max_daily_loss"`
	MaxInstruments        int     `mapstructure:"max_instruments"`
	MinStockPrice         float64 `mapstructure:"min_stock_price"`
}

// MonitorConfig holds the monitor loop schedule.
type MonitorConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	AutoExitTime string        `mapstructure:"auto_exit_time"`
	SessionOpen  string        `mapstructure:"session_open"`
	SessionClose string        `mapstructure:"session_close"`
	Timezone     string        `mapstructure:"timezone"`
	Holidays     []string      `mapstructure:"holidays"` // YYYY-MM-DD
}

// ScannerConfig holds candidate selection settings.
type ScannerConfig struct {
	URL            string        `mapstructure:"url"`
	MinChangePct   float64       `mapstructure:"min_change_pct"`
	MinVolume      int64         `mapstructure:"min_volume"`
	Timeout        time.Duration `mapstructure:"timeout"`
	CandleInterval string        `mapstructure:"candle_interval"`
	CandleLookback time.Duration `mapstructure:"candle_lookback"`
}

// PaperConfig holds paper execution settings.
type PaperConfig struct {
	FillDelay time.Duration `mapstructure:"fill_delay"`
}

// BrokerConfig holds Kite Connect client settings.
type BrokerConfig struct {
	OrdersPerSecond float64 `mapstructure:"orders_per_second"`
	QuotesPerSecond float64 `mapstructure:"quotes_per_second"`
	QuoteBatchSize  int     `mapstructure:"quote_batch_size"`
	QuoteRetries    int     `mapstructure:"quote_retries"`
	// Streaming serves quotes from the Kite websocket, falling back to REST.
	Streaming bool `mapstructure:"streaming"`
}

// ServerConfig holds the HTTP/WebSocket server settings.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// RedisConfig holds the optional snapshot bus.
type RedisConfig struct {
	URL     string `mapstructure:"url"`
	Channel string `mapstructure:"channel"`
}

// StoreConfig holds the trade record location.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// NotifyConfig holds trade notification channels. The Telegram bot token
// lives in credentials.toml.
type NotifyConfig struct {
	// Level is "all", "trades" or "summary".
	Level          string `mapstructure:"level"`
	WebhookURL     string `mapstructure:"webhook_url"`
	TelegramChatID string `mapstructure:"telegram_chat_id"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Credentials holds API credentials.
type Credentials struct {
	Kite     KiteCredentials     `mapstructure:"kite"`
	Telegram TelegramCredentials `mapstructure:"telegram"`
}

// TelegramCredentials holds the notification bot token.
type TelegramCredentials struct {
	BotToken string `mapstructure:"bot_token"`
}

// KiteCredentials holds Kite Connect API credentials.
type KiteCredentials struct {
	APIKey      string `mapstructure:"api_key"`
	APISecret   string `mapstructure:"api_secret"`
	AccessToken string `mapstructure:"access_token"`
	UserID      string `mapstructure:"user_id"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/breakout-trader"
	}
	return filepath.Join(home, ".config", "breakout-trader")
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("trading.mode", "paper")
	v.SetDefault("trading.strategy_label", "ATM Option Breakout")

	v.SetDefault("risk.stop_loss_amount", 2500.0)
	v.SetDefault("risk.trailing_profit_trigger", 5000.0)
	v.SetDefault("risk.trailing_drawdown", 2500.0)
	v.SetDefault("risk.max_trades_per_day", 8)
	v.SetDefault("risk.max_daily_loss", 10000.0)
	v.SetDefault("risk.max_instruments", 2)
	v.SetDefault("risk.min_stock_price", 100.0)

	v.SetDefault("monitor.tick_interval", "2s")
	v.SetDefault("monitor.auto_exit_time", "15:15")
	v.SetDefault("monitor.session_open", "09:15")
	v.SetDefault("monitor.session_close", "15:30")
	v.SetDefault("monitor.timezone", "Asia/Kolkata")
	v.SetDefault("monitor.holidays", []string{})

	v.SetDefault("scanner.url", "https://www.nseindia.com/api/equity-stockIndices?index=SECURITIES%20IN%20F%26O")
	v.SetDefault("scanner.min_change_pct", 0.2)
	v.SetDefault("scanner.min_volume", 100000)
	v.SetDefault("scanner.timeout", "10s")
	v.SetDefault("scanner.candle_interval", "3minute")
	v.SetDefault("scanner.candle_lookback", "15m")

	v.SetDefault("paper.fill_delay", "500ms")

	v.SetDefault("broker.orders_per_second", 10.0)
	v.SetDefault("broker.quotes_per_second", 1.0)
	v.SetDefault("broker.quote_batch_size", 500)
	v.SetDefault("broker.quote_retries", 2)
	v.SetDefault("broker.streaming", false)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 10000)

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.channel", "breakout:snapshot")

	v.SetDefault("store.path", filepath.Join(configDir, "trades.db"))

	v.SetDefault("notify.level", "all")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.telegram_chat_id", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.file", true)
	v.SetDefault("logging.file_path", filepath.Join(configDir, "logs", "trader.log"))
	v.SetDefault("logging.max_size", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age", 30)
}

// Default returns the built-in configuration without reading any files.
func Default() *Config {
	v := viper.New()
	setDefaults(v, DefaultConfigDir())
	cfg := &Config{}
	// Unmarshal of defaults alone cannot fail on these types.
	_ = v.Unmarshal(cfg)
	return cfg
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	// .env next to the config files, then the working directory; neither is required.
	dotenvErrs := loadDotenv(filepath.Join(configDir, ".env"), ".env")

	cfg := &Config{}

	if err := loadConfigFile(configDir, cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	cfg.DotenvErrors = dotenvErrs
	return cfg, nil
}

// loadDotenv loads each file in order. Missing files are skipped; files that
// cannot be read or parsed are returned so the caller can report them.
func loadDotenv(paths ...string) []error {
	var errs []error
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("%s: %w", p, err))
		}
	}
	return errs
}

func loadConfigFile(configDir string, cfg *Config) error {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v, configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
		// First run: write the template and continue on defaults.
		if err := createTemplateConfig(configDir); err != nil {
			return err
		}
	}

	return v.Unmarshal(cfg)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KITE_API_KEY"); v != "" {
		cfg.Credentials.Kite.APIKey = v
	}
	if v := os.Getenv("KITE_API_SECRET"); v != "" {
		cfg.Credentials.Kite.APISecret = v
	}
	if v := os.Getenv("KITE_ACCESS_TOKEN"); v != "" {
		cfg.Credentials.Kite.AccessToken = v
	}

	if v := os.Getenv("TRADING_MODE"); v != "" {
		cfg.Trading.Mode = v
	}

	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Redis.URL = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Credentials.Telegram.BotToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trading.Mode != string(models.ModeLive) && c.Trading.Mode != string(models.ModePaper) {
		return errors.NewValidationError("trading.mode", c.Trading.Mode, "must be 'live' or 'paper'")
	}

	if c.Risk.StopLossAmount <= 0 {
		return errors.NewValidationError("risk.stop_loss_amount", c.Risk.StopLossAmount, "must be positive")
	}
	if c.Risk.TrailingProfitTrigger <= 0 {
		return errors.NewValidationError("risk.trailing_profit_trigger", c.Risk.TrailingProfitTrigger, "must be positive")
	}
	if c.Risk.TrailingDrawdown <= 0 {
		return errors.NewValidationError("risk.trailing_drawdown", c.Risk.TrailingDrawdown, "must be positive")
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		return errors.NewValidationError("risk.max_trades_per_day", c.Risk.MaxTradesPerDay, "must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return errors.NewValidationError("risk.max_daily_loss", c.Risk.MaxDailyLoss, "must be positive")
	}
	if c.Risk.MaxInstruments <= 0 {
		return errors.NewValidationError("risk.max_instruments", c.Risk.MaxInstruments, "must be positive")
	}

	if c.Monitor.TickInterval <= 0 {
		return errors.NewValidationError("monitor.tick_interval", c.Monitor.TickInterval, "must be positive")
	}
	for field, value := range map[string]string{
		"monitor.auto_exit_time": c.Monitor.AutoExitTime,
		"monitor.session_open":   c.Monitor.SessionOpen,
		"monitor.session_close":  c.Monitor.SessionClose,
	} {
		if _, err := utils.ParseClock(value); err != nil {
			return errors.NewValidationError(field, value, "must be HH:MM")
		}
	}
	for _, h := range c.Monitor.Holidays {
		if _, err := time.Parse("2006-01-02", h); err != nil {
			return errors.NewValidationError("monitor.holidays", h, "must be YYYY-MM-DD")
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return errors.NewValidationError("server.port", c.Server.Port, "must be a valid TCP port")
	}

	switch c.Notify.Level {
	case "all", "trades", "summary":
	default:
		return errors.NewValidationError("notify.level", c.Notify.Level, "must be 'all', 'trades' or 'summary'")
	}

	if c.IsLive() && c.Credentials.Kite.APIKey == "" {
		return errors.NewValidationError("kite.api_key", "", "required for live trading")
	}

	return nil
}

// Mode returns the configured trading mode.
func (c *Config) Mode() models.TradingMode {
	return models.TradingMode(c.Trading.Mode)
}

// IsLive returns true if orders go to the exchange.
func (c *Config) IsLive() bool {
	return c.Mode().IsLive()
}

// IsPaperMode returns true if paper trading mode is enabled.
func (c *Config) IsPaperMode() bool {
	return c.Mode() == models.ModePaper
}

// Location returns the trading timezone.
func (c *Config) Location() *time.Location {
	return utils.LoadLocation(c.Monitor.Timezone)
}

// ServerAddr returns host:port for the HTTP server.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// SessionFile returns where the Kite access token is cached between runs.
func SessionFile(configDir string) string {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}
	return filepath.Join(configDir, "session.json")
}
