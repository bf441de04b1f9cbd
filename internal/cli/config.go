package cli

import (
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"breakout-trader/internal/config"
	"breakout-trader/internal/security"
	"breakout-trader/pkg/utils"
)

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				redacted := *app.Config
				kite := app.Config.Credentials.Kite
				redacted.Credentials = config.Credentials{Kite: config.KiteCredentials{
					APIKey:      security.MaskCredential(kite.APIKey),
					APISecret:   security.MaskCredential(kite.APISecret),
					AccessToken: security.MaskCredential(kite.AccessToken),
					UserID:      kite.UserID,
				}, Telegram: config.TelegramCredentials{
					BotToken: security.MaskCredential(app.Config.Credentials.Telegram.BotToken),
				}}
				return output.JSON(redacted)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file locations",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			paths := map[string]string{
				"config":      filepath.Join(app.ConfigDir, "config.toml"),
				"credentials": filepath.Join(app.ConfigDir, "credentials.toml"),
				"session":     config.SessionFile(app.ConfigDir),
				"store":       app.Config.Store.Path,
				"log":         app.Config.Logging.FilePath,
			}
			if output.IsJSON() {
				return output.JSON(paths)
			}
			for _, k := range []string{"config", "credentials", "session", "store", "log"} {
				output.Printf("%-12s %s\n", k+":", paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading")
	output.Printf("  Mode:               %s\n", cfg.Trading.Mode)
	output.Printf("  Strategy:           %s\n", cfg.Trading.StrategyLabel)
	output.Println()

	output.Bold("Risk (per position)")
	output.Printf("  Stop loss:          %s\n", utils.FormatIndianCurrency(cfg.Risk.StopLossAmount))
	output.Printf("  Trailing trigger:   %s\n", utils.FormatIndianCurrency(cfg.Risk.TrailingProfitTrigger))
	output.Printf("  Trailing drawdown:  %s\n", utils.FormatIndianCurrency(cfg.Risk.TrailingDrawdown))
	output.Printf("  Max daily loss:     %s\n", utils.FormatIndianCurrency(cfg.Risk.MaxDailyLoss))
	output.Printf("  Max trades/day:     %d\n", cfg.Risk.MaxTradesPerDay)
	output.Printf("  Max instruments:    %d\n", cfg.Risk.MaxInstruments)
	output.Printf("  Min stock price:    %s\n", utils.FormatIndianCurrency(cfg.Risk.MinStockPrice))
	output.Println()

	output.Bold("Monitor")
	output.Printf("  Tick interval:      %s\n", cfg.Monitor.TickInterval)
	output.Printf("  Session:            %s - %s (%s)\n", cfg.Monitor.SessionOpen, cfg.Monitor.SessionClose, cfg.Monitor.Timezone)
	output.Printf("  Auto exit:          %s\n", cfg.Monitor.AutoExitTime)
	output.Printf("  Holidays:           %d configured\n", len(cfg.Monitor.Holidays))
	output.Println()

	output.Bold("Broker")
	if key := cfg.Credentials.Kite.APIKey; key != "" {
		output.Printf("  API key:            %s\n", security.MaskCredential(key))
	} else {
		output.Printf("  API key:            not set\n")
	}
	output.Printf("  Streaming quotes:   %v\n", cfg.Broker.Streaming)
	output.Printf("  Quote batch:        %d\n", cfg.Broker.QuoteBatchSize)
	output.Println()

	output.Bold("Outputs")
	if cfg.Server.Enabled {
		output.Printf("  Dashboard:          http://%s\n", cfg.ServerAddr())
	} else {
		output.Printf("  Dashboard:          disabled\n")
	}
	if cfg.Redis.URL != "" {
		output.Printf("  Redis channel:      %s\n", cfg.Redis.Channel)
	}
	output.Printf("  Trade record:       %s\n", cfg.Store.Path)
	var channels []string
	if cfg.Notify.WebhookURL != "" {
		channels = append(channels, "webhook")
	}
	if cfg.Notify.TelegramChatID != "" && cfg.Credentials.Telegram.BotToken != "" {
		channels = append(channels, "telegram")
	}
	if len(channels) == 0 {
		output.Printf("  Notifications:      disabled\n")
	} else {
		output.Printf("  Notifications:      %s (%s)\n", strings.Join(channels, ", "), cfg.Notify.Level)
	}
}
