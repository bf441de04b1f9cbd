// Package cli provides the command-line interface for the breakout trader.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"breakout-trader/internal/config"
	"breakout-trader/internal/logging"
)

// Version information, overridden at build time with -ldflags.
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
)

// App holds the loaded configuration and logger shared by all commands.
type App struct {
	ConfigDir string
	Config    *config.Config
	Logger    zerolog.Logger
}

// NewRootCmd creates the root command. Configuration is loaded once, before
// any subcommand runs.
func NewRootCmd() *cobra.Command {
	app := &App{Logger: zerolog.Nop()}

	rootCmd := &cobra.Command{
		Use:   "breakout-trader",
		Short: "Intraday ATM option breakout trader for NSE F&O",
		Long: `breakout-trader watches ATM call and put options of the strongest F&O stocks
and buys the first leg that breaks 1% above its last completed candle high.
Positions are protected by a fixed stop loss, a trailing stop once in profit,
daily loss and trade-count limits, and an end-of-day auto exit.

Paper mode (the default) simulates fills at live prices; live mode places
real MIS market orders through Kite Connect.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.load(cmd)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/breakout-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newRunCmd(app),
		newScanCmd(app),
		newExpiryCmd(app),
		newTradesCmd(app),
		newSessionsCmd(app),
		newAuthCmd(app),
		newConfigCmd(app),
		newVersionCmd(),
	)
	return rootCmd
}

func (a *App) load(cmd *cobra.Command) error {
	dir, _ := cmd.Flags().GetString("config")
	if dir == "" {
		dir = config.DefaultConfigDir()
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		cfg.Logging.Level = "debug"
	}
	a.ConfigDir = dir
	a.Config = cfg
	a.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    cfg.Logging.Console,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	})
	for _, err := range cfg.DotenvErrors {
		a.Logger.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}
	a.Logger.Debug().Str("config_dir", dir).Str("mode", cfg.Trading.Mode).Msg("Configuration loaded")
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip configuration loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{"version": Version, "build_date": BuildDate})
			}
			output.Printf("breakout-trader v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}
