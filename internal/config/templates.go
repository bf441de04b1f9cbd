package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const configTemplate = `# Breakout Trader Configuration

[trading]
# Trading mode: "live" or "paper"
mode = "paper"
strategy_label = "ATM Option Breakout"

[risk]
# Per-position stop loss in INR
stop_loss_amount = 2500.0
# Profit in INR at which the trailing stop arms
trailing_profit_trigger = 5000.0
# Give-back from peak profit in INR that closes a trailing position
trailing_drawdown = 2500.0
max_trades_per_day = 8
# Stop monitoring once realized loss reaches this amount
max_daily_loss = 10000.0
# Underlyings to watch (each contributes a CE and a PE)
max_instruments = 2
min_stock_price = 100.0

[monitor]
tick_interval = "2s"
auto_exit_time = "15:15"
session_open = "09:15"
session_close = "15:30"
timezone = "Asia/Kolkata"
# Exchange holidays, YYYY-MM-DD
holidays = []

[scanner]
min_change_pct = 0.2
min_volume = 100000
timeout = "10s"

[paper]
# Simulated order latency
fill_delay = "500ms"

[broker]
orders_per_second = 10.0
quotes_per_second = 1.0
quote_batch_size = 500
# Use the websocket ticker for LTPs (REST remains the fallback)
streaming = false

[server]
enabled = true
host = "0.0.0.0"
port = 10000

[redis]
# Leave empty to disable the snapshot bus
url = ""
channel = "breakout:snapshot"

[notify]
# "all" (entries, exits and session summary), "trades" or "summary"
level = "all"
webhook_url = ""
# The bot token goes in credentials.toml
telegram_chat_id = ""

[logging]
level = "info"
console = true
file = true
`

const credentialsTemplate = `# Breakout Trader Credentials
# WARNING: Keep this file secure! Do not commit to version control.

[kite]
api_key = ""
api_secret = ""
access_token = ""
user_id = ""

[telegram]
bot_token = ""
`

func createTemplateConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "config.toml")
	if err := os.WriteFile(path, []byte(configTemplate), 0644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}
	return nil
}

func createTemplateCredentials(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	path := filepath.Join(configDir, "credentials.toml")
	// Use restricted permissions for credentials file
	if err := os.WriteFile(path, []byte(credentialsTemplate), 0600); err != nil {
		return fmt.Errorf("writing credentials template: %w", err)
	}
	return nil
}
