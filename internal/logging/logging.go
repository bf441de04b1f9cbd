// Package logging builds the zerolog logger shared by the engine and the
// event helpers that give trades, orders and ticks a stable field layout.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	// Out receives console output, or JSON lines when neither Console nor
	// File is set. Defaults to stderr so command output on stdout stays clean.
	Out io.Writer
}

// NewLoggerWithConfig creates a logger. A log directory that cannot be
// created disables the file writer rather than failing.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{
			Out:        out,
			NoColor:    color.NoColor,
			TimeFormat: "15:04:05",
		})
	}
	if cfg.File && cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			})
		}
	}

	var w io.Writer
	switch len(writers) {
	case 0:
		w = out
	case 1:
		w = writers[0]
	default:
		w = zerolog.MultiLevelWriter(writers...)
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// WithSymbol adds an underlying symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithOperation tags every event with the component that emitted it.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogEntry logs a breakout entry.
func LogEntry(logger zerolog.Logger, key, symbol string, price, level float64, lot int, orderID string) {
	logger.Info().
		Str("event", "entry").
		Str("key", key).
		Str("symbol", symbol).
		Float64("price", price).
		Float64("breakout", level).
		Int("lot", lot).
		Str("order_id", orderID).
		Msg("Breakout entry")
}

// LogExit logs a closed trade; losses are logged at warn.
func LogExit(logger zerolog.Logger, key, symbol, reason string, exit, pnl float64, orderID string) {
	ev := logger.Info()
	if pnl < 0 {
		ev = logger.Warn()
	}
	ev.Str("event", "exit").
		Str("key", key).
		Str("symbol", symbol).
		Str("reason", reason).
		Float64("exit", exit).
		Float64("pnl", pnl).
		Str("order_id", orderID).
		Msg("Position closed")
}

func LogOrder(logger zerolog.Logger, orderID, symbol, side, status string) {
	logger.Info().
		Str("event", "order").
		Str("order_id", orderID).
		Str("symbol", symbol).
		Str("side", side).
		Str("status", status).
		Msg("Order update")
}

// LogTick logs a monitor cycle summary at debug level.
func LogTick(logger zerolog.Logger, tick, priced, entries, exits, failures int, duration time.Duration) {
	logger.Debug().
		Str("event", "tick").
		Int("tick", tick).
		Int("priced", priced).
		Int("entries", entries).
		Int("exits", exits).
		Int("failures", failures).
		Dur("duration", duration).
		Msg("Tick processed")
}

// LogAPICall logs a broker call at debug level, or at warn when it failed.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	ev := logger.Debug()
	if err != nil {
		ev = logger.Warn().Err(err)
	}
	ev.Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration).
		Msg("Broker API call")
}
