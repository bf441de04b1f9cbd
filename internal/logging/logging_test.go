package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, l := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if l == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(l), &m), l)
		out = append(out, m)
	}
	return out
}

func TestNewLoggerWithConfig_Level(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 2},
		{"info", 1},
		{"", 1},
		{"nonsense", 1},
		{"error", 0},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithConfig(LogConfig{Level: tt.level, Out: &buf})
			logger.Debug().Msg("d")
			logger.Info().Msg("i")
			assert.Len(t, lines(t, &buf), tt.want)
		})
	}
}

func TestNewLoggerWithConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trader.log")
	var console bytes.Buffer
	logger := NewLoggerWithConfig(LogConfig{Level: "info", Console: true, File: true, FilePath: path, MaxSize: 1, Out: &console})

	logger.Info().Str("symbol", "SBIN").Msg("hello")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"symbol":"SBIN"`)
	assert.Contains(t, console.String(), "hello")
}

func TestEventHelpers(t *testing.T) {
	var buf bytes.Buffer
	logger := WithOperation(NewLoggerWithConfig(LogConfig{Level: "debug", Out: &buf}), "monitor")

	LogEntry(logger, "SBIN25JAN820CE", "SBIN25JAN820CE", 14.2, 13.13, 750, "P1")
	LogExit(logger, "SBIN25JAN820CE", "SBIN25JAN820CE", "Stop Loss", 10.8, -2550, "P2")
	LogTick(logger, 4, 2, 1, 0, 0, 30*time.Millisecond)
	LogAPICall(logger, "GET", "/quote/ltp", time.Millisecond, fmt.Errorf("timeout"))

	got := lines(t, &buf)
	require.Len(t, got, 4)
	assert.Equal(t, "entry", got[0]["event"])
	assert.Equal(t, "monitor", got[0]["operation"])
	assert.Equal(t, 13.13, got[0]["breakout"])
	assert.Equal(t, "warn", got[1]["level"], "losing exit")
	assert.Equal(t, "debug", got[2]["level"])
	assert.Equal(t, "warn", got[3]["level"])
	assert.Equal(t, "timeout", got[3]["error"])
}
