package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-trader/internal/models"
	"breakout-trader/internal/store"
	"breakout-trader/pkg/utils"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--config", t.TempDir()))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func sampleTrade(pnl float64) models.Trade {
	entry := time.Date(2025, 1, 15, 9, 45, 0, 0, utils.IndiaLocation)
	return models.Trade{
		ID:            "01JTEST",
		Key:           "SBIN_CE",
		TradingSymbol: "SBIN25JAN800CE",
		Underlying:    "SBIN",
		Strike:        800,
		Kind:          models.Call,
		LotSize:       750,
		Mode:          models.ModePaper,
		Status:        models.TradeClosed,
		EntryPrice:    12.5,
		EntryTime:     entry,
		ExitPrice:     14.5,
		ExitTime:      entry.Add(12 * time.Minute),
		RealizedPnL:   pnl,
		ExitReason:    models.ExitTrailingStop,
	}
}

func TestWriteTradesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTradesCSV(&buf, []models.Trade{sampleTrade(1500)}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)

	header := map[string]int{}
	for i, h := range records[0] {
		header[h] = i
	}
	row := records[1]
	assert.Equal(t, "2025-01-15", row[header["date"]])
	assert.Equal(t, "SBIN25JAN800CE", row[header["tradingsymbol"]])
	assert.Equal(t, "CE", row[header["type"]])
	assert.Equal(t, "09:45:00", row[header["entry_time"]])
	assert.Equal(t, "09:57:00", row[header["exit_time"]])
	assert.Equal(t, "720", row[header["hold_secs"]])
	pnl, err := strconv.ParseFloat(row[header["realized_pnl"]], 64)
	require.NoError(t, err)
	assert.Equal(t, 1500.0, pnl)
	assert.Equal(t, "Trailing Stop", row[header["exit_reason"]])
}

func TestTradeFilterFromFlags(t *testing.T) {
	newCmd := func(args ...string) *cobra.Command {
		cmd := &cobra.Command{Use: "x"}
		addTradeFilterFlags(cmd)
		require.NoError(t, cmd.ParseFlags(args))
		return cmd
	}

	filter, err := tradeFilterFromFlags(newCmd("--date", "2025-01-15", "--days", "3", "--symbol", "sbin", "--mode", "PAPER"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 13, 0, 0, 0, 0, utils.IndiaLocation), filter.From)
	assert.Equal(t, time.Date(2025, 1, 16, 0, 0, 0, 0, utils.IndiaLocation), filter.To)
	assert.Equal(t, "sbin", filter.Underlying)
	assert.Equal(t, models.ModePaper, filter.Mode)

	_, err = tradeFilterFromFlags(newCmd("--date", "15/01/2025"))
	assert.Error(t, err)

	filter, err = tradeFilterFromFlags(newCmd())
	require.NoError(t, err)
	assert.Equal(t, 24*time.Hour, filter.To.Sub(filter.From))
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestExpiryCommand(t *testing.T) {
	out, err := execute(t, "expiry", "2025-01-15", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, "28JAN2025", v["expiry"])

	_, err = execute(t, "expiry", "not-a-date")
	assert.Error(t, err)
}

func TestConfigShowRedactsCredentials(t *testing.T) {
	t.Setenv("KITE_API_SECRET", "top-secret")
	out, err := execute(t, "config", "show", "--json")
	require.NoError(t, err)
	assert.NotContains(t, out, "top-secret")
	assert.Contains(t, out, "StopLossAmount")
}

func TestTradesListReadsStore(t *testing.T) {
	dir := t.TempDir()
	st, err := store.NewSQLiteStore(filepath.Join(dir, "trades.db"))
	require.NoError(t, err)
	tr := sampleTrade(-800)
	require.NoError(t, st.RecordTrade(context.Background(), &tr))
	require.NoError(t, st.Close())

	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"trades", "list", "--date", "2025-01-15", "--json", "--config", dir})
	require.NoError(t, root.ExecuteContext(context.Background()))

	var trades []models.Trade
	require.NoError(t, json.Unmarshal(out.Bytes(), &trades))
	require.Len(t, trades, 1)
	assert.Equal(t, -800.0, trades[0].RealizedPnL)
}
