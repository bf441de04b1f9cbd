package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"breakout-trader/internal/models"
	"breakout-trader/internal/store"
	"breakout-trader/pkg/utils"
)

// tradeRow is the CSV layout of the trade record.
type tradeRow struct {
	ID          string  `csv:"id"`
	Date        string  `csv:"date"`
	Mode        string  `csv:"mode"`
	Underlying  string  `csv:"symbol"`
	Contract    string  `csv:"tradingsymbol"`
	Type        string  `csv:"type"`
	Strike      float64 `csv:"strike"`
	Lot         int     `csv:"lot"`
	EntryTime   string  `csv:"entry_time"`
	EntryPrice  float64 `csv:"entry"`
	ExitTime    string  `csv:"exit_time"`
	ExitPrice   float64 `csv:"exit"`
	HoldSeconds int64   `csv:"hold_secs"`
	RealizedPnL float64 `csv:"realized_pnl"`
	PeakPnL     float64 `csv:"peak_pnl"`
	ExitReason  string  `csv:"exit_reason"`
	OrderID     string  `csv:"order_id"`
	ExitOrderID string  `csv:"exit_order_id"`
}

func newTradeRow(t models.Trade) *tradeRow {
	return &tradeRow{
		ID:          t.ID,
		Date:        t.EntryTime.In(utils.IndiaLocation).Format("2006-01-02"),
		Mode:        string(t.Mode),
		Underlying:  t.Underlying,
		Contract:    t.TradingSymbol,
		Type:        t.Kind.Suffix(),
		Strike:      t.Strike,
		Lot:         t.LotSize,
		EntryTime:   t.EntryTime.In(utils.IndiaLocation).Format("15:04:05"),
		EntryPrice:  t.EntryPrice,
		ExitTime:    t.ExitTime.In(utils.IndiaLocation).Format("15:04:05"),
		ExitPrice:   t.ExitPrice,
		HoldSeconds: int64(t.HoldDuration(t.ExitTime).Seconds()),
		RealizedPnL: t.RealizedPnL,
		PeakPnL:     t.PeakPnL,
		ExitReason:  string(t.ExitReason),
		OrderID:     t.OrderID,
		ExitOrderID: t.ExitOrderID,
	}
}

// writeTradesCSV writes trades with a header row.
func writeTradesCSV(w io.Writer, trades []models.Trade) error {
	rows := make([]*tradeRow, 0, len(trades))
	for _, t := range trades {
		rows = append(rows, newTradeRow(t))
	}
	return gocsv.Marshal(rows, w)
}

func tradeFilterFromFlags(cmd *cobra.Command) (store.TradeFilter, error) {
	var filter store.TradeFilter

	date, _ := cmd.Flags().GetString("date")
	days, _ := cmd.Flags().GetInt("days")
	day := utils.StartOfDay(time.Now(), utils.IndiaLocation)
	if date != "" {
		d, err := time.ParseInLocation("2006-01-02", date, utils.IndiaLocation)
		if err != nil {
			return filter, fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
		}
		day = d
	}
	if days < 1 {
		days = 1
	}
	filter.From = day.AddDate(0, 0, -(days - 1))
	filter.To = day.AddDate(0, 0, 1)

	filter.Underlying, _ = cmd.Flags().GetString("symbol")
	mode, _ := cmd.Flags().GetString("mode")
	filter.Mode = models.TradingMode(strings.ToLower(mode))
	return filter, nil
}

func addTradeFilterFlags(cmd *cobra.Command) {
	cmd.Flags().String("date", "", "last day to include, YYYY-MM-DD (default: today)")
	cmd.Flags().Int("days", 1, "number of days ending at --date")
	cmd.Flags().String("symbol", "", "underlying symbol")
	cmd.Flags().String("mode", "", "paper or live")
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "Inspect the recorded closed trades",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List closed trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			trades, err := app.queryTrades(cmd)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			printTrades(output, trades)
			return nil
		},
	}
	addTradeFilterFlags(list)

	export := &cobra.Command{
		Use:   "export",
		Short: "Export closed trades as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			trades, err := app.queryTrades(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if path, _ := cmd.Flags().GetString("csv"); path != "" && path != "-" {
				f, err := os.Create(path)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := writeTradesCSV(out, trades); err != nil {
				return fmt.Errorf("writing csv: %w", err)
			}
			app.Logger.Info().Int("trades", len(trades)).Msg("Trades exported")
			return nil
		},
	}
	addTradeFilterFlags(export)
	export.Flags().String("csv", "-", "output file (- for stdout)")

	cmd.AddCommand(list, export)
	return cmd
}

func (a *App) queryTrades(cmd *cobra.Command) ([]models.Trade, error) {
	filter, err := tradeFilterFromFlags(cmd)
	if err != nil {
		return nil, err
	}
	st, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	return st.Trades(ctx, filter)
}

func printTrades(output *Output, trades []models.Trade) {
	if len(trades) == 0 {
		output.Dim("No trades recorded")
		return
	}
	output.Printf("%-10s %-22s %8s %8s %8s %8s %14s  %s\n", "DATE", "CONTRACT", "ENTRY@", "ENTRY", "EXIT@", "EXIT", "P&L", "REASON")
	var total float64
	var wins int
	for _, t := range trades {
		row := newTradeRow(t)
		output.Printf("%-10s %-22s %8s %8s %8s %8s %14s  %s\n",
			row.Date, row.Contract, row.EntryTime, utils.FormatPrice(t.EntryPrice),
			row.ExitTime, utils.FormatPrice(t.ExitPrice),
			output.PnL(t.RealizedPnL, utils.FormatPnL(t.RealizedPnL)), row.ExitReason)
		total += t.RealizedPnL
		if t.RealizedPnL > 0 {
			wins++
		}
	}
	output.Println()
	output.Printf("%d trades, %d winners, total %s\n", len(trades), wins, output.PnL(total, utils.FormatPnL(total)))
}

func newSessionsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Show recent monitor sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			limit, _ := cmd.Flags().GetInt("limit")

			st, err := app.openStore()
			if err != nil {
				return err
			}
			defer st.Close()

			sessions, err := st.Sessions(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(sessions)
			}
			if len(sessions) == 0 {
				output.Dim("No sessions recorded")
				return nil
			}
			output.Printf("%-16s %-5s %-26s %6s %6s %6s %14s\n", "STARTED", "MODE", "STATE", "TICKS", "TRADES", "WIN%", "P&L")
			for _, s := range sessions {
				output.Printf("%-16s %-5s %-26s %6d %6d %5.0f%% %14s\n",
					s.StartedAt.Format("2006-01-02 15:04"), s.Mode, s.State, s.Ticks, s.TotalTrades, s.WinRate(),
					output.PnL(s.RealizedPnL, utils.FormatPnL(s.RealizedPnL)))
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of sessions to show")
	return cmd
}
