package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"breakout-trader/internal/broker"
	"breakout-trader/internal/models"
	"breakout-trader/internal/scanner"
	"breakout-trader/internal/trading"
	"breakout-trader/pkg/utils"
)

func newScanCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Select candidates and preview the breakout watchlist",
		Long: `Fetch the NSE F&O feed, rank stocks by long build-up and resolve the ATM
call/put legs with their breakout levels. With --candidates-only no broker
session is needed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			nse := app.nseScanner()
			candidates, err := nse.Candidates(ctx)
			if err != nil {
				return err
			}

			candidatesOnly, _ := cmd.Flags().GetBool("candidates-only")
			if candidatesOnly {
				if output.IsJSON() {
					return output.JSON(map[string]interface{}{"source": nse.LastSource(), "candidates": candidates})
				}
				printCandidates(output, nse.LastSource(), candidates)
				return nil
			}

			z := app.zerodha()
			if err := z.Authenticate(ctx); err != nil {
				return err
			}
			master := broker.NewInstrumentMaster(z)
			expiry := scanner.MonthlyExpiry(time.Now())
			watchlist, err := app.watchlistBuilder(z, master).Build(ctx, candidates, expiry)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"source":     nse.LastSource(),
					"candidates": candidates,
					"expiry":     scanner.FormatExpiry(expiry),
					"watchlist":  watchlist,
				})
			}
			printCandidates(output, nse.LastSource(), candidates)
			output.Println()
			printWatchlist(output, watchlist)
			return nil
		},
	}
	cmd.Flags().Bool("candidates-only", false, "stop after candidate selection")
	return cmd
}

func newExpiryCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "expiry [YYYY-MM-DD]",
		Short: "Show the monthly option expiry used for a date",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			now := time.Now().In(utils.IndiaLocation)
			if len(args) == 1 {
				d, err := time.ParseInLocation("2006-01-02", args[0], utils.IndiaLocation)
				if err != nil {
					return err
				}
				now = d
			}
			expiry := scanner.MonthlyExpiry(now)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"date":   now.Format("2006-01-02"),
					"expiry": scanner.FormatExpiry(expiry),
				})
			}
			output.Printf("%s -> %s\n", now.Format("2006-01-02"), output.Highlight(scanner.FormatExpiry(expiry)))
			return nil
		},
	}
}

func printCandidates(output *Output, source scanner.Source, candidates []models.Candidate) {
	output.Bold("Candidates (%s)", source)
	output.Printf("  %-12s %10s %9s %14s %10s\n", "SYMBOL", "LTP", "CHANGE", "VOLUME", "SCORE")
	for _, c := range candidates {
		output.Printf("  %-12s %10s %9s %14d %10.2f\n",
			c.Symbol, utils.FormatPrice(c.LTP), output.PnL(c.PriceChangePct, utils.FormatPercent(c.PriceChangePct)), c.Volume, c.Score)
	}
}

func printWatchlist(output *Output, watchlist []models.WatchlistEntry) {
	output.Bold("Watchlist")
	output.Printf("  %-22s %8s %6s %10s %10s %10s\n", "CONTRACT", "STRIKE", "LOT", "HIGH", "BREAKOUT", "LTP")
	for _, e := range watchlist {
		for _, kind := range []models.OptionKind{models.Call, models.Put} {
			leg := e.Leg(kind)
			output.Printf("  %-22s %8.0f %6d %10s %10s %10s\n",
				leg.Symbol, e.Strike, e.LotSize, utils.FormatPrice(leg.Candle.High),
				utils.FormatPrice(leg.Candle.High*trading.BreakoutMultiplier), utils.FormatPrice(leg.LTP))
		}
	}
}
