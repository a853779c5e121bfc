package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"cryptoTradeSync/internal/analytics"
	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/utils"
)

func addReportCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newTradesCmd(app))
}

func newStatusCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show sync state, checkpoint and last result",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			report, err := app.Sync.Status(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(report)
			}

			output.Printf("Account:   %s\n", app.Config.AccountID)
			output.Printf("State:     %s\n", report.State)
			if report.QuotaRemaining < 0 {
				output.Printf("Quota:     unlimited\n")
			} else {
				output.Printf("Quota:     %d of %d syncs left today\n", report.QuotaRemaining, app.Config.DailySyncQuota)
			}

			if cp := report.Checkpoint; cp != nil {
				remaining := cp.Remaining()
				output.Printf("Checkpoint: run %s, phase %s, %d/%d symbols processed\n",
					cp.RunID, cp.Phase, len(cp.Processed), len(cp.Symbols))
				output.Printf("           window %s to %s, updated %s\n",
					formatTime(cp.WindowStart), formatTime(cp.WindowEnd), formatTime(cp.UpdatedAt))
				if len(remaining) > 0 {
					output.Printf("           remaining: %s\n", strings.Join(remaining, ", "))
				}
			} else {
				output.Printf("Checkpoint: none\n")
			}

			if report.LastResult != nil {
				output.Printf("\nLast run:\n")
				output.Result(report.LastResult)
			}
			return nil
		},
	}
}

func newTradesCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trades",
		Short: "List stored trades",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			limit, _ := cmd.Flags().GetInt("limit")
			csvPath, _ := cmd.Flags().GetString("csv")
			output := NewOutput(cmd)

			var trades []*domain.AggregatedTrade
			var err error
			if symbol != "" {
				trades, err = app.Trades.FindBySymbol(cmd.Context(), symbol, limit)
			} else {
				trades, err = app.Trades.FindAll(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			if csvPath != "" {
				if err := utils.WriteTradesToCSV(trades, csvPath); err != nil {
					return fmt.Errorf("failed to write %s: %w", csvPath, err)
				}
				output.Printf("Wrote %d trades to %s\n", len(trades), csvPath)
				return nil
			}
			if output.IsJSON() {
				return output.JSON(trades)
			}
			if len(trades) == 0 {
				output.Printf("No trades stored.\n")
				return nil
			}

			w := output.Table()
			fmt.Fprintln(w, "ENTRY\tSYMBOL\tDIR\tQTY\tENTRY PX\tEXIT PX\tNET P&L\tOUTCOME\tHOLD\tWARN")
			for _, t := range trades {
				fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%.4f\t%.4f\t%.4f\t%s\t%dm\t%d\n",
					formatTime(t.EntryTime), t.Symbol, t.Direction, t.Quantity,
					t.EntryPrice, t.ExitPrice, t.NetPnL, t.Outcome, t.HoldMinutes, len(t.Validation.Warnings))
			}
			w.Flush()

			stats := analytics.Summarize(trades)
			output.Printf("\n%d trades, net %.4f, win rate %.1f%%, profit factor %.2f, avg hold %.0fm\n",
				stats.Trades, stats.NetPnL, stats.WinRate*100, stats.ProfitFactor, stats.AvgHoldMinutes)
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "Only show trades of this symbol")
	cmd.Flags().Int("limit", 50, "Maximum number of trades (0 = all)")
	cmd.Flags().String("csv", "", "Write the trades to this CSV file instead of printing them")
	return cmd
}
