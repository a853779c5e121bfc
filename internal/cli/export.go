package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/utils"
)

func addExportCommand(rootCmd *cobra.Command, app *App) {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export raw fills and ledger entries of a symbol to CSV",
		Long:  "Fetch the raw fills and income ledger of one symbol straight from the exchange and write them to CSV, without touching stored trades or checkpoints.",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			days, _ := cmd.Flags().GetInt("days")
			outDir, _ := cmd.Flags().GetString("out")
			symbol = strings.ToUpper(strings.TrimSpace(symbol))
			if symbol == "" {
				return fmt.Errorf("--symbol is required")
			}
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}

			ctx := cmd.Context()
			end := time.Now().UTC()
			start := end.AddDate(0, 0, -days)

			fills, err := app.Exchange.GetFills(ctx, symbol, start, end)
			if err != nil {
				return fmt.Errorf("failed to fetch fills for %s: %w", symbol, err)
			}
			income, err := app.Exchange.GetIncome(ctx, start, end)
			if err != nil {
				return fmt.Errorf("failed to fetch income: %w", err)
			}
			ledger := make([]*domain.LedgerEntry, 0, len(income))
			for _, e := range income {
				if e.Symbol == symbol {
					ledger = append(ledger, e)
				}
			}

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}
			suffix := fmt.Sprintf("%s_to_%s.csv", start.Format("20060102"), end.Format("20060102"))
			fillsPath := filepath.Join(outDir, fmt.Sprintf("%s_fills_%s", symbol, suffix))
			ledgerPath := filepath.Join(outDir, fmt.Sprintf("%s_ledger_%s", symbol, suffix))

			if err := utils.WriteFillsToCSV(fills, fillsPath); err != nil {
				return fmt.Errorf("failed to write %s: %w", fillsPath, err)
			}
			if err := utils.WriteLedgerToCSV(ledger, ledgerPath); err != nil {
				return fmt.Errorf("failed to write %s: %w", ledgerPath, err)
			}

			output := NewOutput(cmd)
			output.Printf("Wrote %d fills to %s\n", len(fills), fillsPath)
			output.Printf("Wrote %d ledger entries to %s\n", len(ledger), ledgerPath)
			return nil
		},
	}

	cmd.Flags().String("symbol", "", "Symbol to export (e.g., BTCUSDT)")
	cmd.Flags().Int("days", 7, "Days of history to export")
	cmd.Flags().String("out", "data", "Output directory")
	rootCmd.AddCommand(cmd)
}
