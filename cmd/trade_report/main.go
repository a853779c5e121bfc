package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"text/tabwriter"

	"cryptoTradeSync/config"
	"cryptoTradeSync/internal/adapters/logger"
	"cryptoTradeSync/internal/adapters/sqlite"
	"cryptoTradeSync/internal/analytics"
	"cryptoTradeSync/internal/domain"
)

func main() {
	repo, err := sqlite.NewRepository(sqlite.Config{
		DBPath: config.LoadDBPath(),
		Logger: logger.NewNop(),
	})
	if err != nil {
		log.Fatalf("Error opening trade database: %v", err)
	}
	defer repo.Close()

	trades, err := repo.FindAll(context.Background(), 0)
	if err != nil {
		log.Fatalf("Error loading trades: %v", err)
	}

	if len(trades) == 0 {
		log.Println("No trades stored. Run 'tradesync sync' first.")
		return
	}

	writeReport(os.Stdout, trades)
}

// writeReport prints per-symbol statistics followed by monthly net P&L.
func writeReport(out io.Writer, trades []*domain.AggregatedTrade) {
	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Symbol\tTrades\tWinRate\tAvgWin\tAvgLoss\tNetPnL\tFees\tMaxDD\tPF\t")

	bySymbol := analytics.BySymbol(trades)
	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	for _, symbol := range symbols {
		writeRow(w, symbol, bySymbol[symbol])
	}
	writeRow(w, "ALL", trades)
	w.Flush()

	fmt.Fprintln(out, "\n## Monthly Net P&L")
	mw := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(mw, "Month\tTrades\tNetPnL\t")
	for _, mr := range analytics.MonthlyReturns(trades) {
		fmt.Fprintf(mw, "%s\t%d\t%.2f\t\n", mr.Month.Format("2006-01"), mr.Trades, mr.NetPnL)
	}
	mw.Flush()
}

func writeRow(w io.Writer, label string, trades []*domain.AggregatedTrade) {
	stats := analytics.Summarize(trades)
	fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
		label,
		stats.Trades,
		stats.WinRate*100,
		stats.AverageWin,
		stats.AverageLoss,
		stats.NetPnL,
		stats.TotalFees,
		analytics.MaxDrawdown(trades),
		stats.ProfitFactor,
	)
}
