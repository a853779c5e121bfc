package utils

import (
	"encoding/csv"
	"os"
	"strconv"
	"time"

	"cryptoTradeSync/internal/domain"
)

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteFillsToCSV writes raw fills, one row per fill.
func WriteFillsToCSV(fills []*domain.Fill, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write([]string{"time", "id", "order_id", "symbol", "side", "position_side", "price", "quantity", "commission", "realized_pnl", "maker"})

	for _, f := range fills {
		writer.Write([]string{
			f.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(f.ID, 10),
			strconv.FormatInt(f.OrderID, 10),
			f.Symbol,
			string(f.Side),
			string(f.PositionSide),
			formatFloat(f.Price),
			formatFloat(f.Quantity),
			formatFloat(f.Commission),
			formatFloat(f.RealizedPnL),
			strconv.FormatBool(f.Maker),
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteLedgerToCSV writes ledger entries, one row per income record.
func WriteLedgerToCSV(entries []*domain.LedgerEntry, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{"time", "tran_id", "type", "symbol", "amount", "asset", "trade_id"})

	for _, e := range entries {
		writer.Write([]string{
			e.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatInt(e.TransactionID, 10),
			string(e.Type),
			e.Symbol,
			formatFloat(e.Amount),
			e.Asset,
			e.FillID,
		})
	}
	writer.Flush()
	return writer.Error()
}

// WriteTradesToCSV writes aggregated trades, one row per trade.
func WriteTradesToCSV(trades []*domain.AggregatedTrade, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	writer.Write([]string{
		"id", "symbol", "direction", "entry_time", "exit_time", "entry_price", "exit_price", "quantity",
		"realized_pnl", "commission", "funding_fees", "net_pnl", "outcome", "hold_minutes",
		"is_maker", "entry_order_type", "exit_order_type", "warnings",
	})

	for _, t := range trades {
		writer.Write([]string{
			t.ID,
			t.Symbol,
			string(t.Direction),
			t.EntryTime.UTC().Format(time.RFC3339),
			t.ExitTime.UTC().Format(time.RFC3339),
			formatFloat(t.EntryPrice),
			formatFloat(t.ExitPrice),
			formatFloat(t.Quantity),
			formatFloat(t.RealizedPnL),
			formatFloat(t.Commission),
			formatFloat(t.FundingFees),
			formatFloat(t.NetPnL),
			string(t.Outcome),
			strconv.FormatInt(t.HoldMinutes, 10),
			strconv.FormatBool(t.IsMaker),
			string(t.EntryOrderType),
			string(t.ExitOrderType),
			strconv.Itoa(len(t.Validation.Warnings)),
		})
	}
	writer.Flush()
	return writer.Error()
}
