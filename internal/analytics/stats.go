// Package analytics computes summary statistics over aggregated trades.
package analytics

import (
	"math"
	"sort"
	"time"

	"cryptoTradeSync/internal/domain"
)

// Summarize computes win/loss statistics over trades. Outcomes are taken from the
// trades themselves so the breakeven band matches aggregation.
func Summarize(trades []*domain.AggregatedTrade) domain.TradeStats {
	stats := domain.TradeStats{}
	if len(trades) == 0 {
		return stats
	}

	var grossWin, grossLoss float64
	var holdTotal int64
	var makerEntries int
	for _, t := range trades {
		stats.Trades++
		stats.GrossPnL += t.RealizedPnL
		stats.NetPnL += t.NetPnL
		stats.TotalFees += t.Fees
		holdTotal += t.HoldMinutes
		if t.IsMaker {
			makerEntries++
		}

		switch t.Outcome {
		case domain.OutcomeWin:
			stats.Wins++
			grossWin += t.NetPnL
			stats.AverageWin = (stats.AverageWin*float64(stats.Wins-1) + t.NetPnL) / float64(stats.Wins)
			stats.LargestWin = math.Max(stats.LargestWin, t.NetPnL)
		case domain.OutcomeLoss:
			stats.Losses++
			grossLoss += t.NetPnL
			stats.AverageLoss = (stats.AverageLoss*float64(stats.Losses-1) + t.NetPnL) / float64(stats.Losses)
			stats.LargestLoss = math.Min(stats.LargestLoss, t.NetPnL)
		default:
			stats.Breakevens++
		}
	}

	if decided := stats.Wins + stats.Losses; decided > 0 {
		stats.WinRate = float64(stats.Wins) / float64(decided)
	}
	if grossLoss != 0 {
		stats.ProfitFactor = grossWin / -grossLoss
	}
	stats.AvgHoldMinutes = float64(holdTotal) / float64(stats.Trades)
	stats.MakerEntryRatio = float64(makerEntries) / float64(stats.Trades)
	return stats
}

// MonthlyReturn is the net P&L of the trades closed in one calendar month.
type MonthlyReturn struct {
	Month  time.Time
	NetPnL float64
	Trades int
}

// MonthlyReturns groups trades by exit month (UTC), oldest first.
func MonthlyReturns(trades []*domain.AggregatedTrade) []MonthlyReturn {
	byMonth := make(map[string]*MonthlyReturn)
	for _, t := range trades {
		key := t.ExitTime.UTC().Format("2006-01")
		mr, ok := byMonth[key]
		if !ok {
			month, _ := time.Parse("2006-01", key)
			mr = &MonthlyReturn{Month: month}
			byMonth[key] = mr
		}
		mr.NetPnL += t.NetPnL
		mr.Trades++
	}
	returns := make([]MonthlyReturn, 0, len(byMonth))
	for _, mr := range byMonth {
		returns = append(returns, *mr)
	}
	sort.Slice(returns, func(i, j int) bool {
		return returns[i].Month.Before(returns[j].Month)
	})
	return returns
}

// MaxDrawdown returns the largest peak-to-trough decline of cumulative net P&L,
// walking trades in exit order. The result is zero or positive.
func MaxDrawdown(trades []*domain.AggregatedTrade) float64 {
	ordered := make([]*domain.AggregatedTrade, len(trades))
	copy(ordered, trades)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ExitTime.Before(ordered[j].ExitTime)
	})

	var equity, peak, maxDD float64
	for _, t := range ordered {
		equity += t.NetPnL
		peak = math.Max(peak, equity)
		maxDD = math.Max(maxDD, peak-equity)
	}
	return maxDD
}

// BySymbol splits trades per symbol, preserving their order.
func BySymbol(trades []*domain.AggregatedTrade) map[string][]*domain.AggregatedTrade {
	out := make(map[string][]*domain.AggregatedTrade)
	for _, t := range trades {
		out[t.Symbol] = append(out[t.Symbol], t)
	}
	return out
}
