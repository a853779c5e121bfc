// Package reconcile compares aggregated trade P&L with the exchange ledger entries
// those trades consumed.
package reconcile

import (
	"github.com/shopspring/decimal"

	"cryptoTradeSync/internal/domain"
)

// DefaultTolerancePct is the maximum difference, in percent of the matched total,
// still considered reconciled.
const DefaultTolerancePct = 0.1

// Engine produces reconciliation verdicts.
type Engine struct {
	tolerance decimal.Decimal // fraction, e.g. 0.001
}

// NewEngine creates an engine with the given tolerance in percent.
func NewEngine(tolerancePct float64) *Engine {
	return &Engine{tolerance: decimal.NewFromFloat(tolerancePct).Div(decimal.NewFromInt(100))}
}

// Reconcile sums admitted trades' realized P&L and compares it with the sum of the
// REALIZED_PNL ledger entries attributed to those same trades. Entries of open or rejected
// lifecycles are excluded from the comparison and reported as UnmatchedOpenPnL.
func (e *Engine) Reconcile(admitted []*domain.AggregatedTrade, ledger []*domain.LedgerEntry) domain.ReconciliationReport {
	consumed := make(map[string]bool)
	aggregated := decimal.Zero
	for _, t := range admitted {
		aggregated = aggregated.Add(decimal.NewFromFloat(t.RealizedPnL))
		for _, k := range t.LedgerKeys {
			consumed[k] = true
		}
	}

	matched := decimal.Zero
	total := decimal.Zero
	matchedCount := 0
	seen := make(map[string]bool, len(ledger))
	for _, entry := range ledger {
		if entry.Type != domain.IncomeRealizedPnL || seen[entry.Key()] {
			continue
		}
		seen[entry.Key()] = true
		amount := decimal.NewFromFloat(entry.Amount)
		total = total.Add(amount)
		if consumed[entry.Key()] {
			matched = matched.Add(amount)
			matchedCount++
		}
	}

	diff := aggregated.Sub(matched).Abs()
	report := domain.ReconciliationReport{
		AggregatedTotal:   aggregated.InexactFloat64(),
		MatchedTotal:      matched.InexactFloat64(),
		LedgerTotal:       total.InexactFloat64(),
		UnmatchedOpenPnL:  total.Sub(matched).InexactFloat64(),
		Difference:        diff.InexactFloat64(),
		MatchedEntryCount: matchedCount,
	}

	switch {
	case aggregated.IsZero() && matched.IsZero():
		report.Reconciled = true
	case matched.IsZero():
		report.DifferencePct = 100
	default:
		report.DifferencePct = diff.Div(matched.Abs()).Mul(decimal.NewFromInt(100)).InexactFloat64()
		report.Reconciled = diff.LessThanOrEqual(matched.Abs().Mul(e.tolerance))
	}
	return report
}
