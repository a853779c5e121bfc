package domain

import (
	"fmt"
	"time"
)

// AggregatedTrade is one normalized record per complete position lifecycle.
// It is the unit persisted to storage.
type AggregatedTrade struct {
	ID             string // Deterministic: symbol + entry time + exit time
	LifecycleID    string
	Symbol         string
	Direction      Direction
	PositionSide   PositionSide
	EntryPrice     float64 // Quantity-weighted average over entry fills
	ExitPrice      float64 // Quantity-weighted average over exit fills
	Quantity       float64
	RealizedPnL    float64 // Sum of matched REALIZED_PNL ledger entries
	Commission     float64 // Absolute sum of matched COMMISSION entries
	FundingFees    float64 // Signed sum of matched FUNDING_FEE entries
	Fees           float64 // Commission + |FundingFees|
	NetPnL         float64 // RealizedPnL - Fees
	Outcome        Outcome
	EntryTime      time.Time
	ExitTime       time.Time
	HoldMinutes    int64
	IsMaker        bool
	EntryOrderType OrderType
	ExitOrderType  OrderType
	EntryFillCount int
	ExitFillCount  int
	LedgerKeys     []string // Keys of the ledger entries consumed by this trade
	Validation     ValidationResult
}

// TradeID derives the deterministic trade identifier.
func TradeID(symbol string, entryTime, exitTime time.Time) string {
	return fmt.Sprintf("%s-%d-%d", symbol, entryTime.UnixMilli(), exitTime.UnixMilli())
}

// ValidationIssue is one failed check.
type ValidationIssue struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// CrossCheck holds the price-implied versus ledger-reported P&L comparison.
type CrossCheck struct {
	ComputedPnL   float64 `json:"computedPnl"`
	ReportedPnL   float64 `json:"reportedPnl"`
	Difference    float64 `json:"difference"`
	DifferencePct float64 `json:"differencePct"`
}

// ValidationResult is the verdict attached to each aggregated trade.
type ValidationResult struct {
	Errors     []ValidationIssue `json:"errors"`   // Critical: block persistence
	Warnings   []ValidationIssue `json:"warnings"` // Admissible, flagged for review
	CrossCheck CrossCheck        `json:"crossCheck"`
}

// IsValid reports whether the trade may be persisted.
func (v ValidationResult) IsValid() bool {
	return len(v.Errors) == 0
}

// HasWarnings reports whether the trade carries non-blocking warnings.
func (v ValidationResult) HasWarnings() bool {
	return len(v.Warnings) > 0
}
