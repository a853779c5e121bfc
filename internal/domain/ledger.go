package domain

import (
	"strconv"
	"time"
)

// IncomeType is the exchange's accounting category for a ledger entry.
type IncomeType string

const (
	IncomeRealizedPnL IncomeType = "REALIZED_PNL"
	IncomeCommission  IncomeType = "COMMISSION"
	IncomeFundingFee  IncomeType = "FUNDING_FEE"
)

// LedgerEntry is one exchange income record. Ledger entries are the authoritative
// source of P&L and fees.
type LedgerEntry struct {
	TransactionID int64      // Exchange transaction ID
	Type          IncomeType // REALIZED_PNL, COMMISSION, FUNDING_FEE, ...
	Symbol        string     // Empty for account-level entries (transfers)
	Amount        float64    // Signed amount
	Asset         string     // Settlement asset (e.g., "USDT")
	FillID        string     // Originating fill ID, empty when the exchange does not report one
	Time          time.Time
}

// Key identifies a ledger entry uniquely. Transaction IDs alone are not unique
// across income types, so the type and fill reference are part of the key.
func (e *LedgerEntry) Key() string {
	return strconv.FormatInt(e.TransactionID, 10) + ":" + string(e.Type) + ":" + e.FillID
}

// HasFillRef reports whether the entry carries an originating-fill reference.
func (e *LedgerEntry) HasFillRef() bool {
	return e.FillID != "" && e.FillID != "0"
}

// IsTradeIncome reports whether the entry is realized P&L or commission,
// the two types that are attributed through fills.
func (e *LedgerEntry) IsTradeIncome() bool {
	return e.Type == IncomeRealizedPnL || e.Type == IncomeCommission
}

// RawDataset is the merged raw input of one sync window.
type RawDataset struct {
	Fills  []*Fill
	Orders []*Order
	Income []*LedgerEntry
}

// OrdersByID indexes the orders of the dataset.
func (d *RawDataset) OrdersByID() map[int64]*Order {
	byID := make(map[int64]*Order, len(d.Orders))
	for _, o := range d.Orders {
		byID[o.ID] = o
	}
	return byID
}
