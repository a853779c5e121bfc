package domain

import (
	"fmt"
	"time"
)

// LifecycleStatus describes whether a lifecycle can be aggregated.
type LifecycleStatus string

const (
	LifecycleComplete   LifecycleStatus = "complete"   // Entry quantity fully offset by exits
	LifecycleIncomplete LifecycleStatus = "incomplete" // Still open at the end of the window
	LifecycleFlipped    LifecycleStatus = "flipped"    // Exit quantity overshot entry quantity
)

// PositionLifecycle is one full position episode for a symbol (and side, under hedge mode).
// Lifecycles are built by the lifecycle grouper and not modified afterwards.
type PositionLifecycle struct {
	ID            string
	Symbol        string
	PositionSide  PositionSide
	Direction     Direction
	EntryFills    []*Fill
	ExitFills     []*Fill
	Ledger        []*LedgerEntry // Entries attributed to this episode
	EntryQuantity float64
	ExitQuantity  float64
	Overshoot     float64 // Exit quantity beyond entry quantity when Status is LifecycleFlipped
	EntryTime     time.Time
	ExitTime      time.Time // Time of the last fill; last exit for complete lifecycles
	Status        LifecycleStatus
}

// IsComplete reports whether the lifecycle is closed and eligible for aggregation.
func (l *PositionLifecycle) IsComplete() bool {
	return l.Status == LifecycleComplete
}

// LedgerByType returns the attributed entries of the given type.
func (l *PositionLifecycle) LedgerByType(t IncomeType) []*LedgerEntry {
	out := make([]*LedgerEntry, 0)
	for _, e := range l.Ledger {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// LifecycleID builds the lifecycle identifier from its key and start.
func LifecycleID(symbol string, side PositionSide, entryTime time.Time) string {
	return fmt.Sprintf("%s:%s:%d", symbol, side, entryTime.UnixMilli())
}
