package lifecycle

import (
	"sort"
	"strconv"
	"time"

	"cryptoTradeSync/internal/domain"
)

// DefaultFallbackWindow is the slack around a lifecycle's span used when a
// realized P&L or commission entry carries no fill reference.
const DefaultFallbackWindow = 60 * time.Second

// Matcher attributes ledger entries to lifecycles in three passes:
// exact fill-reference match, time-window fallback over the unclaimed remainder
// (entries without a fill reference only), then funding fees by symbol and span.
// An entry is claimed by at most one lifecycle.
type Matcher struct {
	window time.Duration
}

// NewMatcher creates a matcher with the given fallback window.
func NewMatcher(window time.Duration) *Matcher {
	return &Matcher{window: window}
}

// Attribute resets and fills the Ledger of every lifecycle. It returns the claiming
// lifecycle per ledger entry key.
func (m *Matcher) Attribute(lifecycles []*domain.PositionLifecycle, entries []*domain.LedgerEntry) map[string]*domain.PositionLifecycle {
	claimed := make(map[string]*domain.PositionLifecycle)
	ordered := make([]*domain.LedgerEntry, len(entries))
	copy(ordered, entries)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Time.Before(ordered[j].Time) })

	byFill := make(map[string]*domain.PositionLifecycle)
	for _, lc := range lifecycles {
		lc.Ledger = make([]*domain.LedgerEntry, 0)
		for _, fills := range [][]*domain.Fill{lc.EntryFills, lc.ExitFills} {
			for _, f := range fills {
				byFill[fillKey(lc.Symbol, strconv.FormatInt(f.ID, 10))] = lc
			}
		}
	}

	claim := func(e *domain.LedgerEntry, lc *domain.PositionLifecycle) {
		lc.Ledger = append(lc.Ledger, e)
		claimed[e.Key()] = lc
	}

	// Pass 1: exact fill reference.
	for _, e := range ordered {
		if !e.IsTradeIncome() || !e.HasFillRef() {
			continue
		}
		if lc, ok := byFill[fillKey(e.Symbol, e.FillID)]; ok {
			claim(e, lc)
		}
	}

	// Pass 2: time window, only for unclaimed entries that lack a fill reference.
	for _, e := range ordered {
		if !e.IsTradeIncome() || e.HasFillRef() {
			continue
		}
		if _, done := claimed[e.Key()]; done {
			continue
		}
		if lc := m.nearest(lifecycles, e); lc != nil {
			claim(e, lc)
		}
	}

	// Pass 3: funding fees strictly inside the entry-to-exit span.
	for _, e := range ordered {
		if e.Type != domain.IncomeFundingFee {
			continue
		}
		for _, lc := range lifecycles {
			if lc.Symbol == e.Symbol && e.Time.After(lc.EntryTime) && e.Time.Before(lc.ExitTime) {
				claim(e, lc)
				break
			}
		}
	}

	return claimed
}

// fillKey scopes a fill id to its symbol; exchange trade ids repeat across symbols.
func fillKey(symbol, fillID string) string {
	return symbol + ":" + fillID
}

// nearest picks the lifecycle of the entry's symbol whose widened span contains the
// entry, preferring the one whose span is closest to the entry time.
func (m *Matcher) nearest(lifecycles []*domain.PositionLifecycle, e *domain.LedgerEntry) *domain.PositionLifecycle {
	var best *domain.PositionLifecycle
	var bestDist time.Duration
	for _, lc := range lifecycles {
		if lc.Symbol != e.Symbol {
			continue
		}
		from := lc.EntryTime.Add(-m.window)
		to := lc.ExitTime.Add(m.window)
		if e.Time.Before(from) || e.Time.After(to) {
			continue
		}
		dist := spanDistance(lc, e.Time)
		if best == nil || dist < bestDist {
			best, bestDist = lc, dist
		}
	}
	return best
}

func spanDistance(lc *domain.PositionLifecycle, t time.Time) time.Duration {
	switch {
	case t.Before(lc.EntryTime):
		return lc.EntryTime.Sub(t)
	case t.After(lc.ExitTime):
		return t.Sub(lc.ExitTime)
	default:
		return 0
	}
}
