// Package lifecycle groups raw fills into open-to-close position lifecycles
// and attributes ledger entries to them.
package lifecycle

import (
	"context"
	"sort"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// QuantityEpsilon is the tolerance used when comparing cumulative quantities.
const QuantityEpsilon = 1e-8

// Result is the output of one grouping pass.
type Result struct {
	Lifecycles  []*domain.PositionLifecycle // Complete, flipped and incomplete, ordered by entry time
	OrphanFills []*domain.Fill              // Closing fills seen with no open entry quantity
}

// Complete returns only the lifecycles eligible for aggregation.
func (r *Result) Complete() []*domain.PositionLifecycle {
	out := make([]*domain.PositionLifecycle, 0, len(r.Lifecycles))
	for _, lc := range r.Lifecycles {
		if lc.IsComplete() {
			out = append(out, lc)
		}
	}
	return out
}

// Count returns the number of lifecycles with the given status.
func (r *Result) Count(status domain.LifecycleStatus) int {
	n := 0
	for _, lc := range r.Lifecycles {
		if lc.Status == status {
			n++
		}
	}
	return n
}

// Grouper turns a time-unordered fill stream into position lifecycles.
type Grouper struct {
	logger    ports.Logger
	hedgeMode bool
	matcher   *Matcher
}

// NewGrouper creates a grouper. In hedge mode fills are keyed by symbol and position side
// and the direction comes from the position-side tag.
func NewGrouper(logger ports.Logger, hedgeMode bool) *Grouper {
	return &Grouper{
		logger:    logger,
		hedgeMode: hedgeMode,
		matcher:   NewMatcher(DefaultFallbackWindow),
	}
}

// tracker accumulates the fills of the lifecycle currently open for one key.
type tracker struct {
	symbol       string
	positionSide domain.PositionSide
	direction    domain.Direction
	entryFills   []*domain.Fill
	exitFills    []*domain.Fill
	entryQty     float64
	exitQty      float64
}

func (t *tracker) lifecycle(status domain.LifecycleStatus) *domain.PositionLifecycle {
	first := t.entryFills[0]
	last := first
	for _, fills := range [][]*domain.Fill{t.entryFills, t.exitFills} {
		for _, f := range fills {
			if f.Time.After(last.Time) {
				last = f
			}
		}
	}
	lc := &domain.PositionLifecycle{
		ID:            domain.LifecycleID(t.symbol, t.positionSide, first.Time),
		Symbol:        t.symbol,
		PositionSide:  t.positionSide,
		Direction:     t.direction,
		EntryFills:    t.entryFills,
		ExitFills:     t.exitFills,
		EntryQuantity: t.entryQty,
		ExitQuantity:  t.exitQty,
		EntryTime:     first.Time,
		ExitTime:      last.Time,
		Status:        status,
	}
	if status == domain.LifecycleFlipped {
		lc.Overshoot = t.exitQty - t.entryQty
	}
	return lc
}

// Group builds lifecycles from the dataset's fills and attributes its ledger entries.
// The dataset is not modified.
func (g *Grouper) Group(ctx context.Context, data *domain.RawDataset) *Result {
	fills := make([]*domain.Fill, len(data.Fills))
	copy(fills, data.Fills)
	sort.SliceStable(fills, func(i, j int) bool {
		if fills[i].Time.Equal(fills[j].Time) {
			return fills[i].ID < fills[j].ID
		}
		return fills[i].Time.Before(fills[j].Time)
	})

	res := &Result{
		Lifecycles:  make([]*domain.PositionLifecycle, 0),
		OrphanFills: make([]*domain.Fill, 0),
	}
	trackers := make(map[string]*tracker)
	keys := make([]string, 0)
	seen := make(map[string]bool)

	for _, f := range fills {
		if f.Quantity <= 0 {
			continue
		}
		key := g.key(f)
		t, ok := trackers[key]
		if !ok {
			// Direction must be fixed before classifying this same fill.
			dir, known := g.direction(f)
			if !known {
				res.OrphanFills = append(res.OrphanFills, f)
				continue
			}
			t = &tracker{symbol: f.Symbol, positionSide: g.positionSide(f), direction: dir}
			trackers[key] = t
			if !seen[key] {
				seen[key] = true
				keys = append(keys, key)
			}
		}

		if f.Side == t.direction.OpeningSide() {
			t.entryFills = append(t.entryFills, f)
			t.entryQty += f.Quantity
		} else {
			if t.entryQty <= 0 {
				// Closing a position opened before the window.
				res.OrphanFills = append(res.OrphanFills, f)
				delete(trackers, key)
				continue
			}
			t.exitFills = append(t.exitFills, f)
			t.exitQty += f.Quantity
		}

		if t.entryQty > 0 && t.exitQty >= t.entryQty-QuantityEpsilon {
			status := domain.LifecycleComplete
			if t.exitQty > t.entryQty+QuantityEpsilon {
				status = domain.LifecycleFlipped
				g.logger.Warn(ctx, "Position flip detected, lifecycle flagged and not split", map[string]interface{}{
					"symbol":    t.symbol,
					"side":      t.positionSide,
					"entryQty":  t.entryQty,
					"exitQty":   t.exitQty,
					"overshoot": t.exitQty - t.entryQty,
				})
			}
			res.Lifecycles = append(res.Lifecycles, t.lifecycle(status))
			delete(trackers, key)
		}
	}

	for _, key := range keys {
		t, ok := trackers[key]
		if !ok || t.entryQty <= 0 {
			continue
		}
		res.Lifecycles = append(res.Lifecycles, t.lifecycle(domain.LifecycleIncomplete))
	}

	sort.SliceStable(res.Lifecycles, func(i, j int) bool {
		return res.Lifecycles[i].EntryTime.Before(res.Lifecycles[j].EntryTime)
	})

	g.matcher.Attribute(res.Lifecycles, data.Income)

	g.logger.Info(ctx, "Fills grouped into lifecycles", map[string]interface{}{
		"fills":      len(fills),
		"lifecycles": len(res.Lifecycles),
		"complete":   res.Count(domain.LifecycleComplete),
		"incomplete": res.Count(domain.LifecycleIncomplete),
		"flipped":    res.Count(domain.LifecycleFlipped),
		"orphans":    len(res.OrphanFills),
	})
	return res
}

func (g *Grouper) key(f *domain.Fill) string {
	if g.hedgeMode {
		return f.Symbol + "|" + string(f.PositionSide)
	}
	return f.Symbol
}

func (g *Grouper) positionSide(f *domain.Fill) domain.PositionSide {
	if g.hedgeMode && f.PositionSide != "" {
		return f.PositionSide
	}
	return domain.PositionSideBoth
}

// direction derives the lifecycle direction from the first fill of a key.
// It returns false when the fill can only be a close (hedge-mode exit with nothing open).
func (g *Grouper) direction(f *domain.Fill) (domain.Direction, bool) {
	if g.hedgeMode {
		switch f.PositionSide {
		case domain.PositionSideLong:
			return domain.DirectionLong, f.Side == domain.Buy
		case domain.PositionSideShort:
			return domain.DirectionShort, f.Side == domain.Sell
		}
	}
	if f.Side == domain.Sell {
		return domain.DirectionShort, true
	}
	return domain.DirectionLong, true
}
