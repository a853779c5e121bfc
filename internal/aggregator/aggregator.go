// Package aggregator turns complete position lifecycles into normalized trade records.
package aggregator

import (
	"context"
	"fmt"
	"math"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// OutcomeEpsilon is the band around zero net P&L classified as breakeven.
const OutcomeEpsilon = 0.001

// Failure records a lifecycle that produced no trade.
type Failure struct {
	LifecycleID string
	Reason      string
}

// ProgressFunc is called after each lifecycle of a batch.
type ProgressFunc func(current, total int)

// Aggregator builds one AggregatedTrade per complete lifecycle.
type Aggregator struct {
	logger ports.Logger
	orders map[int64]*domain.Order
}

// New creates an aggregator. orders may be nil; order types then default to none.
func New(logger ports.Logger, orders map[int64]*domain.Order) *Aggregator {
	if orders == nil {
		orders = make(map[int64]*domain.Order)
	}
	return &Aggregator{logger: logger, orders: orders}
}

// Aggregate builds the trade for one lifecycle. Lifecycles that cannot produce a trade
// return a nil trade and an error wrapping ports.ErrLifecycleIncomplete, ports.ErrPositionFlip
// or ports.ErrLifecycleNoFills; the condition is logged here, callers just skip it.
func (a *Aggregator) Aggregate(ctx context.Context, lc *domain.PositionLifecycle) (*domain.AggregatedTrade, error) {
	if err := a.check(lc); err != nil {
		a.logger.Warn(ctx, "Lifecycle skipped by aggregator", map[string]interface{}{
			"lifecycleID": lc.ID,
			"symbol":      lc.Symbol,
			"reason":      err.Error(),
		})
		return nil, err
	}

	entryPrice, entryQty := weightedAverage(lc.EntryFills)
	exitPrice, _ := weightedAverage(lc.ExitFills)

	var realized, commission, funding float64
	keys := make([]string, 0, len(lc.Ledger))
	for _, e := range lc.Ledger {
		switch e.Type {
		case domain.IncomeRealizedPnL:
			realized += e.Amount
		case domain.IncomeCommission:
			commission += math.Abs(e.Amount)
		case domain.IncomeFundingFee:
			funding += e.Amount
		default:
			continue
		}
		keys = append(keys, e.Key())
	}
	fees := commission + math.Abs(funding)
	net := realized - fees

	entryTime := lc.EntryFills[0].Time
	exitTime := lc.ExitFills[len(lc.ExitFills)-1].Time

	trade := &domain.AggregatedTrade{
		ID:             domain.TradeID(lc.Symbol, entryTime, exitTime),
		LifecycleID:    lc.ID,
		Symbol:         lc.Symbol,
		Direction:      lc.Direction,
		PositionSide:   lc.PositionSide,
		EntryPrice:     entryPrice,
		ExitPrice:      exitPrice,
		Quantity:       entryQty,
		RealizedPnL:    realized,
		Commission:     commission,
		FundingFees:    funding,
		Fees:           fees,
		NetPnL:         net,
		Outcome:        ClassifyOutcome(net),
		EntryTime:      entryTime,
		ExitTime:       exitTime,
		HoldMinutes:    int64(exitTime.Sub(entryTime).Minutes()),
		IsMaker:        anyMaker(lc.EntryFills),
		EntryOrderType: a.orderType(lc.EntryFills[0]),
		ExitOrderType:  a.orderType(lc.ExitFills[0]),
		EntryFillCount: len(lc.EntryFills),
		ExitFillCount:  len(lc.ExitFills),
		LedgerKeys:     keys,
	}
	a.logger.Debug(ctx, "Lifecycle aggregated", map[string]interface{}{
		"tradeID": trade.ID,
		"symbol":  trade.Symbol,
		"netPnl":  trade.NetPnL,
		"outcome": trade.Outcome,
	})
	return trade, nil
}

// AggregateAll aggregates every lifecycle, continuing past failures.
// onProgress, if set, is called after each lifecycle.
func (a *Aggregator) AggregateAll(ctx context.Context, lifecycles []*domain.PositionLifecycle, onProgress ProgressFunc) ([]*domain.AggregatedTrade, []Failure) {
	trades := make([]*domain.AggregatedTrade, 0, len(lifecycles))
	failures := make([]Failure, 0)
	for i, lc := range lifecycles {
		trade, err := a.Aggregate(ctx, lc)
		if err != nil {
			failures = append(failures, Failure{LifecycleID: lc.ID, Reason: err.Error()})
		} else {
			trades = append(trades, trade)
		}
		if onProgress != nil {
			onProgress(i+1, len(lifecycles))
		}
	}
	return trades, failures
}

func (a *Aggregator) check(lc *domain.PositionLifecycle) error {
	switch {
	case lc.Status == domain.LifecycleFlipped:
		return fmt.Errorf("%w: overshoot %.8f", ports.ErrPositionFlip, lc.Overshoot)
	case !lc.IsComplete():
		return fmt.Errorf("%w: status %s", ports.ErrLifecycleIncomplete, lc.Status)
	case len(lc.EntryFills) == 0 || len(lc.ExitFills) == 0:
		return fmt.Errorf("%w: %d entry, %d exit", ports.ErrLifecycleNoFills, len(lc.EntryFills), len(lc.ExitFills))
	}
	return nil
}

func (a *Aggregator) orderType(f *domain.Fill) domain.OrderType {
	if o, ok := a.orders[f.OrderID]; ok && o.Type != "" {
		return o.Type
	}
	return domain.OrderTypeNone
}

// ClassifyOutcome maps net P&L to win/loss/breakeven with an OutcomeEpsilon dead band.
func ClassifyOutcome(net float64) domain.Outcome {
	switch {
	case net > OutcomeEpsilon:
		return domain.OutcomeWin
	case net < -OutcomeEpsilon:
		return domain.OutcomeLoss
	default:
		return domain.OutcomeBreakeven
	}
}

// weightedAverage returns Σ price·qty / Σ qty and Σ qty.
func weightedAverage(fills []*domain.Fill) (float64, float64) {
	var notional, qty float64
	for _, f := range fills {
		notional += f.Price * f.Quantity
		qty += f.Quantity
	}
	if qty == 0 {
		return 0, 0
	}
	return notional / qty, qty
}

func anyMaker(fills []*domain.Fill) bool {
	for _, f := range fills {
		if f.Maker {
			return true
		}
	}
	return false
}
