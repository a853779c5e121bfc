package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cryptoTradeSync/internal/aggregator"
	"cryptoTradeSync/internal/analytics"
	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/lifecycle"
	"cryptoTradeSync/internal/ports"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

// runner carries the mutable state of one run.
type runner struct {
	s        *SyncService
	result   *domain.AggregationResult
	progress domain.ProgressFunc

	cpMu sync.Mutex // Single writer for cp during the fetch fan-out
	cp   *domain.SyncCheckpoint

	progressMu sync.Mutex
	failuresMu sync.Mutex
}

func (r *runner) emit(p domain.Progress) {
	if r.progress == nil {
		return
	}
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	r.progress(p)
}

func (r *runner) addFailure(f domain.PartialFailure) {
	r.failuresMu.Lock()
	defer r.failuresMu.Unlock()
	r.result.PartialFailures = append(r.result.PartialFailures, f)
	r.s.metrics.PartialFailures.WithLabelValues(string(f.Scope)).Inc()
}

func (r *runner) checkpoint() *domain.SyncCheckpoint {
	r.cpMu.Lock()
	defer r.cpMu.Unlock()
	return r.cp
}

// advance records the phase in the checkpoint. The phase is informational: resume always
// recomputes everything after the fetch phases from staged data.
func (r *runner) advance(ctx context.Context, phase domain.SyncPhase) {
	r.cpMu.Lock()
	next := r.cp.Clone()
	next.Phase = phase
	next.UpdatedAt = r.s.now()
	r.cp = next
	r.cpMu.Unlock()
	if err := r.s.checkpoints.SaveCheckpoint(ctx, next); err != nil {
		r.s.logger.Warn(ctx, "Failed to record phase in checkpoint", map[string]interface{}{"phase": phase, "error": err.Error()})
	}
}

// run executes the phases on cp. The caller holds the active run slot.
func (s *SyncService) run(ctx context.Context, cp *domain.SyncCheckpoint, resumed bool, progress domain.ProgressFunc) (*domain.AggregationResult, error) {
	r := &runner{
		s:        s,
		cp:       cp,
		progress: progress,
		result: &domain.AggregationResult{
			RunID:           cp.RunID,
			AccountID:       cp.AccountID,
			State:           domain.StateRunning,
			Resumed:         resumed,
			StartedAt:       s.now(),
			WindowStart:     cp.WindowStart,
			WindowEnd:       cp.WindowEnd,
			PartialFailures: make([]domain.PartialFailure, 0),
		},
	}

	if err := r.fetchIncome(ctx); err != nil {
		return r.fail(ctx, domain.StateCheckpointed, err)
	}
	if err := r.fetchTrades(ctx); err != nil {
		if errors.Is(err, ports.ErrNoSymbolsProcessed) {
			return r.fail(ctx, domain.StateError, err)
		}
		return r.fail(ctx, domain.StateCheckpointed, err)
	}

	data, err := s.checkpoints.LoadStaged(ctx, cp.AccountID)
	if err != nil {
		return r.fail(ctx, domain.StateCheckpointed, fmt.Errorf("failed to load staged data: %w", err))
	}

	grouped := r.group(ctx, data)
	trades := r.aggregate(ctx, data, grouped)
	admitted := r.validate(ctx, trades, data.Income)
	if err := r.insert(ctx, admitted); err != nil {
		return r.fail(ctx, domain.StateCheckpointed, err)
	}
	return r.succeed(ctx)
}

// fetchIncome fetches and stages the window's ledger unless the checkpoint already has it,
// then fixes the symbol set.
func (r *runner) fetchIncome(ctx context.Context) error {
	s := r.s
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseFetchingIncome)))
	defer timer.ObserveDuration()

	cp := r.checkpoint()
	if cp.IncomeFetched {
		r.emit(domain.Progress{Phase: domain.PhaseFetchingIncome, Current: 1, Total: 1, Message: "ledger loaded from checkpoint"})
		return nil
	}
	r.emit(domain.Progress{Phase: domain.PhaseFetchingIncome, Current: 0, Total: 1, Message: "fetching ledger"})

	var income []*domain.LedgerEntry
	err := s.withRetry(ctx, "GetIncome", domain.PhaseFetchingIncome, r.emit, func(ctx context.Context) error {
		var err error
		income, err = s.exchange.GetIncome(ctx, cp.WindowStart, cp.WindowEnd)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to fetch ledger: %w", err)
	}

	next := cp.Clone()
	next.Symbols = symbolSet(s.cfg.Symbols, income)
	next.IncomeFetched = true
	next.Phase = domain.PhaseFetchingTrades
	next.UpdatedAt = s.now()
	if err := s.checkpoints.StageIncome(ctx, next, income); err != nil {
		return fmt.Errorf("failed to stage ledger: %w", err)
	}
	r.cpMu.Lock()
	r.cp = next
	r.cpMu.Unlock()

	r.emit(domain.Progress{
		Phase:   domain.PhaseFetchingIncome,
		Current: 1,
		Total:   1,
		Message: fmt.Sprintf("%d ledger entries across %d symbols", len(income), len(next.Symbols)),
	})
	return nil
}

// fetchTrades fetches the remaining symbols with bounded concurrency. Each symbol's fills and
// orders are staged together with its processed mark; a symbol that fails is reported and
// left unprocessed for the next resume.
func (r *runner) fetchTrades(ctx context.Context) error {
	s := r.s
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseFetchingTrades)))
	defer timer.ObserveDuration()

	cp := r.checkpoint()
	remaining := cp.Remaining()
	total := len(cp.Symbols)
	done := len(cp.Processed)
	s.metrics.RemainingSymbols.Set(float64(len(remaining)))
	r.emit(domain.Progress{
		Phase:   domain.PhaseFetchingTrades,
		Current: done,
		Total:   total,
		Message: fmt.Sprintf("%d symbols to fetch, %d already processed", len(remaining), done),
	})

	var doneMu sync.Mutex
	fetchedNow := 0
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.FetchConcurrency)
	for _, symbol := range remaining {
		symbol := symbol
		g.Go(func() error {
			err := r.fetchSymbol(gctx, symbol, cp.WindowStart, cp.WindowEnd)
			if err != nil {
				if ports.IsAccountLevel(err) || gctx.Err() != nil {
					return err
				}
				r.addFailure(domain.PartialFailure{
					Scope: domain.ScopeSymbol,
					Key:   symbol,
					Phase: domain.PhaseFetchingTrades,
					Error: err.Error(),
				})
				s.logger.Warn(gctx, "Symbol fetch failed, continuing", map[string]interface{}{"symbol": symbol, "error": err.Error()})
				return nil
			}
			doneMu.Lock()
			done++
			fetchedNow++
			current := done
			doneMu.Unlock()
			s.metrics.RemainingSymbols.Dec()
			r.emit(domain.Progress{Phase: domain.PhaseFetchingTrades, Current: current, Total: total, Message: symbol})
			return nil
		})
	}
	err := g.Wait()
	r.result.SymbolsFetchedNow = fetchedNow
	if err != nil {
		return fmt.Errorf("fetching trades aborted: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	cp = r.checkpoint()
	r.result.SymbolsTotal = len(cp.Symbols)
	r.result.SymbolsProcessed = len(cp.Processed)
	if len(cp.Symbols) > 0 && len(cp.Processed) == 0 {
		return ports.ErrNoSymbolsProcessed
	}
	return nil
}

func (r *runner) fetchSymbol(ctx context.Context, symbol string, start, end time.Time) error {
	s := r.s
	var fills []*domain.Fill
	err := s.withRetry(ctx, "GetFills", domain.PhaseFetchingTrades, r.emit, func(ctx context.Context) error {
		var err error
		fills, err = s.exchange.GetFills(ctx, symbol, start, end)
		return err
	})
	if err != nil {
		return err
	}

	var orders []*domain.Order
	err = s.withRetry(ctx, "GetOrders", domain.PhaseFetchingTrades, r.emit, func(ctx context.Context) error {
		var err error
		orders, err = s.exchange.GetOrders(ctx, symbol, start, end)
		return err
	})
	if err != nil {
		if ports.IsAccountLevel(err) || ctx.Err() != nil {
			return err
		}
		// Order types are context only.
		s.logger.Warn(ctx, "Orders unavailable, order types default to none", map[string]interface{}{"symbol": symbol, "error": err.Error()})
		orders = []*domain.Order{}
	}

	// The staging write and the processed mark commit together.
	r.cpMu.Lock()
	defer r.cpMu.Unlock()
	next := r.cp.WithProcessed(symbol, s.now())
	if err := s.checkpoints.StageSymbol(ctx, next, symbol, fills, orders); err != nil {
		return fmt.Errorf("failed to stage %s: %w", symbol, err)
	}
	r.cp = next
	return nil
}

func (r *runner) group(ctx context.Context, data *domain.RawDataset) *lifecycle.Result {
	s := r.s
	r.advance(ctx, domain.PhaseGrouping)
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseGrouping)))
	defer timer.ObserveDuration()

	r.emit(domain.Progress{Phase: domain.PhaseGrouping, Current: 0, Total: len(data.Fills), Message: "grouping fills into lifecycles"})
	res := lifecycle.NewGrouper(s.logger, r.checkpoint().HedgeMode).Group(ctx, data)

	r.result.LifecyclesTotal = len(res.Lifecycles)
	r.result.CompleteLifecycles = res.Count(domain.LifecycleComplete)
	r.result.IncompleteLifecycles = res.Count(domain.LifecycleIncomplete)
	r.result.FlippedLifecycles = res.Count(domain.LifecycleFlipped)
	r.result.OrphanFills = len(res.OrphanFills)
	r.emit(domain.Progress{
		Phase:   domain.PhaseGrouping,
		Current: len(data.Fills),
		Total:   len(data.Fills),
		Message: fmt.Sprintf("%d lifecycles (%d complete, %d open)", len(res.Lifecycles), r.result.CompleteLifecycles, r.result.IncompleteLifecycles),
	})
	return res
}

// aggregate runs the aggregator over every closed lifecycle. Flipped lifecycles are passed
// through so they surface as per-lifecycle failures.
func (r *runner) aggregate(ctx context.Context, data *domain.RawDataset, grouped *lifecycle.Result) []*domain.AggregatedTrade {
	s := r.s
	r.advance(ctx, domain.PhaseAggregating)
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseAggregating)))
	defer timer.ObserveDuration()

	closed := make([]*domain.PositionLifecycle, 0, len(grouped.Lifecycles))
	for _, lc := range grouped.Lifecycles {
		if lc.Status != domain.LifecycleIncomplete {
			closed = append(closed, lc)
		}
	}

	agg := aggregator.New(s.logger, data.OrdersByID())
	trades, failures := agg.AggregateAll(ctx, closed, func(current, total int) {
		r.emit(domain.Progress{Phase: domain.PhaseAggregating, Current: current, Total: total})
	})
	if len(closed) == 0 {
		r.emit(domain.Progress{Phase: domain.PhaseAggregating, Current: 0, Total: 0, Message: "no closed lifecycles"})
	}
	for _, f := range failures {
		r.addFailure(domain.PartialFailure{
			Scope: domain.ScopeLifecycle,
			Key:   f.LifecycleID,
			Phase: domain.PhaseAggregating,
			Error: f.Reason,
		})
	}

	r.result.TradesAggregated = len(trades)
	s.metrics.TradesAggregated.Add(float64(len(trades)))
	return trades
}

// validate admits trades and reconciles the admitted set against the ledger.
func (r *runner) validate(ctx context.Context, trades []*domain.AggregatedTrade, ledger []*domain.LedgerEntry) []*domain.AggregatedTrade {
	s := r.s
	r.advance(ctx, domain.PhaseValidating)
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseValidating)))
	defer timer.ObserveDuration()

	r.emit(domain.Progress{Phase: domain.PhaseValidating, Current: 0, Total: len(trades), Message: "validating trades"})
	batch := s.validator.ValidateAll(trades)
	admitted := batch.Admitted()
	for _, t := range batch.Invalid {
		s.logger.Warn(ctx, "Trade rejected by validation", map[string]interface{}{
			"tradeId": t.ID,
			"errors":  t.Validation.Errors,
		})
	}

	report := s.reconciler.Reconcile(admitted, ledger)
	stats := analytics.Summarize(admitted)

	r.result.Validation = batch.Summary
	r.result.TradesAdmitted = len(admitted)
	r.result.TradesRejected = len(batch.Invalid)
	r.result.Reconciliation = report
	r.result.Stats = stats
	s.metrics.TradesAdmitted.Add(float64(len(admitted)))
	s.metrics.TradesRejected.Add(float64(len(batch.Invalid)))
	s.metrics.ReconciliationPct.Set(report.DifferencePct)

	fields := map[string]interface{}{
		"aggregatedTotal":  report.AggregatedTotal,
		"matchedTotal":     report.MatchedTotal,
		"unmatchedOpenPnl": report.UnmatchedOpenPnL,
		"differencePct":    report.DifferencePct,
	}
	if report.Reconciled {
		s.logger.Info(ctx, "Reconciliation passed", fields)
	} else {
		s.logger.Warn(ctx, "Reconciliation mismatch", fields)
	}

	r.emit(domain.Progress{
		Phase:   domain.PhaseValidating,
		Current: len(trades),
		Total:   len(trades),
		Message: fmt.Sprintf("%d admitted, %d rejected, reconciliation %.3f%%", len(admitted), len(batch.Invalid), report.DifferencePct),
	})
	return admitted
}

// insert persists admitted trades in batches. A failed batch is reported and the rest continue;
// a run that persisted nothing of a non-empty set fails so the checkpoint survives.
func (r *runner) insert(ctx context.Context, admitted []*domain.AggregatedTrade) error {
	s := r.s
	r.advance(ctx, domain.PhaseInserting)
	timer := prometheus.NewTimer(s.metrics.PhaseDuration.WithLabelValues(string(domain.PhaseInserting)))
	defer timer.ObserveDuration()

	cp := r.checkpoint()
	if cp.ForceRefetch {
		deleted, err := s.trades.DeleteTradesInRange(ctx, cp.WindowStart, cp.WindowEnd)
		if err != nil {
			return fmt.Errorf("failed to delete trades for refetch: %w", err)
		}
		r.result.TradesDeleted = deleted
	}

	total := len(admitted)
	persisted := 0
	batchSize := s.cfg.InsertBatchSize
	r.emit(domain.Progress{Phase: domain.PhaseInserting, Current: 0, Total: total, Message: "persisting trades"})
	for start := 0; start < total; start += batchSize {
		end := start + batchSize
		if end > total {
			end = total
		}
		n, err := s.trades.UpsertTrades(ctx, admitted[start:end])
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.addFailure(domain.PartialFailure{
				Scope: domain.ScopeBatch,
				Key:   fmt.Sprintf("trades[%d:%d]", start, end),
				Phase: domain.PhaseInserting,
				Error: err.Error(),
			})
			s.logger.Error(ctx, err, "Trade batch failed to persist", map[string]interface{}{"from": start, "to": end})
			continue
		}
		persisted += n
		r.emit(domain.Progress{Phase: domain.PhaseInserting, Current: end, Total: total})
	}
	r.result.TradesPersisted = persisted

	if total > 0 && persisted == 0 {
		return fmt.Errorf("%w: none of %d admitted trades could be persisted", ports.ErrUpdateFailed, total)
	}
	return nil
}

func (r *runner) succeed(ctx context.Context) (*domain.AggregationResult, error) {
	s := r.s
	if remaining := r.checkpoint().Remaining(); len(remaining) > 0 {
		// Failed symbols stay unprocessed so a resume fetches only them.
		r.advance(ctx, domain.PhaseFetchingTrades)
		s.metrics.RemainingSymbols.Set(float64(len(remaining)))
		s.logger.Warn(ctx, "Checkpoint kept for failed symbols", map[string]interface{}{
			"runId":     r.result.RunID,
			"remaining": remaining,
		})
	} else {
		if err := s.checkpoints.ClearCheckpoint(ctx, r.result.AccountID); err != nil {
			// Trades are already persisted; a stale checkpoint only costs a redundant resume.
			s.logger.Error(ctx, err, "Failed to clear checkpoint after successful sync")
		}
		s.metrics.RemainingSymbols.Set(0)
	}

	r.result.State = domain.StateSuccess
	r.finish(ctx)
	s.end(domain.StateSuccess)

	s.logger.Info(ctx, "Sync finished", map[string]interface{}{
		"runId":           r.result.RunID,
		"resumed":         r.result.Resumed,
		"symbols":         r.result.SymbolsProcessed,
		"tradesPersisted": r.result.TradesPersisted,
		"partialFailures": len(r.result.PartialFailures),
		"reconciled":      r.result.Reconciliation.Reconciled,
	})
	return r.result, nil
}

// fail ends the run in state. The checkpoint is kept so the run can be resumed.
func (r *runner) fail(ctx context.Context, state domain.RunState, err error) (*domain.AggregationResult, error) {
	s := r.s
	cp := r.checkpoint()
	r.result.SymbolsTotal = len(cp.Symbols)
	r.result.SymbolsProcessed = len(cp.Processed)
	r.result.State = state
	r.result.Error = err.Error()
	r.finish(context.WithoutCancel(ctx))
	s.end(state)

	s.logger.Error(ctx, err, "Sync failed", map[string]interface{}{
		"runId":     r.result.RunID,
		"state":     state,
		"processed": len(cp.Processed),
		"symbols":   len(cp.Symbols),
	})
	return r.result, err
}

// finish writes the audit record and the stored result.
func (r *runner) finish(ctx context.Context) {
	s := r.s
	r.result.FinishedAt = s.now()
	s.metrics.SyncRuns.WithLabelValues(string(r.result.State)).Inc()

	run := &domain.SyncRun{
		RunID:      r.result.RunID,
		AccountID:  r.result.AccountID,
		Resumed:    r.result.Resumed,
		State:      r.result.State,
		StartedAt:  r.result.StartedAt,
		FinishedAt: r.result.FinishedAt,
		Error:      r.result.Error,
	}
	if err := s.runs.RecordRun(ctx, run); err != nil {
		s.logger.Error(ctx, err, "Failed to record sync run", map[string]interface{}{"runId": run.RunID})
	}
	if err := s.runs.SaveResult(ctx, r.result); err != nil {
		s.logger.Error(ctx, err, "Failed to save sync result", map[string]interface{}{"runId": run.RunID})
	}
}
