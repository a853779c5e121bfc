package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"cryptoTradeSync/config"
	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/metrics"
	"cryptoTradeSync/internal/ports"
	"cryptoTradeSync/internal/quota"
	"cryptoTradeSync/internal/reconcile"
	"cryptoTradeSync/internal/validation"

	"github.com/google/uuid"
)

// SyncOptions are the per-run settings of a fresh sync.
type SyncOptions struct {
	RangeDays    int  // Days back from now; ignored when AllTime is set
	AllTime      bool // Sync from cfg.AllTimeStart
	ForceRefetch bool // Replace persisted trades of the window
}

// StatusReport is a snapshot of the orchestrator and its persisted state.
type StatusReport struct {
	State          domain.RunState
	Running        bool
	Checkpoint     *domain.SyncCheckpoint
	LastResult     *domain.AggregationResult
	QuotaRemaining int // -1 when unlimited
}

// SyncService orchestrates fetch, grouping, aggregation, validation, reconciliation
// and persistence of one account's trades.
type SyncService struct {
	cfg         *config.Config
	logger      ports.Logger
	exchange    ports.ExchangeClient
	trades      ports.TradeRepository
	checkpoints ports.CheckpointRepository
	runs        ports.SyncRunRepository
	metrics     *metrics.Metrics
	quota       *quota.Limiter
	validator   *validation.Validator
	reconciler  *reconcile.Engine
	now         func() time.Time
	newRunID    func() string

	// State fields
	mu      sync.Mutex // Protects state and running
	state   domain.RunState
	running bool
}

// NewSyncService creates a new application service instance.
func NewSyncService(
	cfg *config.Config,
	logger ports.Logger,
	exchange ports.ExchangeClient,
	trades ports.TradeRepository,
	checkpoints ports.CheckpointRepository,
	runs ports.SyncRunRepository,
	m *metrics.Metrics,
) (*SyncService, error) {

	// Validate dependencies
	if cfg == nil || logger == nil || exchange == nil || trades == nil || checkpoints == nil || runs == nil || m == nil {
		return nil, fmt.Errorf("missing required dependencies for SyncService")
	}

	// Validate config values needed by service
	if cfg.AccountID == "" {
		return nil, fmt.Errorf("configuration AccountID must be set")
	}
	if cfg.FetchConcurrency <= 0 {
		return nil, fmt.Errorf("configuration FetchConcurrency must be positive")
	}
	if cfg.InsertBatchSize <= 0 {
		return nil, fmt.Errorf("configuration InsertBatchSize must be positive")
	}
	if cfg.RateLimitMaxRetries < 0 {
		return nil, fmt.Errorf("configuration RateLimitMaxRetries must not be negative")
	}

	s := &SyncService{
		cfg:         cfg,
		logger:      logger,
		exchange:    exchange,
		trades:      trades,
		checkpoints: checkpoints,
		runs:        runs,
		metrics:     m,
		validator:   validation.New(validation.DefaultConfig()),
		reconciler:  reconcile.NewEngine(reconcile.DefaultTolerancePct),
		now:         time.Now,
		newRunID:    uuid.NewString,
		state:       domain.StateIdle,
	}
	s.quota = quota.NewLimiter(runs, cfg.DailySyncQuota, func() time.Time { return s.now() })
	return s, nil
}

// State returns the current orchestrator state.
func (s *SyncService) State() domain.RunState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// begin claims the single active run slot.
func (s *SyncService) begin() (domain.RunState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s.state, ports.ErrSyncInProgress
	}
	prev := s.state
	s.running = true
	s.state = domain.StateRunning
	return prev, nil
}

// end releases the run slot and records the final state.
func (s *SyncService) end(state domain.RunState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.state = state
}

// StartFreshSync discards any checkpoint and syncs the requested window from scratch.
// The daily quota is checked before any exchange request is made.
func (s *SyncService) StartFreshSync(ctx context.Context, opts SyncOptions, progress domain.ProgressFunc) (*domain.AggregationResult, error) {
	prev, err := s.begin()
	if err != nil {
		s.logger.Warn(ctx, "Sync request rejected: a run is already active", map[string]interface{}{"accountId": s.cfg.AccountID})
		return nil, err
	}
	return s.freshSync(ctx, prev, opts, progress)
}

func (s *SyncService) freshSync(ctx context.Context, prev domain.RunState, opts SyncOptions, progress domain.ProgressFunc) (*domain.AggregationResult, error) {
	if err := s.quota.Check(ctx, s.cfg.AccountID); err != nil {
		s.end(prev)
		s.logger.Warn(ctx, "Sync request rejected by quota", map[string]interface{}{"accountId": s.cfg.AccountID, "error": err.Error()})
		return nil, err
	}

	if err := s.checkpoints.ClearCheckpoint(ctx, s.cfg.AccountID); err != nil {
		s.end(prev)
		return nil, fmt.Errorf("failed to discard previous checkpoint: %w", err)
	}

	cp, err := s.newCheckpoint(ctx, opts)
	if err != nil {
		s.end(domain.StateError)
		return nil, err
	}
	if err := s.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		s.end(domain.StateError)
		return nil, fmt.Errorf("failed to create checkpoint: %w", err)
	}

	s.logger.Info(ctx, "Starting fresh sync", map[string]interface{}{
		"runId":        cp.RunID,
		"accountId":    cp.AccountID,
		"windowStart":  cp.WindowStart,
		"windowEnd":    cp.WindowEnd,
		"hedgeMode":    cp.HedgeMode,
		"forceRefetch": cp.ForceRefetch,
	})
	return s.run(ctx, cp, false, progress)
}

// Resume continues the persisted checkpoint, fetching only symbols not yet processed.
// A checkpoint that cannot be trusted is discarded and a fresh sync runs instead.
func (s *SyncService) Resume(ctx context.Context, progress domain.ProgressFunc) (*domain.AggregationResult, error) {
	prev, err := s.begin()
	if err != nil {
		s.logger.Warn(ctx, "Resume rejected: a run is already active", map[string]interface{}{"accountId": s.cfg.AccountID})
		return nil, err
	}

	cp, err := s.checkpoints.LoadCheckpoint(ctx, s.cfg.AccountID)
	if err == nil && cp != nil {
		if vErr := cp.Validate(); vErr != nil {
			err = fmt.Errorf("%w: %v", ports.ErrCheckpointCorrupt, vErr)
		} else if cp.AccountID != s.cfg.AccountID {
			err = fmt.Errorf("%w: checkpoint belongs to account %q", ports.ErrCheckpointCorrupt, cp.AccountID)
		}
	}
	switch {
	case errors.Is(err, ports.ErrCheckpointCorrupt):
		s.logger.Warn(ctx, "Checkpoint unusable, falling back to fresh sync", map[string]interface{}{"error": err.Error()})
		return s.freshSync(ctx, prev, s.defaultOptions(), progress)
	case err != nil:
		s.end(prev)
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	case cp == nil:
		s.end(prev)
		return nil, ports.ErrNoCheckpoint
	}

	s.logger.Info(ctx, "Resuming sync from checkpoint", map[string]interface{}{
		"runId":     cp.RunID,
		"symbols":   len(cp.Symbols),
		"processed": len(cp.Processed),
		"phase":     cp.Phase,
	})
	return s.run(ctx, cp, true, progress)
}

// DiscardCheckpoint abandons the persisted checkpoint so the next run starts clean.
func (s *SyncService) DiscardCheckpoint(ctx context.Context) error {
	prev, err := s.begin()
	if err != nil {
		return err
	}
	if err := s.checkpoints.ClearCheckpoint(ctx, s.cfg.AccountID); err != nil {
		s.end(prev)
		return fmt.Errorf("failed to discard checkpoint: %w", err)
	}
	s.metrics.RemainingSymbols.Set(0)
	s.end(domain.StateIdle)
	s.logger.Info(ctx, "Checkpoint discarded", map[string]interface{}{"accountId": s.cfg.AccountID})
	return nil
}

// Status reports the orchestrator state with the persisted checkpoint and last result.
func (s *SyncService) Status(ctx context.Context) (*StatusReport, error) {
	s.mu.Lock()
	report := &StatusReport{State: s.state, Running: s.running}
	s.mu.Unlock()

	cp, err := s.checkpoints.LoadCheckpoint(ctx, s.cfg.AccountID)
	if err != nil && !errors.Is(err, ports.ErrCheckpointCorrupt) {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	report.Checkpoint = cp
	if !report.Running && cp != nil && report.State == domain.StateIdle {
		report.State = domain.StateCheckpointed
	}

	if report.LastResult, err = s.runs.LastResult(ctx, s.cfg.AccountID); err != nil {
		return nil, fmt.Errorf("failed to load last result: %w", err)
	}
	if report.QuotaRemaining, err = s.quota.Remaining(ctx, s.cfg.AccountID); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *SyncService) defaultOptions() SyncOptions {
	return SyncOptions{
		RangeDays:    s.cfg.SyncRangeDays,
		AllTime:      s.cfg.SyncRangeDays == 0,
		ForceRefetch: s.cfg.ForceRefetch,
	}
}

// newCheckpoint resolves the sync window and the account's position mode.
func (s *SyncService) newCheckpoint(ctx context.Context, opts SyncOptions) (*domain.SyncCheckpoint, error) {
	end := s.now()
	if serverTime, err := s.exchange.GetServerTime(ctx); err == nil && !serverTime.IsZero() {
		end = serverTime
	} else if err != nil {
		if ports.IsAccountLevel(err) {
			return nil, err
		}
		s.logger.Warn(ctx, "Could not read exchange time, using local clock", map[string]interface{}{"error": err.Error()})
	}

	var start time.Time
	switch {
	case opts.AllTime:
		start = s.cfg.AllTimeStart
	case opts.RangeDays > 0:
		start = end.AddDate(0, 0, -opts.RangeDays)
	default:
		return nil, fmt.Errorf("%w: sync range must be positive days or all time", ports.ErrInvalidRequest)
	}
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: sync window start %s is not before end %s", ports.ErrInvalidRequest, start, end)
	}

	var hedge bool
	err := s.withRetry(ctx, "IsHedgeMode", domain.PhaseFetchingIncome, nil, func(ctx context.Context) error {
		var err error
		hedge, err = s.exchange.IsHedgeMode(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read position mode: %w", err)
	}

	now := s.now()
	return &domain.SyncCheckpoint{
		AccountID:    s.cfg.AccountID,
		RunID:        s.newRunID(),
		Symbols:      []string{},
		Processed:    []string{},
		Phase:        domain.PhaseFetchingIncome,
		WindowStart:  start,
		WindowEnd:    end,
		HedgeMode:    hedge,
		ForceRefetch: opts.ForceRefetch,
		StartedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// symbolSet merges the configured symbols with every symbol seen in the ledger.
func symbolSet(configured []string, ledger []*domain.LedgerEntry) []string {
	set := make(map[string]bool)
	for _, sym := range configured {
		if sym = strings.ToUpper(strings.TrimSpace(sym)); sym != "" {
			set[sym] = true
		}
	}
	for _, e := range ledger {
		if e.Symbol != "" {
			set[e.Symbol] = true
		}
	}
	out := make([]string, 0, len(set))
	for sym := range set {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
