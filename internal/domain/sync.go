package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// SyncPhase is a step of a running sync, reported in strict order.
type SyncPhase string

const (
	PhaseFetchingIncome SyncPhase = "fetching-income"
	PhaseFetchingTrades SyncPhase = "fetching-trades"
	PhaseGrouping       SyncPhase = "grouping"
	PhaseAggregating    SyncPhase = "aggregating"
	PhaseValidating     SyncPhase = "validating"
	PhaseInserting      SyncPhase = "inserting"
)

// RunState is the orchestrator state.
type RunState string

const (
	StateIdle         RunState = "idle"
	StateRunning      RunState = "running"
	StateSuccess      RunState = "success"
	StateError        RunState = "error"
	StateCheckpointed RunState = "checkpointed"
)

// SyncCheckpoint is the persisted state of an in-flight or interrupted sync.
// A symbol is listed in Processed only once its raw data has been staged durably.
type SyncCheckpoint struct {
	AccountID     string    `json:"accountId"`
	RunID         string    `json:"runId"`
	Symbols       []string  `json:"symbols"`
	Processed     []string  `json:"processed"`
	Phase         SyncPhase `json:"phase"`
	WindowStart   time.Time `json:"windowStart"`
	WindowEnd     time.Time `json:"windowEnd"`
	HedgeMode     bool      `json:"hedgeMode"`
	ForceRefetch  bool      `json:"forceRefetch"`
	IncomeFetched bool      `json:"incomeFetched"`
	StartedAt     time.Time `json:"startedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsProcessed reports whether symbol has already been fetched and staged.
func (c *SyncCheckpoint) IsProcessed(symbol string) bool {
	for _, s := range c.Processed {
		if s == symbol {
			return true
		}
	}
	return false
}

// Remaining returns the symbols that still need fetching, in checkpoint order.
func (c *SyncCheckpoint) Remaining() []string {
	out := make([]string, 0, len(c.Symbols))
	for _, s := range c.Symbols {
		if !c.IsProcessed(s) {
			out = append(out, s)
		}
	}
	return out
}

// WithProcessed returns a copy of the checkpoint with symbol marked processed.
func (c *SyncCheckpoint) WithProcessed(symbol string, now time.Time) *SyncCheckpoint {
	next := c.Clone()
	if !next.IsProcessed(symbol) {
		next.Processed = append(next.Processed, symbol)
		sort.Strings(next.Processed)
	}
	next.UpdatedAt = now
	return next
}

// Clone returns a deep copy.
func (c *SyncCheckpoint) Clone() *SyncCheckpoint {
	next := *c
	next.Symbols = append([]string(nil), c.Symbols...)
	next.Processed = append([]string(nil), c.Processed...)
	return &next
}

// Validate checks the checkpoint for internal consistency.
// An inconsistent checkpoint must not be resumed.
func (c *SyncCheckpoint) Validate() error {
	if c.AccountID == "" || c.RunID == "" {
		return errors.New("checkpoint is missing account or run id")
	}
	if c.WindowStart.IsZero() || c.WindowEnd.IsZero() || c.WindowEnd.Before(c.WindowStart) {
		return errors.New("checkpoint has an invalid sync window")
	}
	if len(c.Processed) > 0 && !c.IncomeFetched {
		return errors.New("checkpoint lists processed symbols before the ledger was fetched")
	}
	known := make(map[string]bool, len(c.Symbols))
	for _, s := range c.Symbols {
		known[s] = true
	}
	for _, s := range c.Processed {
		if !known[s] {
			return fmt.Errorf("checkpoint marks unknown symbol %q as processed", s)
		}
	}
	return nil
}

// Progress is one progress event emitted during a run.
type Progress struct {
	Phase   SyncPhase
	Current int
	Total   int
	Message string
}

// Percent returns the completion percentage of the current phase.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	return float64(p.Current) / float64(p.Total) * 100
}

// ProgressFunc receives progress events.
type ProgressFunc func(Progress)

// FailureScope names what a partial failure applies to.
type FailureScope string

const (
	ScopeSymbol    FailureScope = "symbol"
	ScopeLifecycle FailureScope = "lifecycle"
	ScopeBatch     FailureScope = "batch"
)

// PartialFailure is one recovered failure surfaced in the run result.
type PartialFailure struct {
	Scope FailureScope `json:"scope"`
	Key   string       `json:"key"` // Symbol, lifecycle ID or batch label
	Phase SyncPhase    `json:"phase"`
	Error string       `json:"error"`
}

// ValidationSummary tallies the validation outcome of a run.
type ValidationSummary struct {
	Total         int            `json:"total"`
	Valid         int            `json:"valid"`
	Invalid       int            `json:"invalid"`
	WithWarnings  int            `json:"withWarnings"`
	ErrorCounts   map[string]int `json:"errorCounts"`
	WarningCounts map[string]int `json:"warningCounts"`
}

// ReconciliationReport compares aggregated P&L with the ledger entries those trades consumed.
type ReconciliationReport struct {
	AggregatedTotal   float64 `json:"aggregatedTotal"`
	MatchedTotal      float64 `json:"matchedTotal"`
	LedgerTotal       float64 `json:"ledgerTotal"`
	UnmatchedOpenPnL  float64 `json:"unmatchedOpenPnl"`
	Difference        float64 `json:"difference"`
	DifferencePct     float64 `json:"differencePct"`
	MatchedEntryCount int     `json:"matchedEntryCount"`
	Reconciled        bool    `json:"reconciled"`
}

// TradeStats summarizes the admitted trades of a run.
type TradeStats struct {
	Trades          int     `json:"trades"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	Breakevens      int     `json:"breakevens"`
	WinRate         float64 `json:"winRate"`
	GrossPnL        float64 `json:"grossPnl"`
	NetPnL          float64 `json:"netPnl"`
	TotalFees       float64 `json:"totalFees"`
	ProfitFactor    float64 `json:"profitFactor"`
	AverageWin      float64 `json:"averageWin"`
	AverageLoss     float64 `json:"averageLoss"`
	LargestWin      float64 `json:"largestWin"`
	LargestLoss     float64 `json:"largestLoss"`
	AvgHoldMinutes  float64 `json:"avgHoldMinutes"`
	MakerEntryRatio float64 `json:"makerEntryRatio"`
}

// AggregationResult is the final summary of a run.
type AggregationResult struct {
	RunID                string               `json:"runId"`
	AccountID            string               `json:"accountId"`
	State                RunState             `json:"state"`
	Resumed              bool                 `json:"resumed"`
	StartedAt            time.Time            `json:"startedAt"`
	FinishedAt           time.Time            `json:"finishedAt"`
	WindowStart          time.Time            `json:"windowStart"`
	WindowEnd            time.Time            `json:"windowEnd"`
	SymbolsTotal         int                  `json:"symbolsTotal"`
	SymbolsProcessed     int                  `json:"symbolsProcessed"`
	SymbolsFetchedNow    int                  `json:"symbolsFetchedNow"`
	LifecyclesTotal      int                  `json:"lifecyclesTotal"`
	CompleteLifecycles   int                  `json:"completeLifecycles"`
	IncompleteLifecycles int                  `json:"incompleteLifecycles"`
	FlippedLifecycles    int                  `json:"flippedLifecycles"`
	OrphanFills          int                  `json:"orphanFills"`
	TradesAggregated     int                  `json:"tradesAggregated"`
	TradesAdmitted       int                  `json:"tradesAdmitted"`
	TradesRejected       int                  `json:"tradesRejected"`
	TradesPersisted      int                  `json:"tradesPersisted"`
	TradesDeleted        int64                `json:"tradesDeleted"`
	Validation           ValidationSummary    `json:"validation"`
	Reconciliation       ReconciliationReport `json:"reconciliation"`
	Stats                TradeStats           `json:"stats"`
	PartialFailures      []PartialFailure     `json:"partialFailures"`
	Error                string               `json:"error,omitempty"`
}

// PartialSuccess reports whether a successful run carried recovered failures.
func (r *AggregationResult) PartialSuccess() bool {
	return r.State == StateSuccess && len(r.PartialFailures) > 0
}

// FailedSymbols lists the symbols that failed during this run.
func (r *AggregationResult) FailedSymbols() []string {
	out := make([]string, 0)
	for _, f := range r.PartialFailures {
		if f.Scope == ScopeSymbol {
			out = append(out, f.Key)
		}
	}
	return out
}

// SyncRun is the audit record of one finished sync invocation.
type SyncRun struct {
	RunID      string
	AccountID  string
	Resumed    bool
	State      RunState
	StartedAt  time.Time
	FinishedAt time.Time
	Error      string
}
