package ports

import (
	"context"
	"time"

	"cryptoTradeSync/internal/domain"
)

// TradeRepository stores aggregated trades keyed by their deterministic ID.
type TradeRepository interface {
	// UpsertTrades inserts or replaces the given trades in one transaction and returns how many were written.
	UpsertTrades(ctx context.Context, trades []*domain.AggregatedTrade) (int, error)
	// DeleteTradesInRange removes trades whose entry time lies in [start, end].
	DeleteTradesInRange(ctx context.Context, start, end time.Time) (int64, error)
	// FindBySymbol retrieves the most recent trades for a symbol, up to limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AggregatedTrade, error)
	// FindAll retrieves trades ordered by entry time descending, up to limit (0 = no limit).
	FindAll(ctx context.Context, limit int) ([]*domain.AggregatedTrade, error)
}

// CheckpointRepository persists the resumable sync checkpoint and the raw data staged under it.
// Staging writes and the checkpoint update they imply happen in the same transaction.
type CheckpointRepository interface {
	// LoadCheckpoint returns the account's checkpoint, nil if none exists,
	// or an error wrapping ErrCheckpointCorrupt if it cannot be decoded.
	LoadCheckpoint(ctx context.Context, accountID string) (*domain.SyncCheckpoint, error)
	// SaveCheckpoint writes the checkpoint.
	SaveCheckpoint(ctx context.Context, cp *domain.SyncCheckpoint) error
	// StageIncome stores the window's ledger entries together with cp.
	StageIncome(ctx context.Context, cp *domain.SyncCheckpoint, entries []*domain.LedgerEntry) error
	// StageSymbol stores one symbol's fills and orders together with cp.
	StageSymbol(ctx context.Context, cp *domain.SyncCheckpoint, symbol string, fills []*domain.Fill, orders []*domain.Order) error
	// LoadStaged returns everything staged for the account.
	LoadStaged(ctx context.Context, accountID string) (*domain.RawDataset, error)
	// ClearCheckpoint removes the checkpoint and all staged data.
	ClearCheckpoint(ctx context.Context, accountID string) error
}

// SyncRunRepository keeps the audit trail of finished runs, used for the daily quota.
type SyncRunRepository interface {
	// RecordRun stores a finished run.
	RecordRun(ctx context.Context, run *domain.SyncRun) error
	// CountSuccessfulRunsSince counts successful runs that finished after since.
	CountSuccessfulRunsSince(ctx context.Context, accountID string, since time.Time) (int, error)
	// SaveResult stores the final result of a run.
	SaveResult(ctx context.Context, res *domain.AggregationResult) error
	// LastResult returns the most recent stored result, nil if none.
	LastResult(ctx context.Context, accountID string) (*domain.AggregationResult, error)
}
