package ports

import (
	"context"
	"time"

	"cryptoTradeSync/internal/domain"
)

// ExchangeClient is the read-only raw data fetcher for a derivatives exchange account.
// Implementations return ErrRateLimited (wrapped) for 429-class responses so callers can back off.
type ExchangeClient interface {
	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// GetServerTime retrieves the current server time from the exchange.
	GetServerTime(ctx context.Context) (time.Time, error)

	// IsHedgeMode reports whether the account uses dual-side (hedge) positions.
	IsHedgeMode(ctx context.Context) (bool, error)

	// GetIncome retrieves all ledger entries of the account in [start, end].
	GetIncome(ctx context.Context, start, end time.Time) ([]*domain.LedgerEntry, error)

	// GetFills retrieves the account's fills for symbol in [start, end].
	GetFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error)

	// GetOrders retrieves the account's orders for symbol in [start, end].
	GetOrders(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Order, error)
}
