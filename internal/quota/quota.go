// Package quota enforces the daily ceiling on full sync runs.
package quota

import (
	"context"
	"fmt"
	"time"

	"cryptoTradeSync/internal/ports"
)

// Window is the rolling period the quota applies to.
const Window = 24 * time.Hour

// Limiter checks the number of successful runs in the trailing Window.
type Limiter struct {
	runs  ports.SyncRunRepository
	limit int
	now   func() time.Time
}

// NewLimiter creates a limiter. A limit of zero or less disables the quota.
func NewLimiter(runs ports.SyncRunRepository, limit int, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	return &Limiter{runs: runs, limit: limit, now: now}
}

// Check returns an error wrapping ports.ErrQuotaExceeded when the account already
// used its quota. It performs no exchange I/O.
func (l *Limiter) Check(ctx context.Context, accountID string) error {
	if l.limit <= 0 {
		return nil
	}
	used, err := l.runs.CountSuccessfulRunsSince(ctx, accountID, l.now().Add(-Window))
	if err != nil {
		return fmt.Errorf("failed to count sync runs for quota: %w", err)
	}
	if used >= l.limit {
		return fmt.Errorf("%w: %d of %d full syncs used in the last 24h", ports.ErrQuotaExceeded, used, l.limit)
	}
	return nil
}

// Remaining returns how many runs are left in the current window, -1 when unlimited.
func (l *Limiter) Remaining(ctx context.Context, accountID string) (int, error) {
	if l.limit <= 0 {
		return -1, nil
	}
	used, err := l.runs.CountSuccessfulRunsSince(ctx, accountID, l.now().Add(-Window))
	if err != nil {
		return 0, fmt.Errorf("failed to count sync runs for quota: %w", err)
	}
	if used >= l.limit {
		return 0, nil
	}
	return l.limit - used, nil
}
