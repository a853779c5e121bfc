package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// --- SyncRunRepository Implementation ---

// RecordRun stores a finished run in the audit log.
func (r *Repository) RecordRun(ctx context.Context, run *domain.SyncRun) error {
	const query = `
		INSERT INTO sync_runs (run_id, account_id, resumed, state, started_at_ms, finished_at_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			state = excluded.state,
			finished_at_ms = excluded.finished_at_ms,
			error = excluded.error`
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, query,
		run.RunID, run.AccountID, run.Resumed, string(run.State),
		run.StartedAt.UnixMilli(), run.FinishedAt.UnixMilli(), errMsg)
	if err != nil {
		return fmt.Errorf("%w: failed to record sync run %s: %v", ports.ErrUpdateFailed, run.RunID, err)
	}
	return nil
}

// CountSuccessfulRunsSince counts successful runs that finished after since.
func (r *Repository) CountSuccessfulRunsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM sync_runs WHERE account_id = ? AND state = ? AND finished_at_ms > ?`
	var n int
	err := r.db.QueryRowContext(ctx, query, accountID, string(domain.StateSuccess), since.UnixMilli()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to count sync runs: %v", ports.ErrQueryFailed, err)
	}
	return n, nil
}

// SaveResult stores the final result of a run.
func (r *Repository) SaveResult(ctx context.Context, res *domain.AggregationResult) error {
	payload, err := json.MarshalToString(res)
	if err != nil {
		return fmt.Errorf("failed to encode sync result: %w", err)
	}
	const query = `
		INSERT INTO sync_results (run_id, account_id, finished_at_ms, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET finished_at_ms = excluded.finished_at_ms, payload = excluded.payload`
	if _, err := r.db.ExecContext(ctx, query, res.RunID, res.AccountID, res.FinishedAt.UnixMilli(), payload); err != nil {
		return fmt.Errorf("%w: failed to save sync result %s: %v", ports.ErrUpdateFailed, res.RunID, err)
	}
	return nil
}

// LastResult returns the most recent stored result, or nil if there is none.
func (r *Repository) LastResult(ctx context.Context, accountID string) (*domain.AggregationResult, error) {
	const query = `SELECT payload FROM sync_results WHERE account_id = ? ORDER BY finished_at_ms DESC LIMIT 1`
	var payload string
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to load last sync result: %v", ports.ErrQueryFailed, err)
	}
	res := &domain.AggregationResult{}
	if err := json.UnmarshalFromString(payload, res); err != nil {
		return nil, fmt.Errorf("decoding sync result: %w", err)
	}
	return res, nil
}
