package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// Staging kinds stored in sync_staging.
const (
	stageKindIncome = "income"
	stageKindFills  = "fills"
	stageKindOrders = "orders"

	incomeStageSymbol = "" // Account-wide ledger rows have no symbol
)

// --- CheckpointRepository Implementation ---

// LoadCheckpoint returns the account's checkpoint, or nil if none exists.
func (r *Repository) LoadCheckpoint(ctx context.Context, accountID string) (*domain.SyncCheckpoint, error) {
	const query = `SELECT payload FROM sync_checkpoints WHERE account_id = ?`
	var payload string
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: failed to load checkpoint for %s: %v", ports.ErrQueryFailed, accountID, err)
	}

	cp := &domain.SyncCheckpoint{}
	if err := json.UnmarshalFromString(payload, cp); err != nil {
		return nil, fmt.Errorf("%w: decoding checkpoint for %s: %v", ports.ErrCheckpointCorrupt, accountID, err)
	}
	return cp, nil
}

// SaveCheckpoint writes the checkpoint, replacing any previous one for the account.
func (r *Repository) SaveCheckpoint(ctx context.Context, cp *domain.SyncCheckpoint) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		return r.writeCheckpoint(ctx, tx, cp)
	})
}

// StageIncome stores the ledger entries and cp in one transaction.
func (r *Repository) StageIncome(ctx context.Context, cp *domain.SyncCheckpoint, entries []*domain.LedgerEntry) error {
	return r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.writeStage(ctx, tx, cp.AccountID, incomeStageSymbol, stageKindIncome, entries); err != nil {
			return err
		}
		return r.writeCheckpoint(ctx, tx, cp)
	})
}

// StageSymbol stores one symbol's fills and orders and cp in one transaction.
func (r *Repository) StageSymbol(ctx context.Context, cp *domain.SyncCheckpoint, symbol string, fills []*domain.Fill, orders []*domain.Order) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if err := r.writeStage(ctx, tx, cp.AccountID, symbol, stageKindFills, fills); err != nil {
			return err
		}
		if err := r.writeStage(ctx, tx, cp.AccountID, symbol, stageKindOrders, orders); err != nil {
			return err
		}
		return r.writeCheckpoint(ctx, tx, cp)
	})
	if err != nil {
		return err
	}
	r.logger.Debug(ctx, "Symbol staged", map[string]interface{}{"symbol": symbol, "fills": len(fills), "orders": len(orders)})
	return nil
}

// LoadStaged returns everything staged for the account. Fills and orders are returned
// in symbol order, each symbol in the order it was fetched.
func (r *Repository) LoadStaged(ctx context.Context, accountID string) (*domain.RawDataset, error) {
	const query = `SELECT symbol, kind, payload FROM sync_staging WHERE account_id = ?`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load staged data for %s: %v", ports.ErrQueryFailed, accountID, err)
	}
	defer rows.Close()

	fillsBySymbol := make(map[string][]*domain.Fill)
	ordersBySymbol := make(map[string][]*domain.Order)
	ds := &domain.RawDataset{
		Fills:  make([]*domain.Fill, 0),
		Orders: make([]*domain.Order, 0),
		Income: make([]*domain.LedgerEntry, 0),
	}
	for rows.Next() {
		var symbol, kind, payload string
		if err := rows.Scan(&symbol, &kind, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan staged row: %w", err)
		}
		switch kind {
		case stageKindIncome:
			if err := json.UnmarshalFromString(payload, &ds.Income); err != nil {
				return nil, fmt.Errorf("%w: decoding staged income: %v", ports.ErrCheckpointCorrupt, err)
			}
		case stageKindFills:
			var fills []*domain.Fill
			if err := json.UnmarshalFromString(payload, &fills); err != nil {
				return nil, fmt.Errorf("%w: decoding staged fills of %s: %v", ports.ErrCheckpointCorrupt, symbol, err)
			}
			fillsBySymbol[symbol] = fills
		case stageKindOrders:
			var orders []*domain.Order
			if err := json.UnmarshalFromString(payload, &orders); err != nil {
				return nil, fmt.Errorf("%w: decoding staged orders of %s: %v", ports.ErrCheckpointCorrupt, symbol, err)
			}
			ordersBySymbol[symbol] = orders
		default:
			r.logger.Warn(ctx, "Ignoring staged row of unknown kind", map[string]interface{}{"symbol": symbol, "kind": kind})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating staged rows: %w", err)
	}

	for _, symbol := range sortedKeys(fillsBySymbol) {
		ds.Fills = append(ds.Fills, fillsBySymbol[symbol]...)
	}
	for _, symbol := range sortedKeys(ordersBySymbol) {
		ds.Orders = append(ds.Orders, ordersBySymbol[symbol]...)
	}
	return ds, nil
}

// ClearCheckpoint removes the checkpoint and all staged data of the account.
func (r *Repository) ClearCheckpoint(ctx context.Context, accountID string) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_staging WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("%w: failed to clear staged data: %v", ports.ErrDeleteFailed, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sync_checkpoints WHERE account_id = ?`, accountID); err != nil {
			return fmt.Errorf("%w: failed to clear checkpoint: %v", ports.ErrDeleteFailed, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info(ctx, "Checkpoint cleared", map[string]interface{}{"accountId": accountID})
	return nil
}

func (r *Repository) writeCheckpoint(ctx context.Context, tx *sql.Tx, cp *domain.SyncCheckpoint) error {
	if cp == nil || cp.AccountID == "" {
		return fmt.Errorf("%w: checkpoint must carry an account id", ports.ErrInvalidRequest)
	}
	payload, err := json.MarshalToString(cp)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	const query = `
		INSERT INTO sync_checkpoints (account_id, payload, updated_at_ms) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET payload = excluded.payload, updated_at_ms = excluded.updated_at_ms`
	if _, err := tx.ExecContext(ctx, query, cp.AccountID, payload, r.now().UnixMilli()); err != nil {
		return fmt.Errorf("%w: failed to save checkpoint: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

func (r *Repository) writeStage(ctx context.Context, tx *sql.Tx, accountID, symbol, kind string, v interface{}) error {
	payload, err := json.MarshalToString(v)
	if err != nil {
		return fmt.Errorf("failed to encode staged %s: %w", kind, err)
	}
	const query = `
		INSERT INTO sync_staging (account_id, symbol, kind, payload) VALUES (?, ?, ?, ?)
		ON CONFLICT(account_id, symbol, kind) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, query, accountID, symbol, kind, payload); err != nil {
		return fmt.Errorf("%w: failed to stage %s for %q: %v", ports.ErrUpdateFailed, kind, symbol, err)
	}
	return nil
}

// inTx runs fn inside a transaction, rolling back if fn fails.
func (r *Repository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", ports.ErrUpdateFailed, err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error(ctx, rbErr, "Transaction rollback failed")
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: failed to commit transaction: %v", ports.ErrUpdateFailed, err)
	}
	return nil
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
