package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"

	jsoniter "github.com/json-iterator/go"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Repository implements ports.TradeRepository, ports.CheckpointRepository and
// ports.SyncRunRepository using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
	now    func() time.Time
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_sync.db" // Default path
	}

	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
			cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
			return nil, err
		}
	}

	// WAL mode keeps readers (status queries) off the writer's lock.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("%w: failed to ping database at '%s': %v", ports.ErrDBConnection, dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite serializes writers; one connection also makes staging transactions strictly ordered.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cfg.Logger.Info(context.Background(), "SQLite database connection established", map[string]interface{}{"path": dbPath})

	repo := newRepository(db, cfg.Logger)
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Database schema initialized/verified")

	return repo, nil
}

func newRepository(db *sql.DB, logger ports.Logger) *Repository {
	return &Repository{db: db, logger: logger, now: time.Now}
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS aggregated_trades (
		id TEXT PRIMARY KEY,
		lifecycle_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		position_side TEXT NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL NOT NULL,
		quantity REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		commission REAL NOT NULL,
		funding_fees REAL NOT NULL,
		fees REAL NOT NULL,
		net_pnl REAL NOT NULL,
		outcome TEXT NOT NULL,
		entry_time_ms INTEGER NOT NULL,
		exit_time_ms INTEGER NOT NULL,
		hold_minutes INTEGER NOT NULL,
		is_maker INTEGER NOT NULL,
		entry_order_type TEXT NOT NULL,
		exit_order_type TEXT NOT NULL,
		entry_fill_count INTEGER NOT NULL,
		exit_fill_count INTEGER NOT NULL,
		ledger_keys TEXT NOT NULL,
		validation TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_checkpoints (
		account_id TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		updated_at_ms INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_staging (
		account_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		kind TEXT NOT NULL,
		payload TEXT NOT NULL,
		PRIMARY KEY (account_id, symbol, kind)
	);

	CREATE TABLE IF NOT EXISTS sync_runs (
		run_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		resumed INTEGER NOT NULL,
		state TEXT NOT NULL,
		started_at_ms INTEGER NOT NULL,
		finished_at_ms INTEGER NOT NULL,
		error TEXT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_results (
		run_id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		finished_at_ms INTEGER NOT NULL,
		payload TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trades_symbol_entry ON aggregated_trades (symbol, entry_time_ms);
	CREATE INDEX IF NOT EXISTS idx_trades_entry ON aggregated_trades (entry_time_ms);
	CREATE INDEX IF NOT EXISTS idx_runs_account_finished ON sync_runs (account_id, state, finished_at_ms);
	CREATE INDEX IF NOT EXISTS idx_results_account_finished ON sync_results (account_id, finished_at_ms);
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// --- TradeRepository Implementation ---

const upsertTradeQuery = `
	INSERT INTO aggregated_trades (
		id, lifecycle_id, symbol, direction, position_side, entry_price, exit_price, quantity,
		realized_pnl, commission, funding_fees, fees, net_pnl, outcome,
		entry_time_ms, exit_time_ms, hold_minutes, is_maker, entry_order_type, exit_order_type,
		entry_fill_count, exit_fill_count, ledger_keys, validation, updated_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		lifecycle_id = excluded.lifecycle_id,
		direction = excluded.direction,
		position_side = excluded.position_side,
		entry_price = excluded.entry_price,
		exit_price = excluded.exit_price,
		quantity = excluded.quantity,
		realized_pnl = excluded.realized_pnl,
		commission = excluded.commission,
		funding_fees = excluded.funding_fees,
		fees = excluded.fees,
		net_pnl = excluded.net_pnl,
		outcome = excluded.outcome,
		hold_minutes = excluded.hold_minutes,
		is_maker = excluded.is_maker,
		entry_order_type = excluded.entry_order_type,
		exit_order_type = excluded.exit_order_type,
		entry_fill_count = excluded.entry_fill_count,
		exit_fill_count = excluded.exit_fill_count,
		ledger_keys = excluded.ledger_keys,
		validation = excluded.validation,
		updated_at_ms = excluded.updated_at_ms`

// UpsertTrades inserts or updates trades keyed by their deterministic ID in a single transaction.
func (r *Repository) UpsertTrades(ctx context.Context, trades []*domain.AggregatedTrade) (int, error) {
	if len(trades) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to begin trade upsert: %v", ports.ErrUpdateFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertTradeQuery)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prepare trade upsert: %v", ports.ErrUpdateFailed, err)
	}
	defer stmt.Close()

	now := r.now().UnixMilli()
	for _, t := range trades {
		keys, err := json.MarshalToString(t.LedgerKeys)
		if err != nil {
			return 0, fmt.Errorf("failed to encode ledger keys of trade %s: %w", t.ID, err)
		}
		validation, err := json.MarshalToString(t.Validation)
		if err != nil {
			return 0, fmt.Errorf("failed to encode validation of trade %s: %w", t.ID, err)
		}
		_, err = stmt.ExecContext(ctx,
			t.ID, t.LifecycleID, t.Symbol, t.Direction, t.PositionSide, t.EntryPrice, t.ExitPrice, t.Quantity,
			t.RealizedPnL, t.Commission, t.FundingFees, t.Fees, t.NetPnL, t.Outcome,
			t.EntryTime.UnixMilli(), t.ExitTime.UnixMilli(), t.HoldMinutes, t.IsMaker, t.EntryOrderType, t.ExitOrderType,
			t.EntryFillCount, t.ExitFillCount, keys, validation, now)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to upsert trade %s: %v", ports.ErrUpdateFailed, t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("%w: failed to commit trade upsert: %v", ports.ErrUpdateFailed, err)
	}
	r.logger.Debug(ctx, "Trades upserted", map[string]interface{}{"count": len(trades)})
	return len(trades), nil
}

// DeleteTradesInRange removes trades whose entry time lies in [start, end].
func (r *Repository) DeleteTradesInRange(ctx context.Context, start, end time.Time) (int64, error) {
	const query = `DELETE FROM aggregated_trades WHERE entry_time_ms >= ? AND entry_time_ms <= ?`
	result, err := r.db.ExecContext(ctx, query, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete trades in range: %v", ports.ErrDeleteFailed, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected for trade delete: %w", err)
	}
	r.logger.Info(ctx, "Trades deleted for refetch", map[string]interface{}{"count": n, "start": start, "end": end})
	return n, nil
}

const selectTradeColumns = `
	SELECT id, lifecycle_id, symbol, direction, position_side, entry_price, exit_price, quantity,
	       realized_pnl, commission, funding_fees, fees, net_pnl, outcome,
	       entry_time_ms, exit_time_ms, hold_minutes, is_maker, entry_order_type, exit_order_type,
	       entry_fill_count, exit_fill_count, ledger_keys, validation
	FROM aggregated_trades`

// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
func (r *Repository) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AggregatedTrade, error) {
	query := selectTradeColumns + ` WHERE symbol = ? ORDER BY entry_time_ms DESC LIMIT ?`
	return r.queryTrades(ctx, query, strings.ToUpper(symbol), limitOrAll(limit))
}

// FindAll retrieves trades ordered by entry time descending.
func (r *Repository) FindAll(ctx context.Context, limit int) ([]*domain.AggregatedTrade, error) {
	query := selectTradeColumns + ` ORDER BY entry_time_ms DESC LIMIT ?`
	return r.queryTrades(ctx, query, limitOrAll(limit))
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1 // SQLite: no limit
	}
	return limit
}

func (r *Repository) queryTrades(ctx context.Context, query string, args ...interface{}) ([]*domain.AggregatedTrade, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query trades: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	trades := make([]*domain.AggregatedTrade, 0)
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		trades = append(trades, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trade rows: %w", err)
	}
	return trades, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanTrade scans a row into a domain.AggregatedTrade struct.
func scanTrade(s scanner) (*domain.AggregatedTrade, error) {
	t := &domain.AggregatedTrade{}
	var direction, positionSide, outcome, entryType, exitType, keys, validation string
	var entryMs, exitMs int64
	err := s.Scan(
		&t.ID, &t.LifecycleID, &t.Symbol, &direction, &positionSide, &t.EntryPrice, &t.ExitPrice, &t.Quantity,
		&t.RealizedPnL, &t.Commission, &t.FundingFees, &t.Fees, &t.NetPnL, &outcome,
		&entryMs, &exitMs, &t.HoldMinutes, &t.IsMaker, &entryType, &exitType,
		&t.EntryFillCount, &t.ExitFillCount, &keys, &validation)
	if err != nil {
		return nil, err
	}
	t.Direction = domain.Direction(direction)
	t.PositionSide = domain.PositionSide(positionSide)
	t.Outcome = domain.Outcome(outcome)
	t.EntryOrderType = domain.OrderType(entryType)
	t.ExitOrderType = domain.OrderType(exitType)
	t.EntryTime = time.UnixMilli(entryMs)
	t.ExitTime = time.UnixMilli(exitMs)
	if err := json.UnmarshalFromString(keys, &t.LedgerKeys); err != nil {
		return nil, fmt.Errorf("decoding ledger keys of trade %s: %w", t.ID, err)
	}
	if err := json.UnmarshalFromString(validation, &t.Validation); err != nil {
		return nil, fmt.Errorf("decoding validation of trade %s: %w", t.ID, err)
	}
	return t, nil
}
