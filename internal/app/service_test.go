package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeSync/config"
	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/metrics"
	"cryptoTradeSync/internal/ports"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	svc         *SyncService
	exchange    *mockExchange
	trades      *mockTradeRepo
	checkpoints *mockCheckpointRepo
	runs        *mockRunRepo
	logger      *mockLogger
}

func testConfig() *config.Config {
	return &config.Config{
		AccountID:           "acct",
		SyncRangeDays:       30,
		AllTimeStart:        time.Date(2019, 9, 1, 0, 0, 0, 0, time.UTC),
		DailySyncQuota:      0,
		FetchConcurrency:    3,
		RateLimitMaxRetries: 3,
		RateLimitBaseDelay:  time.Millisecond,
		RateLimitMaxDelay:   2 * time.Millisecond,
		InsertBatchSize:     2,
	}
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	env := &testEnv{
		exchange:    newMockExchange(),
		trades:      newMockTradeRepo(),
		checkpoints: newMockCheckpointRepo(),
		runs:        &mockRunRepo{},
		logger:      &mockLogger{},
	}
	svc, err := NewSyncService(cfg, env.logger, env.exchange, env.trades, env.checkpoints, env.runs, metrics.New(nil))
	require.NoError(t, err)
	svc.now = func() time.Time { return testNow }
	runN := 0
	svc.newRunID = func() string {
		runN++
		return fmt.Sprintf("run-%d", runN)
	}
	env.svc = svc
	return env
}

// addSymbol gives the exchange one closed round trip on symbol.
func (e *testEnv) addSymbol(symbol string, idx int) {
	fills, orders, ledger := roundTrip(symbol, int64(idx)*100, testNow.Add(-10*24*time.Hour).Add(time.Duration(idx)*time.Hour))
	e.exchange.fills[symbol] = fills
	e.exchange.orders[symbol] = orders
	e.exchange.income = append(e.exchange.income, ledger...)
}

type progressRecorder struct {
	mu     sync.Mutex
	events []domain.Progress
}

func (p *progressRecorder) record(ev domain.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *progressRecorder) phases() []domain.SyncPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.SyncPhase, 0)
	for _, ev := range p.events {
		if len(out) == 0 || out[len(out)-1] != ev.Phase {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func (p *progressRecorder) messagesContaining(sub string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if strings.Contains(ev.Message, sub) {
			n++
		}
	}
	return n
}

func TestNewSyncService(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*config.Config) {}},
		{name: "missing account", mutate: func(c *config.Config) { c.AccountID = "" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *config.Config) { c.FetchConcurrency = 0 }, wantErr: true},
		{name: "zero batch size", mutate: func(c *config.Config) { c.InsertBatchSize = 0 }, wantErr: true},
		{name: "negative retries", mutate: func(c *config.Config) { c.RateLimitMaxRetries = -1 }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			svc, err := NewSyncService(cfg, &mockLogger{}, newMockExchange(), newMockTradeRepo(), newMockCheckpointRepo(), &mockRunRepo{}, metrics.New(nil))
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, svc)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, domain.StateIdle, svc.State())
		})
	}

	_, err := NewSyncService(testConfig(), nil, newMockExchange(), newMockTradeRepo(), newMockCheckpointRepo(), &mockRunRepo{}, metrics.New(nil))
	assert.Error(t, err, "logger is required")
}

func TestSyncService_FreshSync(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.addSymbol("ETHUSDT", 2)
	env.addSymbol("SOLUSDT", 3)

	rec := &progressRecorder{}
	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, rec.record)
	require.NoError(t, err)

	assert.Equal(t, domain.StateSuccess, res.State)
	assert.Equal(t, domain.StateSuccess, env.svc.State())
	assert.False(t, res.PartialSuccess())
	assert.Equal(t, 3, res.SymbolsTotal)
	assert.Equal(t, 3, res.SymbolsProcessed)
	assert.Equal(t, 3, res.CompleteLifecycles)
	assert.Equal(t, 3, res.TradesAggregated)
	assert.Equal(t, 3, res.TradesAdmitted)
	assert.Equal(t, 3, res.TradesPersisted)
	assert.True(t, res.Reconciliation.Reconciled)
	assert.InDelta(t, 30.0, res.Reconciliation.MatchedTotal, 1e-9)
	assert.Equal(t, 3, res.Stats.Wins)
	assert.Len(t, env.trades.trades, 3)

	for _, trade := range env.trades.trades {
		assert.Equal(t, domain.OrderType("LIMIT"), trade.EntryOrderType)
		assert.Equal(t, domain.OrderType("MARKET"), trade.ExitOrderType)
		assert.InDelta(t, 9.8, trade.NetPnL, 1e-9)
	}

	assert.Equal(t, []domain.SyncPhase{
		domain.PhaseFetchingIncome,
		domain.PhaseFetchingTrades,
		domain.PhaseGrouping,
		domain.PhaseAggregating,
		domain.PhaseValidating,
		domain.PhaseInserting,
	}, rec.phases(), "phases are reported in strict order")

	assert.Nil(t, env.checkpoints.cp, "checkpoint is cleared on success")
	require.Len(t, env.runs.runs, 1)
	assert.Equal(t, domain.StateSuccess, env.runs.runs[0].State)
	assert.False(t, env.runs.runs[0].Resumed)
	require.Len(t, env.runs.results, 1)
	assert.Equal(t, "run-1", env.runs.results[0].RunID)
}

func TestSyncService_FreshSync_ConfiguredSymbolsWithoutActivity(t *testing.T) {
	cfg := testConfig()
	cfg.Symbols = []string{"xrpusdt"}
	env := newTestEnv(t, cfg)
	env.addSymbol("BTCUSDT", 1)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 7}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.SymbolsTotal)
	assert.Equal(t, []string{"BTCUSDT", "XRPUSDT"}, env.exchange.fetchedSymbols())
	assert.Equal(t, 1, res.TradesPersisted)
}

func TestSyncService_EmptyAccount(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{AllTime: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.StateSuccess, res.State)
	assert.Zero(t, res.SymbolsTotal)
	assert.Zero(t, res.TradesPersisted)
	assert.True(t, res.Reconciliation.Reconciled)
}

func TestSyncService_Resume_FetchesOnlyRemainingSymbols(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()

	symbols := make([]string, 10)
	for i := range symbols {
		symbols[i] = fmt.Sprintf("S%02dUSDT", i)
		env.addSymbol(symbols[i], i+1)
	}

	// A previous run staged the ledger and the first four symbols before it was interrupted.
	cp := &domain.SyncCheckpoint{
		AccountID:     "acct",
		RunID:         "run-prev",
		Symbols:       symbols,
		Processed:     []string{},
		Phase:         domain.PhaseFetchingTrades,
		WindowStart:   testNow.AddDate(0, 0, -30),
		WindowEnd:     testNow,
		IncomeFetched: true,
		StartedAt:     testNow.Add(-time.Hour),
		UpdatedAt:     testNow.Add(-time.Hour),
	}
	require.NoError(t, env.checkpoints.StageIncome(ctx, cp, env.exchange.income))
	for _, s := range symbols[:4] {
		cp = cp.WithProcessed(s, testNow)
		require.NoError(t, env.checkpoints.StageSymbol(ctx, cp, s, env.exchange.fills[s], env.exchange.orders[s]))
	}

	// Trades of the first four symbols were also persisted by an earlier attempt.
	for i, s := range symbols[:4] {
		entry := testNow.Add(-10 * 24 * time.Hour).Add(time.Duration(i+1) * time.Hour)
		id := domain.TradeID(s, entry, entry.Add(time.Hour))
		env.trades.trades[id] = &domain.AggregatedTrade{ID: id, Symbol: s, EntryTime: entry}
	}

	res, err := env.svc.Resume(ctx, nil)
	require.NoError(t, err)

	assert.Equal(t, symbols[4:], env.exchange.fetchedSymbols(), "only the six remaining symbols are fetched")
	assert.Zero(t, env.exchange.incomeCalls, "the staged ledger is reused")
	assert.True(t, res.Resumed)
	assert.Equal(t, "run-prev", res.RunID)
	assert.Equal(t, 6, res.SymbolsFetchedNow)
	assert.Equal(t, 10, res.SymbolsProcessed)
	assert.Equal(t, 10, res.TradesPersisted)
	assert.Len(t, env.trades.trades, 10, "no duplicate trades for the already processed symbols")
	assert.Nil(t, env.checkpoints.cp)
}

func TestSyncService_Resume_NoCheckpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())

	res, err := env.svc.Resume(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrNoCheckpoint)
	assert.Nil(t, res)
	assert.Equal(t, domain.StateIdle, env.svc.State())
}

func TestSyncService_Resume_CorruptCheckpointFallsBackToFreshSync(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.checkpoints.corrupt = true

	res, err := env.svc.Resume(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, 1, env.exchange.incomeCalls)
	assert.Equal(t, 1, res.TradesPersisted)
}

func TestSyncService_Resume_InconsistentCheckpointFallsBackToFreshSync(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.checkpoints.cp = &domain.SyncCheckpoint{
		AccountID:   "acct",
		RunID:       "run-prev",
		Symbols:     []string{"BTCUSDT"},
		Processed:   []string{"ETHUSDT"}, // Not in the symbol set
		WindowStart: testNow.AddDate(0, 0, -1),
		WindowEnd:   testNow,
	}

	res, err := env.svc.Resume(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, res.Resumed)
	assert.Equal(t, []string{"BTCUSDT"}, env.exchange.fetchedSymbols())
}

func TestSyncService_QuotaExceeded(t *testing.T) {
	cfg := testConfig()
	cfg.DailySyncQuota = 2
	env := newTestEnv(t, cfg)
	env.addSymbol("BTCUSDT", 1)
	ctx := context.Background()

	for i := 0; i < cfg.DailySyncQuota; i++ {
		_, err := env.svc.StartFreshSync(ctx, SyncOptions{RangeDays: 1}, nil)
		require.NoError(t, err)
	}
	env.exchange.fillCalls = nil
	env.exchange.incomeCalls = 0

	res, err := env.svc.StartFreshSync(ctx, SyncOptions{RangeDays: 1}, nil)
	assert.ErrorIs(t, err, ports.ErrQuotaExceeded)
	assert.Nil(t, res)
	assert.Zero(t, env.exchange.incomeCalls, "no fetch after quota rejection")
	assert.Empty(t, env.exchange.fillCalls)
	assert.Equal(t, domain.StateSuccess, env.svc.State(), "state is unchanged by a rejected request")
	assert.Len(t, env.runs.runs, 2)

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.QuotaRemaining)
}

func TestSyncService_QuotaWindowRolls(t *testing.T) {
	cfg := testConfig()
	cfg.DailySyncQuota = 1
	env := newTestEnv(t, cfg)
	env.runs.runs = append(env.runs.runs, &domain.SyncRun{
		RunID: "old", AccountID: "acct", State: domain.StateSuccess,
		StartedAt: testNow.Add(-26 * time.Hour), FinishedAt: testNow.Add(-25 * time.Hour),
	})

	_, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 1}, nil)
	assert.NoError(t, err)
}

func TestSyncService_RejectsConcurrentRun(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, err := env.svc.begin()
	require.NoError(t, err)

	_, err = env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 1}, nil)
	assert.ErrorIs(t, err, ports.ErrSyncInProgress)
	_, err = env.svc.Resume(context.Background(), nil)
	assert.ErrorIs(t, err, ports.ErrSyncInProgress)
	assert.ErrorIs(t, env.svc.DiscardCheckpoint(context.Background()), ports.ErrSyncInProgress)
	assert.Zero(t, env.exchange.incomeCalls)
	assert.Equal(t, domain.StateRunning, env.svc.State())
}

func TestSyncService_PartialSuccess(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.addSymbol("ETHUSDT", 2)
	env.exchange.fillErrs["ETHUSDT"] = fmt.Errorf("GetFills failed: %w", ports.ErrConnectionFailed)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StateSuccess, res.State)
	assert.True(t, res.PartialSuccess())
	assert.Equal(t, []string{"ETHUSDT"}, res.FailedSymbols())
	assert.Equal(t, 1, res.SymbolsProcessed)
	assert.Equal(t, 1, res.TradesPersisted)
	// ETHUSDT ledger entries stay unmatched rather than skewing reconciliation.
	assert.True(t, res.Reconciliation.Reconciled)
	assert.InDelta(t, 10.0, res.Reconciliation.UnmatchedOpenPnL, 1e-9)

	require.NotNil(t, env.checkpoints.cp, "checkpoint survives symbol failures")
	assert.Equal(t, []string{"ETHUSDT"}, env.checkpoints.cp.Remaining())

	status, err := env.svc.Status(context.Background())
	require.NoError(t, err)
	require.NotNil(t, status.Checkpoint)
}

func TestSyncService_ResumeRetriesFailedSymbolsOnly(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.addSymbol("ETHUSDT", 2)
	env.exchange.fillErrs["ETHUSDT"] = fmt.Errorf("GetFills failed: %w", ports.ErrConnectionFailed)

	_, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	require.NoError(t, err)

	delete(env.exchange.fillErrs, "ETHUSDT")
	env.exchange.fillCalls = nil

	res, err := env.svc.Resume(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, res.Resumed)
	assert.False(t, res.PartialSuccess())
	assert.Equal(t, []string{"ETHUSDT"}, env.exchange.fetchedSymbols())
	assert.Equal(t, 2, res.SymbolsProcessed)
	assert.Len(t, env.trades.trades, 2)
	assert.Nil(t, env.checkpoints.cp, "checkpoint is cleared once every symbol is processed")
}

func TestSyncService_ZeroSymbolsProcessed(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.exchange.fillErrs["BTCUSDT"] = fmt.Errorf("GetFills failed: %w", ports.ErrUnknown)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	assert.ErrorIs(t, err, ports.ErrNoSymbolsProcessed)
	require.NotNil(t, res)
	assert.Equal(t, domain.StateError, res.State)
	assert.Equal(t, domain.StateError, env.svc.State())
	assert.NotNil(t, env.checkpoints.cp, "checkpoint is kept for resume")
	require.Len(t, env.runs.runs, 1)
	assert.Equal(t, domain.StateError, env.runs.runs[0].State)
}

func TestSyncService_AuthFailureAbortsRun(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.addSymbol("ETHUSDT", 2)
	env.exchange.fillErrs["BTCUSDT"] = fmt.Errorf("GetFills failed: %w", ports.ErrAuthenticationFailed)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	assert.ErrorIs(t, err, ports.ErrAuthenticationFailed)
	require.NotNil(t, res)
	assert.Equal(t, domain.StateCheckpointed, res.State)
	assert.NotNil(t, env.checkpoints.cp)
	assert.Empty(t, env.trades.trades)
}

func TestSyncService_LedgerFailureCheckpoints(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.exchange.incomeErr = fmt.Errorf("GetIncome failed: %w", ports.ErrTimeout)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	assert.ErrorIs(t, err, ports.ErrTimeout)
	assert.Equal(t, domain.StateCheckpointed, res.State)
	assert.Empty(t, env.exchange.fillCalls)
}

func TestSyncService_RetriesRateLimit(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.exchange.rateLimits["BTCUSDT"] = 2

	rec := &progressRecorder{}
	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, rec.record)
	require.NoError(t, err)

	assert.Equal(t, 1, res.TradesPersisted)
	assert.False(t, res.PartialSuccess())
	assert.Equal(t, 2, rec.messagesContaining("rate limited"))
	assert.Len(t, env.exchange.fillCalls, 3)
}

func TestSyncService_RateLimitRetriesExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitMaxRetries = 1
	env := newTestEnv(t, cfg)
	env.addSymbol("BTCUSDT", 1)
	env.addSymbol("ETHUSDT", 2)
	env.exchange.rateLimits["BTCUSDT"] = 5

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, res.FailedSymbols())
	assert.Contains(t, res.PartialFailures[0].Error, "still rate limited")
}

func TestSyncService_OrdersUnavailable(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.exchange.orderErr = fmt.Errorf("GetOrders failed: %w", ports.ErrUnknown)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	require.NoError(t, err)
	assert.False(t, res.PartialSuccess())
	for _, trade := range env.trades.trades {
		assert.Equal(t, domain.OrderTypeNone, trade.EntryOrderType)
		assert.Equal(t, domain.OrderTypeNone, trade.ExitOrderType)
	}
}

func TestSyncService_ForceRefetch(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	stale := &domain.AggregatedTrade{ID: "stale", Symbol: "BTCUSDT", EntryTime: testNow.Add(-24 * time.Hour)}
	env.trades.trades[stale.ID] = stale

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30, ForceRefetch: true}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, env.trades.deleteCalls)
	assert.Equal(t, int64(1), res.TradesDeleted)
	assert.NotContains(t, env.trades.trades, "stale")
	assert.Len(t, env.trades.trades, 1)
}

func TestSyncService_PersistFailureKeepsCheckpoint(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.trades.upsertErr = fmt.Errorf("%w: disk full", ports.ErrUpdateFailed)

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	assert.ErrorIs(t, err, ports.ErrUpdateFailed)
	assert.Equal(t, domain.StateCheckpointed, res.State)
	require.Len(t, res.PartialFailures, 1)
	assert.Equal(t, domain.ScopeBatch, res.PartialFailures[0].Scope)
	assert.NotNil(t, env.checkpoints.cp)
}

func TestSyncService_FlippedLifecycleReported(t *testing.T) {
	env := newTestEnv(t, testConfig())
	entry := testNow.Add(-48 * time.Hour)
	env.exchange.fills["BTCUSDT"] = []*domain.Fill{
		{ID: 1, Symbol: "BTCUSDT", Side: domain.Buy, PositionSide: domain.PositionSideBoth, Price: 100, Quantity: 1, Time: entry},
		{ID: 2, Symbol: "BTCUSDT", Side: domain.Sell, PositionSide: domain.PositionSideBoth, Price: 110, Quantity: 3, Time: entry.Add(time.Hour)},
	}
	env.exchange.income = []*domain.LedgerEntry{
		{TransactionID: 9, Type: domain.IncomeRealizedPnL, Symbol: "BTCUSDT", Amount: 10, FillID: "2", Time: entry.Add(time.Hour)},
	}

	res, err := env.svc.StartFreshSync(context.Background(), SyncOptions{RangeDays: 30}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, res.FlippedLifecycles)
	assert.Zero(t, res.TradesPersisted)
	require.Len(t, res.PartialFailures, 1)
	assert.Equal(t, domain.ScopeLifecycle, res.PartialFailures[0].Scope)
}

func TestSyncService_DiscardAndStatus(t *testing.T) {
	env := newTestEnv(t, testConfig())
	ctx := context.Background()
	env.checkpoints.cp = &domain.SyncCheckpoint{AccountID: "acct", RunID: "r", Symbols: []string{"BTCUSDT"}}

	status, err := env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCheckpointed, status.State)
	assert.NotNil(t, status.Checkpoint)
	assert.Equal(t, -1, status.QuotaRemaining)

	require.NoError(t, env.svc.DiscardCheckpoint(ctx))
	status, err = env.svc.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StateIdle, status.State)
	assert.Nil(t, status.Checkpoint)
	assert.Nil(t, status.LastResult)
}

func TestSyncService_CanceledContext(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.addSymbol("BTCUSDT", 1)
	env.exchange.rateLimits["BTCUSDT"] = 10
	cfg := testConfig()
	cfg.RateLimitBaseDelay = time.Hour
	cfg.RateLimitMaxDelay = time.Hour
	env.svc.cfg = cfg

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	res, err := env.svc.StartFreshSync(ctx, SyncOptions{RangeDays: 30}, nil)
	require.Error(t, err)
	assert.Equal(t, domain.StateCheckpointed, res.State)
	assert.NotNil(t, env.checkpoints.cp)
	assert.Equal(t, domain.StateCheckpointed, env.svc.State())
}
