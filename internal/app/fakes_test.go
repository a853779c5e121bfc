package app

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockExchange struct {
	mu          sync.Mutex
	hedgeMode   bool
	income      []*domain.LedgerEntry
	incomeErr   error
	fills       map[string][]*domain.Fill
	orders      map[string][]*domain.Order
	fillErrs    map[string]error
	orderErr    error
	rateLimits  map[string]int // Rate-limit responses left per symbol
	incomeCalls int
	fillCalls   []string
}

func newMockExchange() *mockExchange {
	return &mockExchange{
		fills:      make(map[string][]*domain.Fill),
		orders:     make(map[string][]*domain.Order),
		fillErrs:   make(map[string]error),
		rateLimits: make(map[string]int),
	}
}

func (m *mockExchange) Ping(ctx context.Context) error { return nil }

func (m *mockExchange) GetServerTime(ctx context.Context) (time.Time, error) {
	return time.Time{}, nil
}

func (m *mockExchange) IsHedgeMode(ctx context.Context) (bool, error) {
	return m.hedgeMode, nil
}

func (m *mockExchange) GetIncome(ctx context.Context, start, end time.Time) ([]*domain.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.incomeCalls++
	return m.income, m.incomeErr
}

func (m *mockExchange) GetFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fillCalls = append(m.fillCalls, symbol)
	if m.rateLimits[symbol] > 0 {
		m.rateLimits[symbol]--
		return nil, fmt.Errorf("GetFills failed: %w", ports.ErrRateLimited)
	}
	if err := m.fillErrs[symbol]; err != nil {
		return nil, err
	}
	return m.fills[symbol], nil
}

func (m *mockExchange) GetOrders(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Order, error) {
	if m.orderErr != nil {
		return nil, m.orderErr
	}
	return m.orders[symbol], nil
}

func (m *mockExchange) fetchedSymbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, s := range m.fillCalls {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

type mockTradeRepo struct {
	mu          sync.Mutex
	trades      map[string]*domain.AggregatedTrade
	upsertErr   error
	deleteCalls int
}

func newMockTradeRepo() *mockTradeRepo {
	return &mockTradeRepo{trades: make(map[string]*domain.AggregatedTrade)}
}

func (m *mockTradeRepo) UpsertTrades(ctx context.Context, trades []*domain.AggregatedTrade) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return 0, m.upsertErr
	}
	for _, t := range trades {
		m.trades[t.ID] = t
	}
	return len(trades), nil
}

func (m *mockTradeRepo) DeleteTradesInRange(ctx context.Context, start, end time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleteCalls++
	var n int64
	for id, t := range m.trades {
		if !t.EntryTime.Before(start) && !t.EntryTime.After(end) {
			delete(m.trades, id)
			n++
		}
	}
	return n, nil
}

func (m *mockTradeRepo) FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.AggregatedTrade, error) {
	return nil, nil
}

func (m *mockTradeRepo) FindAll(ctx context.Context, limit int) ([]*domain.AggregatedTrade, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.AggregatedTrade, 0, len(m.trades))
	for _, t := range m.trades {
		out = append(out, t)
	}
	return out, nil
}

type mockCheckpointRepo struct {
	mu      sync.Mutex
	cp      *domain.SyncCheckpoint
	corrupt bool
	income  []*domain.LedgerEntry
	fills   map[string][]*domain.Fill
	orders  map[string][]*domain.Order
	saves   int
}

func newMockCheckpointRepo() *mockCheckpointRepo {
	return &mockCheckpointRepo{
		fills:  make(map[string][]*domain.Fill),
		orders: make(map[string][]*domain.Order),
	}
}

func (m *mockCheckpointRepo) LoadCheckpoint(ctx context.Context, accountID string) (*domain.SyncCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.corrupt {
		return nil, fmt.Errorf("%w: bad payload", ports.ErrCheckpointCorrupt)
	}
	if m.cp == nil {
		return nil, nil
	}
	return m.cp.Clone(), nil
}

func (m *mockCheckpointRepo) SaveCheckpoint(ctx context.Context, cp *domain.SyncCheckpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = cp.Clone()
	m.saves++
	return nil
}

func (m *mockCheckpointRepo) StageIncome(ctx context.Context, cp *domain.SyncCheckpoint, entries []*domain.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.income = entries
	m.cp = cp.Clone()
	return nil
}

func (m *mockCheckpointRepo) StageSymbol(ctx context.Context, cp *domain.SyncCheckpoint, symbol string, fills []*domain.Fill, orders []*domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fills[symbol] = fills
	m.orders[symbol] = orders
	m.cp = cp.Clone()
	return nil
}

func (m *mockCheckpointRepo) LoadStaged(ctx context.Context, accountID string) (*domain.RawDataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds := &domain.RawDataset{Income: append([]*domain.LedgerEntry(nil), m.income...)}
	symbols := make([]string, 0, len(m.fills))
	for s := range m.fills {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	for _, s := range symbols {
		ds.Fills = append(ds.Fills, m.fills[s]...)
		ds.Orders = append(ds.Orders, m.orders[s]...)
	}
	return ds, nil
}

func (m *mockCheckpointRepo) ClearCheckpoint(ctx context.Context, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cp = nil
	m.corrupt = false
	m.income = nil
	m.fills = make(map[string][]*domain.Fill)
	m.orders = make(map[string][]*domain.Order)
	return nil
}

type mockRunRepo struct {
	mu      sync.Mutex
	runs    []*domain.SyncRun
	results []*domain.AggregationResult
}

func (m *mockRunRepo) RecordRun(ctx context.Context, run *domain.SyncRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockRunRepo) CountSuccessfulRunsSince(ctx context.Context, accountID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.runs {
		if r.AccountID == accountID && r.State == domain.StateSuccess && r.FinishedAt.After(since) {
			n++
		}
	}
	return n, nil
}

func (m *mockRunRepo) SaveResult(ctx context.Context, res *domain.AggregationResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = append(m.results, res)
	return nil
}

func (m *mockRunRepo) LastResult(ctx context.Context, accountID string) (*domain.AggregationResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.results) == 0 {
		return nil, nil
	}
	return m.results[len(m.results)-1], nil
}

// roundTrip builds one long buy-then-sell lifecycle for symbol with its ledger entries:
// entry 100, exit 110, quantity 1, realized +10, commission 0.1 per fill.
func roundTrip(symbol string, idBase int64, entry time.Time) ([]*domain.Fill, []*domain.Order, []*domain.LedgerEntry) {
	exit := entry.Add(time.Hour)
	fills := []*domain.Fill{
		{ID: idBase + 1, OrderID: idBase + 1, Symbol: symbol, Side: domain.Buy, PositionSide: domain.PositionSideBoth, Price: 100, Quantity: 1, Commission: 0.1, Time: entry},
		{ID: idBase + 2, OrderID: idBase + 2, Symbol: symbol, Side: domain.Sell, PositionSide: domain.PositionSideBoth, Price: 110, Quantity: 1, Commission: 0.1, RealizedPnL: 10, Time: exit},
	}
	orders := []*domain.Order{
		{ID: idBase + 1, Symbol: symbol, Side: domain.Buy, Type: "LIMIT", Time: entry},
		{ID: idBase + 2, Symbol: symbol, Side: domain.Sell, Type: "MARKET", Time: exit},
	}
	ledger := []*domain.LedgerEntry{
		{TransactionID: idBase + 1, Type: domain.IncomeCommission, Symbol: symbol, Amount: -0.1, Asset: "USDT", FillID: strconv.FormatInt(idBase+1, 10), Time: entry},
		{TransactionID: idBase + 2, Type: domain.IncomeCommission, Symbol: symbol, Amount: -0.1, Asset: "USDT", FillID: strconv.FormatInt(idBase+2, 10), Time: exit},
		{TransactionID: idBase + 3, Type: domain.IncomeRealizedPnL, Symbol: symbol, Amount: 10, Asset: "USDT", FillID: strconv.FormatInt(idBase+2, 10), Time: exit},
	}
	return fills, orders, ledger
}
