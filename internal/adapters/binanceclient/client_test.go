package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"
)

// Mock implementations
type mockLogger struct {
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.warnMsgs = append(m.warnMsgs, msg)
}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

func TestNew(t *testing.T) {
	_, err := New(Config{APIKey: "k", SecretKey: "s"})
	assert.Error(t, err, "logger is required")

	_, err = New(Config{Logger: &mockLogger{}})
	assert.True(t, errors.Is(err, ports.ErrConfigurationError))

	c, err := New(Config{APIKey: "k", SecretKey: "s", UseTestnet: true, Logger: &mockLogger{}})
	require.NoError(t, err)
	assert.Equal(t, baseURLTestnet, c.futuresClient.BaseURL)
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      error
		wantWarn  bool
		wantError bool
	}{
		{name: "rate limit code", err: &common.APIError{Code: -1003, Message: "Too many requests"}, want: ports.ErrRateLimited, wantWarn: true},
		{name: "invalid key", err: &common.APIError{Code: -2015, Message: "Invalid API-key"}, want: ports.ErrInvalidAPIKeys, wantError: true},
		{name: "bad signature", err: &common.APIError{Code: -1022, Message: "Signature invalid"}, want: ports.ErrAuthenticationFailed, wantError: true},
		{name: "bad parameter", err: &common.APIError{Code: -1121, Message: "Invalid symbol"}, want: ports.ErrInvalidRequest, wantError: true},
		{name: "http 429", err: errors.New("<APIError> status code 429"), want: ports.ErrRateLimited, wantError: true},
		{name: "canceled", err: fmt.Errorf("do: %w", context.Canceled), want: ports.ErrContextCanceled, wantError: true},
		{name: "deadline", err: context.DeadlineExceeded, want: ports.ErrTimeout, wantError: true},
		{name: "connection reset", err: errors.New("read: connection reset by peer"), want: ports.ErrConnectionFailed, wantError: true},
		{name: "other", err: errors.New("boom"), want: ports.ErrUnknown, wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := &mockLogger{}
			c := &Client{logger: logger}

			err := c.handleError(context.Background(), tt.err, "GetFills BTCUSDT")

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.True(t, errors.Is(err, tt.err), "original error is kept in the chain")
			assert.Equal(t, tt.wantWarn, len(logger.warnMsgs) > 0)
			assert.Equal(t, tt.wantError, len(logger.errorMsgs) > 0)
		})
	}

	assert.NoError(t, (&Client{logger: &mockLogger{}}).handleError(context.Background(), nil, "Ping"))
}

func TestTranslateAccountTrade(t *testing.T) {
	fill, err := translateAccountTrade(&futures.AccountTrade{
		ID:           42,
		OrderID:      7,
		Symbol:       "BTCUSDT",
		Side:         futures.SideTypeSell,
		PositionSide: futures.PositionSideTypeShort,
		Price:        "65000.10",
		Quantity:     "0.002",
		Commission:   "0.052",
		RealizedPnl:  "0",
		Maker:        true,
		Time:         1717243200000,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(42), fill.ID)
	assert.Equal(t, int64(7), fill.OrderID)
	assert.Equal(t, domain.Sell, fill.Side)
	assert.Equal(t, domain.PositionSideShort, fill.PositionSide)
	assert.InDelta(t, 65000.10, fill.Price, 1e-9)
	assert.InDelta(t, 0.002, fill.Quantity, 1e-12)
	assert.InDelta(t, 0.052, fill.Commission, 1e-12)
	assert.True(t, fill.Maker)
	assert.Equal(t, time.UnixMilli(1717243200000), fill.Time)

	_, err = translateAccountTrade(&futures.AccountTrade{Price: "abc", Quantity: "1"})
	assert.Error(t, err)
	_, err = translateAccountTrade(nil)
	assert.Error(t, err)
}

func TestTranslateAccountTrade_DefaultsPositionSide(t *testing.T) {
	fill, err := translateAccountTrade(&futures.AccountTrade{Price: "1", Quantity: "1", Side: futures.SideTypeBuy})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionSideBoth, fill.PositionSide)
}

func TestTranslateIncome(t *testing.T) {
	entry, err := translateIncome(&futures.IncomeHistory{
		TranID:     9001,
		IncomeType: "REALIZED_PNL",
		Symbol:     "ETHUSDT",
		Income:     "-12.5",
		Asset:      "USDT",
		TradeID:    "42",
		Time:       1717243200000,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.IncomeRealizedPnL, entry.Type)
	assert.InDelta(t, -12.5, entry.Amount, 1e-12)
	assert.Equal(t, "42", entry.FillID)
	assert.True(t, entry.HasFillRef())
	assert.Equal(t, "9001:REALIZED_PNL:42", entry.Key())

	_, err = translateIncome(&futures.IncomeHistory{Income: "n/a"})
	assert.Error(t, err)
}

func TestTranslateOrder(t *testing.T) {
	order := translateOrder(&futures.Order{
		OrderID: 7,
		Symbol:  "BTCUSDT",
		Side:    futures.SideTypeBuy,
		Type:    futures.OrderTypeLimit,
		Status:  futures.OrderStatusTypeFilled,
		Time:    1717243200000,
	})

	assert.Equal(t, int64(7), order.ID)
	assert.Equal(t, domain.OrderType("LIMIT"), order.Type)
	assert.Equal(t, "FILLED", order.Status)
	assert.Equal(t, domain.PositionSideBoth, order.PositionSide)
}

func TestWalkWindow_SplitsSpans(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(20 * 24 * time.Hour)
	var spans [][2]time.Time

	err := walkWindow(start, end, 7*24*time.Hour, 1000, func(from, to time.Time) (int, time.Time, error) {
		spans = append(spans, [2]time.Time{from, to})
		return 0, time.Time{}, nil
	}, nil)
	require.NoError(t, err)

	require.Len(t, spans, 3)
	assert.Equal(t, start, spans[0][0])
	assert.Equal(t, start.Add(7*24*time.Hour-time.Millisecond), spans[0][1])
	assert.Equal(t, start.Add(7*24*time.Hour), spans[1][0])
	assert.Equal(t, end, spans[2][1])
}

func TestWalkWindow_PagesFullSpans(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	var froms []time.Time
	var saturated []time.Time

	err := walkWindow(start, end, 7*24*time.Hour, 2, func(from, to time.Time) (int, time.Time, error) {
		froms = append(froms, from)
		switch len(froms) {
		case 1:
			return 2, start.Add(10 * time.Minute), nil
		case 2:
			return 2, start.Add(10 * time.Minute), nil // full page stuck at the same millisecond
		default:
			return 1, start.Add(20 * time.Minute), nil
		}
	}, func(at time.Time) { saturated = append(saturated, at) })
	require.NoError(t, err)
	assert.Equal(t, []time.Time{start.Add(10 * time.Minute)}, saturated)

	assert.Equal(t, []time.Time{
		start,
		start.Add(10 * time.Minute),
		start.Add(10*time.Minute + time.Millisecond),
	}, froms)
}

func TestWalkWindow_PropagatesErrors(t *testing.T) {
	start := time.Now()
	boom := errors.New("boom")

	err := walkWindow(start, start.Add(time.Hour), time.Hour, 10, func(from, to time.Time) (int, time.Time, error) {
		return 0, time.Time{}, boom
	}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestWarnSaturated_LogsSkippedMillisecond(t *testing.T) {
	logger := &mockLogger{}
	c, err := New(Config{APIKey: "k", SecretKey: "s", UseTestnet: true, Logger: logger})
	require.NoError(t, err)

	c.warnSaturated(context.Background(), "GetFills BTCUSDT")(time.UnixMilli(1711936800000))

	require.Len(t, logger.warnMsgs, 1)
	assert.Contains(t, logger.warnMsgs[0], "GetFills BTCUSDT")
	assert.Contains(t, logger.warnMsgs[0], "skipped")
}
