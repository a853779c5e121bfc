package binanceclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cryptoTradeSync/internal/domain"
	"cryptoTradeSync/internal/ports"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

const (
	// Base URLs
	baseURLProduction = "https://fapi.binance.com"
	baseURLTestnet    = "https://testnet.binancefuture.com"

	// Endpoint limits
	incomePageLimit = 1000
	tradesPageLimit = 1000
	ordersPageLimit = 1000
	tradesMaxSpan   = 7 * 24 * time.Hour // userTrades and allOrders reject wider windows
	incomeMaxSpan   = 90 * 24 * time.Hour
)

// Client implements the ports.ExchangeClient interface using the go-binance library.
// It only reads account data; it never places or cancels orders.
type Client struct {
	futuresClient *futures.Client
	logger        ports.Logger
}

// Config holds configuration specific to the Binance client adapter.
type Config struct {
	APIKey     string
	SecretKey  string
	UseTestnet bool
	Logger     ports.Logger
}

// New creates a new Binance client adapter.
func New(cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for Binance client")
	}
	if cfg.APIKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("%w: API key and secret are required to read account data", ports.ErrConfigurationError)
	}

	client := futures.NewClient(cfg.APIKey, cfg.SecretKey)

	// Set BaseURL directly instead of using global futures.UseTestnet
	if cfg.UseTestnet {
		client.BaseURL = baseURLTestnet
		cfg.Logger.Info(context.Background(), "Binance client configured for Testnet", map[string]interface{}{"baseURL": client.BaseURL})
	} else {
		client.BaseURL = baseURLProduction
		cfg.Logger.Info(context.Background(), "Binance client configured for Production", map[string]interface{}{"baseURL": client.BaseURL})
	}

	return &Client{
		futuresClient: client,
		logger:        cfg.Logger,
	}, nil
}

// handleError translates common Binance API errors into standardized ports errors.
func (c *Client) handleError(ctx context.Context, err error, operation string) error {
	if err == nil {
		return nil
	}

	fields := map[string]interface{}{"operation": operation, "originalError": err.Error()}

	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		fields["apiErrorCode"] = apiErr.Code
		fields["apiErrorMessage"] = apiErr.Message

		var mappedErr error
		switch apiErr.Code {
		case -1003, -1015: // Too many requests / too many orders
			mappedErr = ports.ErrRateLimited
		case -1021: // Timestamp for this request is outside of the recvWindow
			mappedErr = ports.ErrTimeout
		case -1022: // Signature for this request is not valid
			mappedErr = ports.ErrAuthenticationFailed
		case -1101, -1102, -1103, -1104, -1105, -1106, -1111, -1115, -1116, -1117, -1120, -1121, -1125, -1127, -1128, -1130: // Parameter/Request format errors
			mappedErr = ports.ErrInvalidRequest
		case -2014, -2015: // API-key format invalid / invalid key, IP or permissions
			mappedErr = ports.ErrInvalidAPIKeys
		default:
			mappedErr = ports.ErrUnknown
		}
		finalErr := fmt.Errorf("%s failed: %w: %w", operation, mappedErr, err)
		if errors.Is(mappedErr, ports.ErrRateLimited) {
			// Retried by the caller; not worth an error line.
			c.logger.Warn(ctx, fmt.Sprintf("%s rate limited", operation), fields)
		} else {
			c.logger.Error(ctx, err, fmt.Sprintf("%s failed with API error", operation), fields)
		}
		return finalErr
	}

	// Handle non-API errors (network, context cancellation, etc.)
	var finalErr error
	msg := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrTimeout, err)
	case errors.Is(err, context.Canceled):
		finalErr = fmt.Errorf("%s operation canceled: %w: %w", operation, ports.ErrContextCanceled, err)
	case strings.Contains(msg, "429") || strings.Contains(msg, "418") || strings.Contains(strings.ToLower(msg), "too many requests"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrRateLimited, err)
	case strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset by peer"):
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrConnectionFailed, err)
	default:
		finalErr = fmt.Errorf("%s failed: %w: %w", operation, ports.ErrUnknown, err)
	}

	c.logger.Error(ctx, err, fmt.Sprintf("%s failed", operation), fields)
	return finalErr
}

// Ping checks the connectivity to the exchange API.
func (c *Client) Ping(ctx context.Context) error {
	op := "Ping"
	err := c.futuresClient.NewPingService().Do(ctx)
	if err != nil {
		return c.handleError(ctx, fmt.Errorf("ping failed: %w", err), op)
	}
	c.logger.Debug(ctx, op+" successful")
	return nil
}

// GetServerTime retrieves the current server time from the exchange.
func (c *Client) GetServerTime(ctx context.Context) (time.Time, error) {
	op := "GetServerTime"
	serverTimeMs, err := c.futuresClient.NewServerTimeService().Do(ctx)
	if err != nil {
		return time.Time{}, c.handleError(ctx, err, op)
	}
	return time.UnixMilli(serverTimeMs), nil
}

// IsHedgeMode reports whether the account trades with dual-side positions.
func (c *Client) IsHedgeMode(ctx context.Context) (bool, error) {
	op := "IsHedgeMode"
	mode, err := c.futuresClient.NewGetPositionModeService().Do(ctx)
	if err != nil {
		return false, c.handleError(ctx, err, op)
	}
	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"dualSidePosition": mode.DualSidePosition})
	return mode.DualSidePosition, nil
}

// GetIncome retrieves every ledger entry of the account in [start, end].
func (c *Client) GetIncome(ctx context.Context, start, end time.Time) ([]*domain.LedgerEntry, error) {
	op := "GetIncome"
	entries := make([]*domain.LedgerEntry, 0)
	seen := make(map[string]bool)

	err := walkWindow(start, end, incomeMaxSpan, incomePageLimit, func(from, to time.Time) (int, time.Time, error) {
		page, err := c.futuresClient.NewGetIncomeHistoryService().
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli()).
			Limit(int64(incomePageLimit)).
			Do(ctx)
		if err != nil {
			return 0, time.Time{}, err
		}
		var last time.Time
		for _, raw := range page {
			entry, err := translateIncome(raw)
			if err != nil {
				return 0, time.Time{}, fmt.Errorf("failed to translate income record: %w", err)
			}
			last = entry.Time
			if seen[entry.Key()] {
				continue
			}
			seen[entry.Key()] = true
			entries = append(entries, entry)
		}
		return len(page), last, nil
	}, c.warnSaturated(ctx, op))
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"entries": len(entries), "start": start, "end": end})
	return entries, nil
}

// GetFills retrieves the account's fills for symbol in [start, end].
func (c *Client) GetFills(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Fill, error) {
	op := "GetFills"
	fills := make([]*domain.Fill, 0)
	seen := make(map[int64]bool)

	err := walkWindow(start, end, tradesMaxSpan, tradesPageLimit, func(from, to time.Time) (int, time.Time, error) {
		page, err := c.futuresClient.NewListAccountTradeService().
			Symbol(symbol).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli()).
			Limit(tradesPageLimit).
			Do(ctx)
		if err != nil {
			return 0, time.Time{}, err
		}
		var last time.Time
		for _, raw := range page {
			fill, err := translateAccountTrade(raw)
			if err != nil {
				return 0, time.Time{}, fmt.Errorf("failed to translate account trade: %w", err)
			}
			last = fill.Time
			if seen[fill.ID] {
				continue
			}
			seen[fill.ID] = true
			fills = append(fills, fill)
		}
		return len(page), last, nil
	}, c.warnSaturated(ctx, op+" "+symbol))
	if err != nil {
		return nil, c.handleError(ctx, err, op+" "+symbol)
	}

	c.logger.Debug(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "fills": len(fills)})
	return fills, nil
}

// GetOrders retrieves the account's orders for symbol in [start, end].
func (c *Client) GetOrders(ctx context.Context, symbol string, start, end time.Time) ([]*domain.Order, error) {
	op := "GetOrders"
	orders := make([]*domain.Order, 0)
	seen := make(map[int64]bool)

	err := walkWindow(start, end, tradesMaxSpan, ordersPageLimit, func(from, to time.Time) (int, time.Time, error) {
		page, err := c.futuresClient.NewListOrdersService().
			Symbol(symbol).
			StartTime(from.UnixMilli()).
			EndTime(to.UnixMilli()).
			Limit(ordersPageLimit).
			Do(ctx)
		if err != nil {
			return 0, time.Time{}, err
		}
		var last time.Time
		for _, raw := range page {
			order := translateOrder(raw)
			last = order.Time
			if seen[order.ID] {
				continue
			}
			seen[order.ID] = true
			orders = append(orders, order)
		}
		return len(page), last, nil
	}, c.warnSaturated(ctx, op+" "+symbol))
	if err != nil {
		return nil, c.handleError(ctx, err, op+" "+symbol)
	}
	return orders, nil
}

// warnSaturated reports records lost to a page that filled up within one millisecond.
func (c *Client) warnSaturated(ctx context.Context, op string) func(at time.Time) {
	return func(at time.Time) {
		c.logger.Warn(ctx, op+": full page within one millisecond, remaining records at that time are skipped", map[string]interface{}{
			"timestamp": at.UnixMilli(),
		})
	}
}

// walkWindow splits [start, end] into spans of at most maxSpan and pages through each span.
// fetch returns the raw page size and the time of the last record; a full page continues
// from that time (callers de-duplicate the overlap). onSaturated, if set, is called with the
// millisecond whose remaining records are skipped because a full page never left it.
func walkWindow(start, end time.Time, maxSpan time.Duration, pageLimit int, fetch func(from, to time.Time) (int, time.Time, error), onSaturated func(at time.Time)) error {
	for spanStart := start; !spanStart.After(end); {
		spanEnd := spanStart.Add(maxSpan - time.Millisecond)
		if spanEnd.After(end) {
			spanEnd = end
		}

		from := spanStart
		for {
			n, last, err := fetch(from, spanEnd)
			if err != nil {
				return err
			}
			if n < pageLimit {
				break
			}
			if last.After(from) {
				from = last
			} else {
				// A full page inside one millisecond; step past it.
				if onSaturated != nil {
					onSaturated(from)
				}
				from = from.Add(time.Millisecond)
			}
			if from.After(spanEnd) {
				break
			}
		}

		spanStart = spanEnd.Add(time.Millisecond)
	}
	return nil
}
