package binanceclient

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"cryptoTradeSync/internal/domain"

	"github.com/adshao/go-binance/v2/futures"
)

// --- Translation Helpers ---

func translateAccountTrade(t *futures.AccountTrade) (*domain.Fill, error) {
	if t == nil {
		return nil, errors.New("received nil account trade")
	}
	price, err := strconv.ParseFloat(t.Price, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing price '%s': %w", t.Price, err)
	}
	qty, err := strconv.ParseFloat(t.Quantity, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing quantity '%s': %w", t.Quantity, err)
	}
	commission, _ := strconv.ParseFloat(t.Commission, 64)   // Informational only
	realizedPnl, _ := strconv.ParseFloat(t.RealizedPnl, 64) // Informational only

	positionSide := domain.PositionSide(t.PositionSide)
	if positionSide == "" {
		positionSide = domain.PositionSideBoth
	}

	return &domain.Fill{
		ID:           t.ID,
		OrderID:      t.OrderID,
		Symbol:       t.Symbol,
		Side:         domain.OrderSide(t.Side),
		PositionSide: positionSide,
		Price:        price,
		Quantity:     qty,
		Commission:   commission,
		RealizedPnL:  realizedPnl,
		Maker:        t.Maker,
		Time:         time.UnixMilli(t.Time),
	}, nil
}

func translateIncome(i *futures.IncomeHistory) (*domain.LedgerEntry, error) {
	if i == nil {
		return nil, errors.New("received nil income record")
	}
	amount, err := strconv.ParseFloat(i.Income, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing income '%s': %w", i.Income, err)
	}
	return &domain.LedgerEntry{
		TransactionID: i.TranID,
		Type:          domain.IncomeType(i.IncomeType),
		Symbol:        i.Symbol,
		Amount:        amount,
		Asset:         i.Asset,
		FillID:        i.TradeID,
		Time:          time.UnixMilli(i.Time),
	}, nil
}

func translateOrder(o *futures.Order) *domain.Order {
	positionSide := domain.PositionSide(o.PositionSide)
	if positionSide == "" {
		positionSide = domain.PositionSideBoth
	}
	return &domain.Order{
		ID:           o.OrderID,
		Symbol:       o.Symbol,
		Side:         domain.OrderSide(o.Side),
		PositionSide: positionSide,
		Type:         domain.OrderType(o.Type),
		Status:       string(o.Status),
		Time:         time.UnixMilli(o.Time),
	}
}
