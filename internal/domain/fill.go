package domain

import "time"

// Fill is one executed quantity at one price for one order.
type Fill struct {
	ID           int64        // Exchange-assigned fill (trade) ID
	OrderID      int64        // Owning order ID
	Symbol       string       // Trading symbol (e.g., "ETHUSDT")
	Side         OrderSide    // BUY or SELL
	PositionSide PositionSide // LONG/SHORT in hedge accounts, BOTH otherwise
	Price        float64      // Execution price
	Quantity     float64      // Executed quantity, always positive
	Commission   float64      // Commission charged on this fill (informational, ledger is authoritative)
	RealizedPnL  float64      // Realized P&L reported on the fill (informational)
	Maker        bool         // True if the fill provided liquidity
	Time         time.Time    // Execution time
}

// SignedQuantity returns the quantity with a positive sign for buys and negative for sells.
func (f *Fill) SignedQuantity() float64 {
	if f.Side == Sell {
		return -f.Quantity
	}
	return f.Quantity
}

// Order is the parent instruction of one or more fills. Read-only context for aggregation.
type Order struct {
	ID           int64
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Type         OrderType
	Status       string
	Time         time.Time
}
