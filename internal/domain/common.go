package domain

// OrderSide represents the side of a fill or order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// PositionSide is the hedge-mode position tag carried by fills.
// One-way accounts report PositionSideBoth for every fill.
type PositionSide string

const (
	PositionSideBoth  PositionSide = "BOTH"
	PositionSideLong  PositionSide = "LONG"
	PositionSideShort PositionSide = "SHORT"
)

// Direction is the derived direction of a position lifecycle.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// IsValid reports whether d is one of the two known directions.
func (d Direction) IsValid() bool {
	return d == DirectionLong || d == DirectionShort
}

// OpeningSide returns the order side that adds to a position of this direction.
func (d Direction) OpeningSide() OrderSide {
	if d == DirectionShort {
		return Sell
	}
	return Buy
}

// Sign is +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}
	return 1
}

// OrderType is the exchange order type (MARKET, LIMIT, STOP_MARKET, ...).
type OrderType string

// OrderTypeNone is used when the parent order of a fill is unavailable.
const OrderTypeNone OrderType = "none"

// Outcome classifies a closed trade by its net P&L.
type Outcome string

const (
	OutcomeWin       Outcome = "win"
	OutcomeLoss      Outcome = "loss"
	OutcomeBreakeven Outcome = "breakeven"
)
