package models

import "time"

// OrderRequest describes an order submitted to the trading engine, either
// derived from a final decision or entered manually.
type OrderRequest struct {
	Symbol         string
	Side           OrderSide
	Quantity       float64
	ReferencePrice float64
	DecisionID     string // empty for manual orders
}

// OrderFill is the append-only record of an executed simulated order.
type OrderFill struct {
	ID          string
	Symbol      string
	Side        OrderSide
	Quantity    float64
	Price       float64 // effective price after slippage
	Fee         float64
	Timestamp   time.Time
	RealizedPnL float64
	DecisionID  string
}

// SignedQuantity returns the fill quantity signed by side.
func (f OrderFill) SignedQuantity() float64 {
	return f.Quantity * f.Side.Sign()
}
