package models

import "time"

// Lot is one FIFO entry of an open position. Reducing fills consume lots
// oldest-first.
type Lot struct {
	Quantity   float64
	EntryPrice float64
	OpenedAt   time.Time
}

// Position is the open exposure for a symbol. It is mutated only by the
// trading engine on fills; every other component reads it.
type Position struct {
	Symbol   string
	Side     OrderSide
	Lots     []Lot
	OpenedAt time.Time
}

// Quantity returns the total open quantity across lots. Never negative.
func (p *Position) Quantity() float64 {
	var q float64
	for _, lot := range p.Lots {
		q += lot.Quantity
	}
	return q
}

// SignedQuantity returns the quantity signed by side (long positive,
// short negative). Zero for a flat position.
func (p *Position) SignedQuantity() float64 {
	if p == nil || len(p.Lots) == 0 {
		return 0
	}
	return p.Quantity() * p.Side.Sign()
}

// AverageEntryPrice returns the quantity-weighted entry price across lots.
func (p *Position) AverageEntryPrice() float64 {
	var qty, notional float64
	for _, lot := range p.Lots {
		qty += lot.Quantity
		notional += lot.Quantity * lot.EntryPrice
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// UnrealizedPnL computes open profit against the given mark price.
func (p *Position) UnrealizedPnL(markPrice float64) float64 {
	if p == nil {
		return 0
	}
	var pnl float64
	for _, lot := range p.Lots {
		pnl += (markPrice - lot.EntryPrice) * lot.Quantity * p.Side.Sign()
	}
	return pnl
}

// IsFlat reports whether the position has no open lots.
func (p *Position) IsFlat() bool {
	return p == nil || len(p.Lots) == 0
}

// Clone returns a deep copy of the position. Used to snapshot state before
// a fill so a persistence failure can roll back cleanly.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Lots = make([]Lot, len(p.Lots))
	copy(cp.Lots, p.Lots)
	return &cp
}
