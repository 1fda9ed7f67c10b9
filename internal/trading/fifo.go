package trading

import (
	"time"

	"tradepilot/internal/models"
)

// matchResult is the outcome of applying one fill to a position with FIFO
// lot matching.
type matchResult struct {
	// position is the post-fill position; nil when the fill closed it flat.
	position *models.Position
	// matchedQty is the quantity that reduced existing lots.
	matchedQty float64
	// grossPnL is the realized profit on the matched quantity before fees.
	grossPnL float64
}

// matchFIFO applies a fill against a position. Same-side fills append a new
// lot; opposing fills consume the oldest lots first, and any quantity beyond
// full closure opens a position on the opposite side.
//
// The function is pure: the input position is never mutated.
func matchFIFO(pos *models.Position, symbol string, side models.OrderSide, qty, price float64, ts time.Time) matchResult {
	if pos.IsFlat() || pos.Side == side {
		next := pos.Clone()
		if next == nil || next.IsFlat() {
			next = &models.Position{
				Symbol:   symbol,
				Side:     side,
				OpenedAt: ts,
			}
		}
		next.Lots = append(next.Lots, models.Lot{
			Quantity:   qty,
			EntryPrice: price,
			OpenedAt:   ts,
		})
		return matchResult{position: next}
	}

	// Opposing fill: reduce oldest lots first.
	next := pos.Clone()
	var matched, gross float64
	remaining := qty
	closeSign := pos.Side.Sign()

	for remaining > 0 && len(next.Lots) > 0 {
		lot := &next.Lots[0]
		consume := lot.Quantity
		if consume > remaining {
			consume = remaining
		}

		gross += (price - lot.EntryPrice) * consume * closeSign
		matched += consume
		remaining -= consume
		lot.Quantity -= consume

		if lot.Quantity <= 0 {
			next.Lots = next.Lots[1:]
		}
	}

	if len(next.Lots) == 0 {
		next = nil
	}

	// Overshoot flips the position to the fill's side.
	if remaining > 0 {
		next = &models.Position{
			Symbol:   symbol,
			Side:     side,
			OpenedAt: ts,
			Lots: []models.Lot{{
				Quantity:   remaining,
				EntryPrice: price,
				OpenedAt:   ts,
			}},
		}
	}

	return matchResult{
		position:   next,
		matchedQty: matched,
		grossPnL:   gross,
	}
}

// ReplayFills reconstructs the open position for a symbol by re-applying
// its full fill history through the same FIFO matching the engine uses.
// Returns nil for a flat position.
func ReplayFills(symbol string, fills []models.OrderFill) *models.Position {
	var pos *models.Position
	for _, f := range fills {
		res := matchFIFO(pos, symbol, f.Side, f.Quantity, f.Price, f.Timestamp)
		pos = res.position
	}
	return pos
}

// ReplayEquity reconstructs equity by re-applying fills on top of a
// baseline. Each fill contributes its gross realized PnL minus its full fee,
// which is exactly the delta the engine applied when the fill executed.
func ReplayEquity(symbol string, baseline float64, fills []models.OrderFill) float64 {
	equity := baseline
	var pos *models.Position
	for _, f := range fills {
		res := matchFIFO(pos, symbol, f.Side, f.Quantity, f.Price, f.Timestamp)
		pos = res.position
		equity += res.grossPnL - f.Fee
	}
	return equity
}
