// Package trading provides the simulated order-execution engine: fee and
// slippage application, FIFO position matching, and the persisted equity
// ledger.
package trading

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tradepilot/internal/config"
	"tradepilot/internal/errors"
	"tradepilot/internal/logging"
	"tradepilot/internal/models"
	"tradepilot/internal/store"
)

// Engine turns decisions and manual order requests into simulated fills,
// positions, and an equity ledger. Position and EquitySnapshot are mutated
// exclusively here; other components only read published copies.
type Engine struct {
	settings config.Repository
	ledger   store.Ledger
	logger   zerolog.Logger

	mu        sync.Mutex
	positions map[string]*models.Position
	snapshots map[string]models.EquitySnapshot
	marks     map[string]float64
	starting  float64
}

// NewEngine creates a trading engine with the given starting equity per
// symbol ledger.
func NewEngine(settings config.Repository, ledger store.Ledger, startingEquity float64, logger zerolog.Logger) *Engine {
	return &Engine{
		settings:  settings,
		ledger:    ledger,
		logger:    logger,
		positions: make(map[string]*models.Position),
		snapshots: make(map[string]models.EquitySnapshot),
		marks:     make(map[string]float64),
		starting:  startingEquity,
	}
}

// Restore rebuilds in-memory state from the persisted ledger: positions
// from full fill replay, equity from the latest snapshot.
func (e *Engine) Restore(ctx context.Context, symbols []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, symbol := range symbols {
		fills, err := e.ledger.Fills(ctx, symbol, time.Time{})
		if err != nil {
			return errors.Wrapf(err, "restoring fills for %s", symbol)
		}
		if pos := ReplayFills(symbol, fills); pos != nil {
			e.positions[symbol] = pos
		}

		snap, err := e.ledger.LatestSnapshot(ctx, symbol)
		switch {
		case err == nil:
			e.snapshots[symbol] = *snap
		case errors.Is(err, errors.ErrSnapshotNotFound):
			// Fresh ledger, nothing to restore.
		default:
			return errors.Wrapf(err, "restoring snapshot for %s", symbol)
		}
	}
	return nil
}

// UpdateMark records the latest mark price for a symbol. Unrealized PnL is
// recomputed against it on the next snapshot update.
func (e *Engine) UpdateMark(symbol string, price float64) {
	if price <= 0 {
		return
	}
	e.mu.Lock()
	e.marks[symbol] = price
	e.mu.Unlock()
}

// Position returns a copy of the open position for a symbol, or nil when
// flat.
func (e *Engine) Position(symbol string) *models.Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positions[symbol].Clone()
}

// Snapshot returns the current equity snapshot for a symbol.
func (e *Engine) Snapshot(symbol string) models.EquitySnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentSnapshotLocked(symbol, time.Now())
}

// ExecuteDecision converts an actionable decision into an order and
// executes it.
func (e *Engine) ExecuteDecision(ctx context.Context, decision models.FinalDecision, quantity, referencePrice float64) (models.OrderFill, error) {
	side, ok := models.SideForDirection(decision.Action)
	if !ok {
		return models.OrderFill{}, errors.NewOrderError(decision.Symbol, string(decision.Action), "decision is not actionable", nil)
	}
	return e.Execute(ctx, models.OrderRequest{
		Symbol:         decision.Symbol,
		Side:           side,
		Quantity:       quantity,
		ReferencePrice: referencePrice,
		DecisionID:     decision.ID,
	})
}

// Execute validates, simulates, and persists one order. Fills are
// synchronous and all-or-nothing: either the fill commits (in memory and in
// the ledger) or every side effect is rolled back.
func (e *Engine) Execute(ctx context.Context, req models.OrderRequest) (models.OrderFill, error) {
	settings := e.settings.Snapshot()

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.validateLocked(req, settings); err != nil {
		return models.OrderFill{}, err
	}

	now := time.Now()

	// Slippage: buys pay up, sells receive down.
	effectivePrice := req.ReferencePrice * (1 + req.Side.Sign()*settings.SlippageBps/10000)
	fee := req.Quantity * effectivePrice * settings.FeeBps / 10000

	res := matchFIFO(e.positions[req.Symbol], req.Symbol, req.Side, req.Quantity, effectivePrice, now)

	// Realized PnL on the fill record carries the fee share of the matched
	// quantity; the equity ledger always absorbs the full fee.
	proratedFee := fee
	if req.Quantity > 0 {
		proratedFee = fee * res.matchedQty / req.Quantity
	}

	fill := models.OrderFill{
		ID:          uuid.New().String(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		Quantity:    req.Quantity,
		Price:       effectivePrice,
		Fee:         fee,
		Timestamp:   now,
		RealizedPnL: res.grossPnL - proratedFee,
		DecisionID:  req.DecisionID,
	}

	// Snapshot pre-fill state so a persistence failure can roll back.
	prevPosition, hadPosition := e.positions[req.Symbol], e.positions[req.Symbol] != nil
	prevSnapshot, hadSnapshot := e.snapshots[req.Symbol]

	if res.position == nil {
		delete(e.positions, req.Symbol)
	} else {
		e.positions[req.Symbol] = res.position
	}

	mark := e.marks[req.Symbol]
	if mark == 0 {
		mark = effectivePrice
	}

	snapshot := e.currentSnapshotLocked(req.Symbol, now)
	snapshot.Timestamp = now
	snapshot.Equity += res.grossPnL - fee
	snapshot.RealizedTodayPnL += res.grossPnL - fee
	snapshot.UnrealizedPnL = e.positions[req.Symbol].UnrealizedPnL(mark)
	e.snapshots[req.Symbol] = snapshot

	if err := e.ledger.SaveExecution(ctx, fill, snapshot); err != nil {
		// The ledger must never diverge from memory: restore the last
		// durable state and surface a retryable error.
		if hadPosition {
			e.positions[req.Symbol] = prevPosition
		} else {
			delete(e.positions, req.Symbol)
		}
		if hadSnapshot {
			e.snapshots[req.Symbol] = prevSnapshot
		} else {
			delete(e.snapshots, req.Symbol)
		}
		e.logger.Error().Err(err).Str("symbol", req.Symbol).Msg("Fill rolled back after persistence failure")
		return models.OrderFill{}, err
	}

	logging.LogFill(e.logger, fill.ID, fill.Symbol, string(fill.Side),
		fill.Quantity, fill.Price, fill.Fee, fill.RealizedPnL)

	return fill, nil
}

// validateLocked applies request and risk-limit checks. Rejections carry
// the specific reason, never a generic failure.
func (e *Engine) validateLocked(req models.OrderRequest, settings config.Settings) error {
	if req.Symbol == "" {
		return errors.NewOrderError(req.Symbol, string(req.Side), "missing symbol", errors.ErrUnknownSymbol)
	}
	if req.Quantity <= 0 {
		return errors.NewOrderError(req.Symbol, string(req.Side), "quantity must be positive", errors.ErrInvalidQuantity)
	}
	if req.ReferencePrice <= 0 {
		return errors.NewOrderError(req.Symbol, string(req.Side), "reference price must be positive", errors.ErrInvalidQuantity)
	}

	if settings.MaxDailyLoss > 0 {
		snapshot := e.currentSnapshotLocked(req.Symbol, time.Now())
		if snapshot.RealizedTodayPnL <= -settings.MaxDailyLoss {
			return errors.NewRiskError("max_daily_loss", -snapshot.RealizedTodayPnL, settings.MaxDailyLoss,
				"daily loss limit reached")
		}
	}

	if settings.MaxPosition > 0 {
		projected := e.projectedNotionalLocked(req)
		if projected > settings.MaxPosition {
			return errors.NewRiskError("max_position_size", projected, settings.MaxPosition,
				"order would exceed max position size")
		}
	}

	return nil
}

// projectedNotionalLocked estimates the open notional after the fill.
func (e *Engine) projectedNotionalLocked(req models.OrderRequest) float64 {
	signed := e.positions[req.Symbol].SignedQuantity() + req.Quantity*req.Side.Sign()
	if signed < 0 {
		signed = -signed
	}
	return signed * req.ReferencePrice
}

// currentSnapshotLocked returns the snapshot for the UTC day of ts,
// rolling equity over from the previous day when needed.
func (e *Engine) currentSnapshotLocked(symbol string, ts time.Time) models.EquitySnapshot {
	snap, ok := e.snapshots[symbol]
	if ok && snap.SameDay(ts) {
		return snap
	}

	equity := e.starting
	if ok {
		equity = snap.Equity
	}
	return models.EquitySnapshot{
		Symbol:           symbol,
		Timestamp:        ts,
		Equity:           equity,
		RealizedTodayPnL: 0,
		UnrealizedPnL:    e.positions[symbol].UnrealizedPnL(e.marks[symbol]),
	}
}
