// Package store provides the persisted ledger: append-only fills, equity
// snapshots, and the decision log.
package store

import (
	"context"
	"time"

	"tradepilot/internal/models"
)

// Ledger defines the persistence surface of the engine. Fills are
// append-only; equity snapshots are one row per symbol per UTC day, updated
// in place within the day. The stored history must support full replay: the
// latest snapshot plus subsequent fills reconstructs current equity.
type Ledger interface {
	// SaveExecution persists a fill and the updated equity snapshot
	// atomically. A fill is never reported successful unless this returns
	// nil.
	SaveExecution(ctx context.Context, fill models.OrderFill, snapshot models.EquitySnapshot) error

	// Fills returns fills for a symbol at or after since, oldest first.
	// A zero since returns the full history.
	Fills(ctx context.Context, symbol string, since time.Time) ([]models.OrderFill, error)

	// LatestSnapshot returns the most recent equity snapshot for a symbol,
	// or ErrSnapshotNotFound.
	LatestSnapshot(ctx context.Context, symbol string) (*models.EquitySnapshot, error)

	// Snapshots returns the equity time series for a symbol, oldest first.
	Snapshots(ctx context.Context, symbol string, from, to time.Time) ([]models.EquitySnapshot, error)

	// SaveDecision appends a final decision to the audit log.
	SaveDecision(ctx context.Context, decision models.FinalDecision) error

	// Decisions returns logged decisions matching the filter, oldest first.
	Decisions(ctx context.Context, filter DecisionFilter) ([]models.FinalDecision, error)

	// Lifecycle
	Close() error
}

// DecisionFilter represents filters for querying the decision log.
type DecisionFilter struct {
	Symbol    string
	Timeframe models.Timeframe
	Since     time.Time
	Limit     int
}
