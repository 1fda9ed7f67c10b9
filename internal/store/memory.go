package store

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"
	"time"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
)

var errInjectedWrite = stderrors.New("injected write failure")

// MemoryLedger is an in-memory Ledger used by tests and the offline decide
// command. FailNextWrites makes the next writes fail, for exercising the
// rollback path.
type MemoryLedger struct {
	mu         sync.RWMutex
	fills      map[string][]models.OrderFill // by symbol
	snapshots  map[string][]models.EquitySnapshot
	decisions  []models.FinalDecision
	failWrites int
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		fills:     make(map[string][]models.OrderFill),
		snapshots: make(map[string][]models.EquitySnapshot),
	}
}

// FailNextWrites makes the next n write calls return a retryable
// persistence error.
func (m *MemoryLedger) FailNextWrites(n int) {
	m.mu.Lock()
	m.failWrites = n
	m.mu.Unlock()
}

func (m *MemoryLedger) takeFailure() bool {
	if m.failWrites > 0 {
		m.failWrites--
		return true
	}
	return false
}

// SaveExecution implements Ledger.
func (m *MemoryLedger) SaveExecution(ctx context.Context, fill models.OrderFill, snapshot models.EquitySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.takeFailure() {
		return errors.NewPersistenceError("save_execution", true, errInjectedWrite)
	}

	m.fills[fill.Symbol] = append(m.fills[fill.Symbol], fill)

	snaps := m.snapshots[snapshot.Symbol]
	replaced := false
	for i := range snaps {
		if snaps[i].SameDay(snapshot.Timestamp) {
			snaps[i] = snapshot
			replaced = true
			break
		}
	}
	if !replaced {
		snaps = append(snaps, snapshot)
	}
	m.snapshots[snapshot.Symbol] = snaps
	return nil
}

// Fills implements Ledger.
func (m *MemoryLedger) Fills(ctx context.Context, symbol string, since time.Time) ([]models.OrderFill, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.OrderFill
	for _, f := range m.fills[symbol] {
		if !f.Timestamp.Before(since) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// LatestSnapshot implements Ledger.
func (m *MemoryLedger) LatestSnapshot(ctx context.Context, symbol string) (*models.EquitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snaps := m.snapshots[symbol]
	if len(snaps) == 0 {
		return nil, errors.ErrSnapshotNotFound
	}
	latest := snaps[0]
	for _, s := range snaps[1:] {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}
	return &latest, nil
}

// Snapshots implements Ledger.
func (m *MemoryLedger) Snapshots(ctx context.Context, symbol string, from, to time.Time) ([]models.EquitySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.EquitySnapshot
	for _, s := range m.snapshots[symbol] {
		if !s.Timestamp.Before(from) && !s.Timestamp.After(to) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

// SaveDecision implements Ledger.
func (m *MemoryLedger) SaveDecision(ctx context.Context, decision models.FinalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.takeFailure() {
		return errors.NewPersistenceError("save_decision", true, errInjectedWrite)
	}
	m.decisions = append(m.decisions, decision)
	return nil
}

// Decisions implements Ledger.
func (m *MemoryLedger) Decisions(ctx context.Context, filter DecisionFilter) ([]models.FinalDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.FinalDecision
	for _, d := range m.decisions {
		if filter.Symbol != "" && d.Symbol != filter.Symbol {
			continue
		}
		if filter.Timeframe != "" && d.Timeframe != filter.Timeframe {
			continue
		}
		if d.Timestamp.Before(filter.Since) {
			continue
		}
		out = append(out, d)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// Close implements Ledger.
func (m *MemoryLedger) Close() error {
	return nil
}

// Ensure MemoryLedger implements Ledger
var _ Ledger = (*MemoryLedger)(nil)
