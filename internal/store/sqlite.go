// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"tradepilot/internal/errors"
	"tradepilot/internal/models"
)

// SQLiteLedger implements Ledger using SQLite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLiteLedger creates a new SQLite-backed ledger.
func NewSQLiteLedger(dbPath string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ledger := &SQLiteLedger{db: db}

	if err := ledger.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return ledger, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteLedger) initSchema() error {
	schema := `
	-- Append-only fill log
	CREATE TABLE IF NOT EXISTS fills (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		price REAL NOT NULL,
		fee REAL NOT NULL,
		realized_pnl REAL NOT NULL,
		decision_id TEXT,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol_ts ON fills(symbol, timestamp);

	-- Equity snapshots: one row per symbol per UTC day
	CREATE TABLE IF NOT EXISTS equity_snapshots (
		symbol TEXT NOT NULL,
		day TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		equity REAL NOT NULL,
		realized_today_pnl REAL NOT NULL,
		unrealized_pnl REAL NOT NULL,
		UNIQUE(symbol, day)
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_symbol_ts ON equity_snapshots(symbol, timestamp);

	-- Append-only decision log
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		action TEXT NOT NULL,
		confidence REAL NOT NULL,
		source TEXT NOT NULL,
		rationale TEXT NOT NULL,
		components TEXT,
		timestamp DATETIME NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON decisions(symbol, timestamp);

	-- Candle cache for offline evaluation
	CREATE TABLE IF NOT EXISTS candles (
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		open_time DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume REAL NOT NULL,
		UNIQUE(symbol, timeframe, open_time)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SaveExecution persists a fill and upserts the day's equity snapshot in a
// single transaction.
func (s *SQLiteLedger) SaveExecution(ctx context.Context, fill models.OrderFill, snapshot models.EquitySnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("save_execution", true, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fills (id, symbol, side, quantity, price, fee, realized_pnl, decision_id, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.ID, fill.Symbol, string(fill.Side), fill.Quantity, fill.Price,
		fill.Fee, fill.RealizedPnL, fill.DecisionID, fill.Timestamp.UTC())
	if err != nil {
		return errors.NewPersistenceError("save_fill", true, err)
	}

	day := snapshot.Day().Format("2006-01-02")
	_, err = tx.ExecContext(ctx, `
		INSERT INTO equity_snapshots (symbol, day, timestamp, equity, realized_today_pnl, unrealized_pnl)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, day) DO UPDATE SET
			timestamp = excluded.timestamp,
			equity = excluded.equity,
			realized_today_pnl = excluded.realized_today_pnl,
			unrealized_pnl = excluded.unrealized_pnl`,
		snapshot.Symbol, day, snapshot.Timestamp.UTC(), snapshot.Equity,
		snapshot.RealizedTodayPnL, snapshot.UnrealizedPnL)
	if err != nil {
		return errors.NewPersistenceError("save_snapshot", true, err)
	}

	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("save_execution", true, err)
	}
	return nil
}

// Fills returns fills for a symbol at or after since, oldest first.
func (s *SQLiteLedger) Fills(ctx context.Context, symbol string, since time.Time) ([]models.OrderFill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, side, quantity, price, fee, realized_pnl, decision_id, timestamp
		FROM fills
		WHERE symbol = ? AND timestamp >= ?
		ORDER BY timestamp ASC, created_at ASC`,
		symbol, since.UTC())
	if err != nil {
		return nil, errors.NewPersistenceError("query_fills", true, err)
	}
	defer rows.Close()

	var fills []models.OrderFill
	for rows.Next() {
		var f models.OrderFill
		var side string
		if err := rows.Scan(&f.ID, &f.Symbol, &side, &f.Quantity, &f.Price, &f.Fee, &f.RealizedPnL, &f.DecisionID, &f.Timestamp); err != nil {
			return nil, errors.NewPersistenceError("scan_fill", false, err)
		}
		f.Side = models.OrderSide(side)
		fills = append(fills, f)
	}
	return fills, rows.Err()
}

// LatestSnapshot returns the most recent equity snapshot for a symbol.
func (s *SQLiteLedger) LatestSnapshot(ctx context.Context, symbol string) (*models.EquitySnapshot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT symbol, timestamp, equity, realized_today_pnl, unrealized_pnl
		FROM equity_snapshots
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT 1`, symbol)

	var snap models.EquitySnapshot
	err := row.Scan(&snap.Symbol, &snap.Timestamp, &snap.Equity, &snap.RealizedTodayPnL, &snap.UnrealizedPnL)
	if err == sql.ErrNoRows {
		return nil, errors.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, errors.NewPersistenceError("query_snapshot", true, err)
	}
	return &snap, nil
}

// Snapshots returns the equity time series for a symbol, oldest first.
func (s *SQLiteLedger) Snapshots(ctx context.Context, symbol string, from, to time.Time) ([]models.EquitySnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, timestamp, equity, realized_today_pnl, unrealized_pnl
		FROM equity_snapshots
		WHERE symbol = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`,
		symbol, from.UTC(), to.UTC())
	if err != nil {
		return nil, errors.NewPersistenceError("query_snapshots", true, err)
	}
	defer rows.Close()

	var snaps []models.EquitySnapshot
	for rows.Next() {
		var snap models.EquitySnapshot
		if err := rows.Scan(&snap.Symbol, &snap.Timestamp, &snap.Equity, &snap.RealizedTodayPnL, &snap.UnrealizedPnL); err != nil {
			return nil, errors.NewPersistenceError("scan_snapshot", false, err)
		}
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}

// SaveDecision appends a final decision to the audit log.
func (s *SQLiteLedger) SaveDecision(ctx context.Context, decision models.FinalDecision) error {
	components, err := json.Marshal(decision.Components)
	if err != nil {
		return errors.NewPersistenceError("marshal_components", false, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, symbol, timeframe, action, confidence, source, rationale, components, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		decision.ID, decision.Symbol, string(decision.Timeframe), string(decision.Action),
		decision.Confidence, string(decision.Source), decision.Rationale,
		string(components), decision.Timestamp.UTC())
	if err != nil {
		return errors.NewPersistenceError("save_decision", true, err)
	}
	return nil
}

// Decisions returns logged decisions matching the filter, oldest first.
func (s *SQLiteLedger) Decisions(ctx context.Context, filter DecisionFilter) ([]models.FinalDecision, error) {
	query := `
		SELECT id, symbol, timeframe, action, confidence, source, rationale, components, timestamp
		FROM decisions
		WHERE timestamp >= ?`
	args := []interface{}{filter.Since.UTC()}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Timeframe != "" {
		query += " AND timeframe = ?"
		args = append(args, string(filter.Timeframe))
	}
	query += " ORDER BY timestamp ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.NewPersistenceError("query_decisions", true, err)
	}
	defer rows.Close()

	var decisions []models.FinalDecision
	for rows.Next() {
		var d models.FinalDecision
		var timeframe, action, source, components string
		if err := rows.Scan(&d.ID, &d.Symbol, &timeframe, &action, &d.Confidence, &source, &d.Rationale, &components, &d.Timestamp); err != nil {
			return nil, errors.NewPersistenceError("scan_decision", false, err)
		}
		d.Timeframe = models.Timeframe(timeframe)
		d.Action = models.Direction(action)
		d.Source = models.DecisionSource(source)
		if components != "" {
			if err := json.Unmarshal([]byte(components), &d.Components); err != nil {
				return nil, errors.NewPersistenceError("unmarshal_components", false, err)
			}
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// SaveCandles upserts candles into the offline cache. Duplicate open times
// are overwritten so re-importing a CSV is idempotent.
func (s *SQLiteLedger) SaveCandles(ctx context.Context, symbol string, timeframe models.Timeframe, candles []models.Candle) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewPersistenceError("save_candles", true, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO candles (symbol, timeframe, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, open_time) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume`)
	if err != nil {
		return errors.NewPersistenceError("save_candles", true, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(timeframe), c.OpenTime.UTC(),
			c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
			return errors.NewPersistenceError("save_candles", true, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewPersistenceError("save_candles", true, err)
	}
	return nil
}

// Candles returns cached candles for a symbol and timeframe, oldest first.
func (s *SQLiteLedger) Candles(ctx context.Context, symbol string, timeframe models.Timeframe) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT open_time, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ?
		ORDER BY open_time ASC`,
		symbol, string(timeframe))
	if err != nil {
		return nil, errors.NewPersistenceError("query_candles", true, err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.OpenTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, errors.NewPersistenceError("scan_candle", false, err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

// Ensure SQLiteLedger implements Ledger
var _ Ledger = (*SQLiteLedger)(nil)
