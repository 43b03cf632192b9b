package recorder

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"ai-grid-trader/internal/interfaces"
	"ai-grid-trader/internal/logger"
	"ai-grid-trader/internal/types"
)

// SQLiteRecorder mirrors decision records and grid events into SQLite so
// they can be queried without parsing JSONL.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

var _ interfaces.DecisionSink = (*SQLiteRecorder)(nil)

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(ctx context.Context, dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while the bot writes.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info(ctx, "SQLite recorder opened", "path", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp    INTEGER NOT NULL,
			cycle_id     TEXT,
			symbol       TEXT NOT NULL,
			price        REAL,
			trend        TEXT,
			decision     TEXT,
			confidence   INTEGER,
			reason       TEXT,
			degraded     INTEGER,
			model        TEXT,
			outcome      TEXT,
			cached       INTEGER,
			gate_pass    INTEGER,
			gate_reason  TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_symbol_ts ON decisions(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS grid_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			cycle_id    TEXT,
			symbol      TEXT NOT NULL,
			kind        TEXT NOT NULL,
			rung        INTEGER,
			shares      INTEGER,
			price       REAL,
			fill_price  REAL,
			realized    REAL,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grid_events_symbol_ts ON grid_events(symbol, timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordDecision(ctx context.Context, rec types.DecisionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ts := time.Now().Unix()
	if t, err := time.Parse(time.RFC3339, rec.Time); err == nil {
		ts = t.Unix()
	}
	_, err := r.db.ExecContext(ctx, `INSERT INTO decisions
		(timestamp, cycle_id, symbol, price, trend, decision, confidence, reason,
		 degraded, model, outcome, cached, gate_pass, gate_reason)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		ts, rec.CycleID, rec.Symbol, rec.Price, string(rec.Trend),
		string(rec.AI.Decision), rec.AI.Confidence, rec.AI.Reason,
		rec.AI.Degraded, rec.AI.Model, string(rec.Outcome), rec.Cached,
		rec.RiskGate.Allowed, rec.RiskGate.Reason,
	)
	return err
}

func (r *SQLiteRecorder) RecordGridEvent(ctx context.Context, cycleID string, ev types.GridEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.ExecContext(ctx, `INSERT INTO grid_events
		(timestamp, cycle_id, symbol, kind, rung, shares, price, fill_price, realized, note)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), cycleID, ev.Symbol, string(ev.Kind), ev.Rung,
		ev.Shares, ev.Price, ev.FillPrice, ev.Realized, ev.Note,
	)
	return err
}

// RealizedBySymbol sums realised P&L of releases since t.
func (r *SQLiteRecorder) RealizedBySymbol(ctx context.Context, since time.Time) (map[string]float64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT symbol, SUM(realized) FROM grid_events WHERE kind = ? AND timestamp >= ? GROUP BY symbol`,
		string(types.GridRelease), since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var sym string
		var sum float64
		if err := rows.Scan(&sym, &sum); err != nil {
			return nil, err
		}
		out[sym] = sum
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	logger.Info(context.Background(), "Closing SQLite recorder")
	return r.db.Close()
}
