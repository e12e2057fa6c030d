// Package sqlite persists cycle snapshots and serves dashboard reads.
//
// One cycle produces one snapshot: portfolio state, trades, decisions,
// market indicator rows, and the active position set. The whole snapshot
// commits in a single transaction so the tables never disagree about
// which cycle they reflect.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"llm-crypto-trader/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/trading.db"
}

// Writer is the single-goroutine snapshot writer. Only the cycle loop
// calls it.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New opens the database with WAL mode and creates the schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single-writer connection pool
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS portfolio_state (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			ts               INTEGER NOT NULL,
			cash_balance     REAL    NOT NULL,
			total_equity     REAL    NOT NULL,
			total_return_pct REAL    NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_portfolio_ts ON portfolio_state (ts);

		CREATE TABLE IF NOT EXISTS trade_history (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			ts        INTEGER NOT NULL,
			symbol    TEXT    NOT NULL,
			side      TEXT    NOT NULL,
			action    TEXT    NOT NULL,
			quantity  REAL    NOT NULL,
			price     REAL    NOT NULL,
			fee       REAL    NOT NULL,
			pnl       REAL    NOT NULL,
			reason    TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trade_history (symbol, ts);

		CREATE TABLE IF NOT EXISTS ai_decisions (
			id               INTEGER PRIMARY KEY AUTOINCREMENT,
			ts               INTEGER NOT NULL,
			symbol           TEXT    NOT NULL,
			decision_type    TEXT    NOT NULL,
			side             TEXT,
			quantity         REAL,
			leverage         REAL,
			stop_loss        REAL,
			take_profit      REAL,
			confidence       REAL,
			reasoning        TEXT,
			accepted         INTEGER NOT NULL,
			rejection_reason TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_symbol ON ai_decisions (symbol, ts);

		CREATE TABLE IF NOT EXISTS market_snapshots (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			ts           INTEGER NOT NULL,
			symbol       TEXT    NOT NULL,
			price        REAL    NOT NULL,
			ema20        REAL,
			rsi          REAL,
			macd         REAL,
			macd_signal  REAL,
			macd_hist    REAL,
			funding_rate REAL
		);
		CREATE INDEX IF NOT EXISTS idx_market_symbol ON market_snapshots (symbol, ts);

		CREATE TABLE IF NOT EXISTS active_positions (
			symbol         TEXT NOT NULL,
			side           TEXT NOT NULL,
			quantity       REAL NOT NULL,
			entry_price    REAL NOT NULL,
			leverage       REAL NOT NULL,
			margin         REAL NOT NULL,
			stop_loss      REAL NOT NULL,
			take_profit    REAL NOT NULL,
			opened_at      INTEGER NOT NULL,
			current_price  REAL NOT NULL,
			unrealized_pnl REAL NOT NULL,
			updated_at     INTEGER NOT NULL,
			PRIMARY KEY (symbol, side)
		);
	`)
	return err
}

// WriteCycleSnapshot commits one cycle's output atomically. The
// active_positions table is replaced wholesale; the others are append-only.
func (w *Writer) WriteCycleSnapshot(ctx context.Context, snap model.CycleSnapshot) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	ts := snap.Timestamp.Unix()

	if _, err := tx.Exec(
		`INSERT INTO portfolio_state (ts, cash_balance, total_equity, total_return_pct) VALUES (?, ?, ?, ?)`,
		ts, snap.CashBalance, snap.TotalEquity, snap.TotalReturnPct,
	); err != nil {
		return fmt.Errorf("sqlite insert portfolio_state: %w", err)
	}

	for _, t := range snap.Trades {
		if _, err := tx.Exec(
			`INSERT INTO trade_history (ts, symbol, side, action, quantity, price, fee, pnl, reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.Timestamp.Unix(), t.Symbol, t.Side, t.Action, t.Quantity, t.Price, t.Fee, t.PnL, t.Reason,
		); err != nil {
			return fmt.Errorf("sqlite insert trade_history: %w", err)
		}
	}

	for _, d := range snap.Decisions {
		if _, err := tx.Exec(
			`INSERT INTO ai_decisions (ts, symbol, decision_type, side, quantity, leverage, stop_loss, take_profit, confidence, reasoning, accepted, rejection_reason)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			d.Timestamp.Unix(), d.Symbol, d.Decision, d.Side, d.Quantity, d.Leverage,
			d.StopLoss, d.TakeProfit, d.Confidence, d.Reasoning, boolToInt(d.Accepted), d.RejectionReason,
		); err != nil {
			return fmt.Errorf("sqlite insert ai_decisions: %w", err)
		}
	}

	for _, m := range snap.MarketSnapshots {
		ind := m.Indicators
		if _, err := tx.Exec(
			`INSERT INTO market_snapshots (ts, symbol, price, ema20, rsi, macd, macd_signal, macd_hist, funding_rate)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.Timestamp.Unix(), ind.Symbol, ind.Price, ind.EMA20, ind.RSI14,
			ind.MACDLine, ind.MACDSignal, ind.MACDHist, ind.FundingRate,
		); err != nil {
			return fmt.Errorf("sqlite insert market_snapshots: %w", err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM active_positions`); err != nil {
		return fmt.Errorf("sqlite clear active_positions: %w", err)
	}
	for _, ap := range snap.ActivePositions {
		p := ap.Position
		if _, err := tx.Exec(
			`INSERT INTO active_positions (symbol, side, quantity, entry_price, leverage, margin, stop_loss, take_profit, opened_at, current_price, unrealized_pnl, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.Leverage, p.Margin,
			p.StopLoss, p.TakeProfit, p.OpenedAt.Unix(), ap.CurrentPrice, ap.UnrealizedPnL, ts,
		); err != nil {
			return fmt.Errorf("sqlite insert active_positions: %w", err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
