package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"llm-crypto-trader/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access for the dashboard API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// PortfolioState is one portfolio_state row.
type PortfolioState struct {
	Timestamp      time.Time `json:"timestamp"`
	CashBalance    float64   `json:"cash_balance"`
	TotalEquity    float64   `json:"total_equity"`
	TotalReturnPct float64   `json:"total_return_pct"`
}

// LatestState returns the most recent portfolio_state row.
// Returns sql.ErrNoRows before the first cycle has persisted.
func (r *Reader) LatestState() (PortfolioState, error) {
	var s PortfolioState
	var ts int64
	err := r.db.QueryRow(`
		SELECT ts, cash_balance, total_equity, total_return_pct
		FROM portfolio_state ORDER BY id DESC LIMIT 1
	`).Scan(&ts, &s.CashBalance, &s.TotalEquity, &s.TotalReturnPct)
	if err != nil {
		return PortfolioState{}, err
	}
	s.Timestamp = time.Unix(ts, 0).UTC()
	return s, nil
}

// EquityHistory returns up to limit portfolio_state rows, oldest first,
// for the dashboard equity chart.
func (r *Reader) EquityHistory(limit int) ([]PortfolioState, error) {
	rows, err := r.db.Query(`
		SELECT ts, cash_balance, total_equity, total_return_pct FROM (
			SELECT id, ts, cash_balance, total_equity, total_return_pct
			FROM portfolio_state ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query portfolio_state: %w", err)
	}
	defer rows.Close()

	var out []PortfolioState
	for rows.Next() {
		var s PortfolioState
		var ts int64
		if err := rows.Scan(&ts, &s.CashBalance, &s.TotalEquity, &s.TotalReturnPct); err != nil {
			return nil, fmt.Errorf("sqlite scan portfolio_state: %w", err)
		}
		s.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, s)
	}
	return out, rows.Err()
}

// Trades returns the newest trade_history rows, newest first.
func (r *Reader) Trades(limit int) ([]model.TradeRecord, error) {
	rows, err := r.db.Query(`
		SELECT ts, symbol, side, action, quantity, price, fee, pnl, reason
		FROM trade_history ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query trade_history: %w", err)
	}
	defer rows.Close()

	var out []model.TradeRecord
	for rows.Next() {
		var t model.TradeRecord
		var ts int64
		var reason sql.NullString
		if err := rows.Scan(&ts, &t.Symbol, &t.Side, &t.Action, &t.Quantity, &t.Price, &t.Fee, &t.PnL, &reason); err != nil {
			return nil, fmt.Errorf("sqlite scan trade_history: %w", err)
		}
		t.Timestamp = time.Unix(ts, 0).UTC()
		t.Reason = reason.String
		out = append(out, t)
	}
	return out, rows.Err()
}

// Decisions returns the newest ai_decisions rows, newest first.
func (r *Reader) Decisions(limit int) ([]model.DecisionRecord, error) {
	rows, err := r.db.Query(`
		SELECT ts, symbol, decision_type, side, quantity, leverage, stop_loss, take_profit, confidence, reasoning, accepted, rejection_reason
		FROM ai_decisions ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ai_decisions: %w", err)
	}
	defer rows.Close()

	var out []model.DecisionRecord
	for rows.Next() {
		var d model.DecisionRecord
		var ts int64
		var accepted int
		var side, reasoning, rejection sql.NullString
		var qty, lev, sl, tp, conf sql.NullFloat64
		if err := rows.Scan(&ts, &d.Symbol, &d.Decision, &side, &qty, &lev, &sl, &tp, &conf, &reasoning, &accepted, &rejection); err != nil {
			return nil, fmt.Errorf("sqlite scan ai_decisions: %w", err)
		}
		d.Timestamp = time.Unix(ts, 0).UTC()
		d.Side = model.Side(side.String)
		d.Quantity = qty.Float64
		d.Leverage = lev.Float64
		d.StopLoss = sl.Float64
		d.TakeProfit = tp.Float64
		d.Confidence = conf.Float64
		d.Reasoning = reasoning.String
		d.Accepted = accepted != 0
		d.RejectionReason = rejection.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// MarketHistory returns indicator rows for one symbol, oldest first.
func (r *Reader) MarketHistory(symbol string, limit int) ([]model.MarketSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT ts, symbol, price, ema20, rsi, macd, macd_signal, macd_hist, funding_rate FROM (
			SELECT id, ts, symbol, price, ema20, rsi, macd, macd_signal, macd_hist, funding_rate
			FROM market_snapshots WHERE symbol = ? ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query market_snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.MarketSnapshot
	for rows.Next() {
		var m model.MarketSnapshot
		var ts int64
		ind := &m.Indicators
		if err := rows.Scan(&ts, &ind.Symbol, &ind.Price, &ind.EMA20, &ind.RSI14,
			&ind.MACDLine, &ind.MACDSignal, &ind.MACDHist, &ind.FundingRate); err != nil {
			return nil, fmt.Errorf("sqlite scan market_snapshots: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarketOverview returns the latest indicator row per symbol.
func (r *Reader) MarketOverview() ([]model.MarketSnapshot, error) {
	rows, err := r.db.Query(`
		SELECT ts, symbol, price, ema20, rsi, macd, macd_signal, macd_hist, funding_rate
		FROM market_snapshots
		WHERE id IN (SELECT MAX(id) FROM market_snapshots GROUP BY symbol)
		ORDER BY symbol ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query market overview: %w", err)
	}
	defer rows.Close()

	var out []model.MarketSnapshot
	for rows.Next() {
		var m model.MarketSnapshot
		var ts int64
		ind := &m.Indicators
		if err := rows.Scan(&ts, &ind.Symbol, &ind.Price, &ind.EMA20, &ind.RSI14,
			&ind.MACDLine, &ind.MACDSignal, &ind.MACDHist, &ind.FundingRate); err != nil {
			return nil, fmt.Errorf("sqlite scan market overview: %w", err)
		}
		m.Timestamp = time.Unix(ts, 0).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

// ActivePositions returns the latest persisted open position set.
func (r *Reader) ActivePositions() ([]model.ActivePosition, error) {
	rows, err := r.db.Query(`
		SELECT symbol, side, quantity, entry_price, leverage, margin, stop_loss, take_profit, opened_at, current_price, unrealized_pnl, updated_at
		FROM active_positions ORDER BY symbol ASC, side ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query active_positions: %w", err)
	}
	defer rows.Close()

	var out []model.ActivePosition
	for rows.Next() {
		var ap model.ActivePosition
		p := &ap.Position
		var openedAt, updatedAt int64
		if err := rows.Scan(&p.Symbol, &p.Side, &p.Quantity, &p.EntryPrice, &p.Leverage, &p.Margin,
			&p.StopLoss, &p.TakeProfit, &openedAt, &ap.CurrentPrice, &ap.UnrealizedPnL, &updatedAt); err != nil {
			return nil, fmt.Errorf("sqlite scan active_positions: %w", err)
		}
		p.OpenedAt = time.Unix(openedAt, 0).UTC()
		ap.Timestamp = time.Unix(updatedAt, 0).UTC()
		out = append(out, ap)
	}
	return out, rows.Err()
}

// Performance aggregates closed-trade statistics for the dashboard.
type Performance struct {
	TotalTrades    int     `json:"total_trades"`
	ClosedTrades   int     `json:"closed_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	TotalPnL       float64 `json:"total_pnl"`
	TotalFees      float64 `json:"total_fees"`
	BestTrade      float64 `json:"best_trade"`
	WorstTrade     float64 `json:"worst_trade"`
	ProfitFactor   float64 `json:"profit_factor"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
}

// PerformanceStats computes win rate and PnL aggregates over trade_history.
// Only close events carry realized pnl; fees sum over all events.
func (r *Reader) PerformanceStats() (Performance, error) {
	var p Performance
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN action = 'close' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'close' AND pnl > 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'close' AND pnl <= 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN action = 'close' THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(fee), 0),
			COALESCE(MAX(CASE WHEN action = 'close' THEN pnl END), 0),
			COALESCE(MIN(CASE WHEN action = 'close' THEN pnl END), 0)
		FROM trade_history
	`).Scan(&p.TotalTrades, &p.ClosedTrades, &p.WinningTrades, &p.LosingTrades,
		&p.TotalPnL, &p.TotalFees, &p.BestTrade, &p.WorstTrade)
	if err != nil {
		return Performance{}, fmt.Errorf("sqlite performance stats: %w", err)
	}
	if p.ClosedTrades > 0 {
		p.WinRatePct = float64(p.WinningTrades) / float64(p.ClosedTrades) * 100
	}

	var grossProfit, grossLoss float64
	err = r.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN pnl > 0 THEN pnl ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN pnl < 0 THEN -pnl ELSE 0 END), 0)
		FROM trade_history WHERE action = 'close'
	`).Scan(&grossProfit, &grossLoss)
	if err != nil {
		return Performance{}, fmt.Errorf("sqlite performance stats: %w", err)
	}
	if grossLoss > 0 {
		p.ProfitFactor = grossProfit / grossLoss
	}

	dd, err := r.maxDrawdownPct()
	if err != nil {
		return Performance{}, err
	}
	p.MaxDrawdownPct = dd

	return p, nil
}

// maxDrawdownPct walks the equity curve oldest-first and returns the largest
// peak-to-trough drop as a percentage of the peak.
func (r *Reader) maxDrawdownPct() (float64, error) {
	rows, err := r.db.Query(`SELECT total_equity FROM portfolio_state ORDER BY id ASC`)
	if err != nil {
		return 0, fmt.Errorf("sqlite drawdown: %w", err)
	}
	defer rows.Close()

	var peak, maxDD float64
	for rows.Next() {
		var equity float64
		if err := rows.Scan(&equity); err != nil {
			return 0, fmt.Errorf("sqlite drawdown: %w", err)
		}
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			if dd := (peak - equity) / peak * 100; dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
