// Package ledger owns position records and cash/equity bookkeeping for the
// simulated account.
//
// The Ledger is an explicit state object owned by the cycle goroutine; all
// mutation happens sequentially there, so no locking is done here. Equity
// is always derived from cash, open positions, and current prices — it is
// never stored, which prevents drift between stored and derived values.
package ledger

import (
	"fmt"
	"log"
	"sort"
	"time"

	"llm-crypto-trader/internal/model"
)

// FeeRate is the flat taker-average fee applied to notional on both entry
// and exit.
const FeeRate = 0.000275

// Ledger tracks cash, open positions, and the append-only trade audit log.
type Ledger struct {
	cash         float64
	maxPositions int
	positions    map[model.PositionKey]*model.Position
	realizedPnL  float64
	trades       []model.TradeRecord

	now func() time.Time // injectable clock for tests
}

// New creates a Ledger with the given starting cash and position limit.
func New(initialBalance float64, maxPositions int) *Ledger {
	return &Ledger{
		cash:         initialBalance,
		maxPositions: maxPositions,
		positions:    make(map[model.PositionKey]*model.Position),
		now:          time.Now,
	}
}

// CashBalance returns the free cash balance.
func (l *Ledger) CashBalance() float64 { return l.cash }

// SetMaxPositions updates the open-position cap, following a config
// change. Positions already open above a lowered cap stay open; only new
// entries are rejected.
func (l *Ledger) SetMaxPositions(n int) { l.maxPositions = n }

// RealizedPnL returns the cumulative realized profit/loss.
func (l *Ledger) RealizedPnL() float64 { return l.realizedPnL }

// PositionCount returns the number of open positions.
func (l *Ledger) PositionCount() int { return len(l.positions) }

// Position returns a copy of the open position for the given key.
func (l *Ledger) Position(key model.PositionKey) (model.Position, bool) {
	p, ok := l.positions[key]
	if !ok {
		return model.Position{}, false
	}
	return *p, true
}

// OpenPositions returns copies of all open positions in a stable order
// (symbol, then side). Guardrail evaluation depends on this determinism.
func (l *Ledger) OpenPositions() []model.Position {
	keys := make([]model.PositionKey, 0, len(l.positions))
	for k := range l.positions {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Symbol != keys[j].Symbol {
			return keys[i].Symbol < keys[j].Symbol
		}
		return keys[i].Side < keys[j].Side
	})

	out := make([]model.Position, 0, len(keys))
	for _, k := range keys {
		out = append(out, *l.positions[k])
	}
	return out
}

// Trades returns a copy of the full trade audit log, oldest first.
func (l *Ledger) Trades() []model.TradeRecord {
	cp := make([]model.TradeRecord, len(l.trades))
	copy(cp, l.trades)
	return cp
}

// TradeCount returns the number of audit entries recorded so far.
func (l *Ledger) TradeCount() int { return len(l.trades) }

// TradesSince returns audit entries recorded at or after index n.
func (l *Ledger) TradesSince(n int) []model.TradeRecord {
	if n < 0 || n > len(l.trades) {
		return nil
	}
	cp := make([]model.TradeRecord, len(l.trades)-n)
	copy(cp, l.trades[n:])
	return cp
}

// Equity returns cash plus unrealized P&L of all open positions valued at
// the given prices. Fails with ErrMissingPrice if any open position's
// symbol is absent from the map.
func (l *Ledger) Equity(prices map[string]float64) (float64, error) {
	equity := l.cash
	for key, pos := range l.positions {
		price, ok := prices[key.Symbol]
		if !ok {
			return 0, fmt.Errorf("equity %s: %w", key.Symbol, ErrMissingPrice)
		}
		equity += pos.UnrealizedPnL(price)
	}
	return equity, nil
}

// SizeQuantity derives a position size from account risk: the quantity that
// loses equity*riskPct/100 if price moves stopLossPct against the entry.
func SizeQuantity(equity, riskPct, entryPrice, stopLossPct float64) float64 {
	if entryPrice <= 0 || stopLossPct <= 0 {
		return 0
	}
	riskAmount := equity * riskPct / 100
	return riskAmount / (entryPrice * stopLossPct / 100)
}

// OpenPosition opens a new position, debiting margin plus entry fee from
// cash. It fails with ErrDuplicatePosition, ErrPositionLimit, or
// ErrInsufficientMargin without mutating any state.
func (l *Ledger) OpenPosition(symbol string, side model.Side, quantity, entryPrice, leverage, stopLoss, takeProfit float64) (model.TradeRecord, error) {
	key := model.PositionKey{Symbol: symbol, Side: side}
	if _, exists := l.positions[key]; exists {
		return model.TradeRecord{}, fmt.Errorf("open %s %s: %w", symbol, side, ErrDuplicatePosition)
	}
	if len(l.positions) >= l.maxPositions {
		return model.TradeRecord{}, fmt.Errorf("open %s %s: %d positions open: %w", symbol, side, len(l.positions), ErrPositionLimit)
	}

	notional := quantity * entryPrice
	margin := notional / leverage
	fee := notional * FeeRate
	if l.cash-margin-fee < 0 {
		return model.TradeRecord{}, fmt.Errorf("open %s %s: need %.2f margin+fee, have %.2f cash: %w",
			symbol, side, margin+fee, l.cash, ErrInsufficientMargin)
	}

	l.cash -= margin + fee
	l.positions[key] = &model.Position{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: entryPrice,
		Leverage:   leverage,
		Margin:     margin,
		EntryFee:   fee,
		StopLoss:   stopLoss,
		TakeProfit: takeProfit,
		OpenedAt:   l.now(),
	}

	rec := model.TradeRecord{
		Timestamp: l.now(),
		Symbol:    symbol,
		Side:      side,
		Action:    model.ActionOpen,
		Quantity:  quantity,
		Price:     entryPrice,
		Fee:       fee,
	}
	l.trades = append(l.trades, rec)

	log.Printf("[ledger] opened %s %s qty=%v @ %v lev=%v margin=%.2f fee=%.4f",
		symbol, side, quantity, entryPrice, leverage, margin, fee)
	return rec, nil
}

// ClosePosition closes the position for (symbol, side) at exitPrice. The
// realized P&L is the unrealized P&L at exit minus the closing fee; margin
// plus realized P&L is credited back to cash. Fails with
// ErrPositionNotFound; the caller must not close the same key twice in one
// cycle.
func (l *Ledger) ClosePosition(symbol string, side model.Side, exitPrice float64, reason string) (model.TradeRecord, error) {
	key := model.PositionKey{Symbol: symbol, Side: side}
	pos, ok := l.positions[key]
	if !ok {
		return model.TradeRecord{}, fmt.Errorf("close %s %s: %w", symbol, side, ErrPositionNotFound)
	}

	fee := pos.Quantity * exitPrice * FeeRate
	pnl := pos.UnrealizedPnL(exitPrice) - fee

	l.cash += pos.Margin + pnl
	l.realizedPnL += pnl
	delete(l.positions, key)

	rec := model.TradeRecord{
		Timestamp: l.now(),
		Symbol:    symbol,
		Side:      side,
		Action:    model.ActionClose,
		Quantity:  pos.Quantity,
		Price:     exitPrice,
		Fee:       fee,
		PnL:       pnl,
		Reason:    reason,
	}
	l.trades = append(l.trades, rec)

	log.Printf("[ledger] closed %s %s qty=%v @ %v pnl=%.4f reason=%s",
		symbol, side, pos.Quantity, exitPrice, pnl, reason)
	return rec, nil
}
