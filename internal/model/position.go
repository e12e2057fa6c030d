package model

import "time"

// Side is the direction of a perpetual position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool { return s == Long || s == Short }

// PositionKey identifies an open position. At most one position may be open
// per (symbol, side); long and short on the same symbol may coexist.
type PositionKey struct {
	Symbol string
	Side   Side
}

// Position represents a single open perpetual position.
// A position is created whole by a validated entry and removed whole by a
// close; it is never resized or partially closed.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	Leverage   float64   `json:"leverage"`
	Margin     float64   `json:"margin"`
	EntryFee   float64   `json:"entry_fee"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Key returns the position's identity key.
func (p *Position) Key() PositionKey {
	return PositionKey{Symbol: p.Symbol, Side: p.Side}
}

// UnrealizedPnL computes the mark-to-market profit/loss at the given price.
func (p *Position) UnrealizedPnL(currentPrice float64) float64 {
	if p.Side == Long {
		return (currentPrice - p.EntryPrice) * p.Quantity
	}
	return (p.EntryPrice - currentPrice) * p.Quantity
}
