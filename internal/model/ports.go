package model

import (
	"context"
	"encoding/json"
	"time"
)

// ── Collaborator Port Interfaces ──
// These interfaces decouple the cycle engine from concrete collaborators
// (exchange REST, LLM service, SQLite, Redis). Each implementation
// satisfies one of these ports; tests substitute fakes.

// MarketData fetches candles, tickers, and funding rates from an exchange.
type MarketData interface {
	// GetCandles returns up to limit candles ordered oldest first.
	GetCandles(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)

	// GetTicker returns the current traded price for a symbol.
	GetTicker(ctx context.Context, symbol string) (float64, error)

	// GetFundingRate returns the latest perpetual funding rate for a symbol.
	GetFundingRate(ctx context.Context, symbol string) (float64, error)
}

// PositionSummary is the view of an open position sent to the decision
// service. The service never sees stop/target levels it did not set.
type PositionSummary struct {
	Side          Side    `json:"side"`
	Quantity      float64 `json:"quantity"`
	EntryPrice    float64 `json:"entry_price"`
	Leverage      float64 `json:"leverage"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
}

// DecisionRequest is the document sent to the decision service each cycle.
type DecisionRequest struct {
	CurrentTime    time.Time                  `json:"current_time"`
	TotalEquity    float64                    `json:"total_equity"`
	TotalReturnPct float64                    `json:"total_return_pct"`
	MarketData     map[string]IndicatorSet    `json:"market_data"`
	Positions      map[string]PositionSummary `json:"positions"`
}

// DecisionService solicits a per-symbol decision document from the external
// reasoning service. The returned map is keyed by symbol; each value is the
// raw, untrusted JSON for that symbol, schema-checked downstream.
type DecisionService interface {
	Decide(ctx context.Context, req DecisionRequest, systemPrompt string) (map[string]json.RawMessage, error)
}

// MarketSnapshot is one persisted market_snapshots row.
type MarketSnapshot struct {
	Timestamp  time.Time    `json:"timestamp"`
	Indicators IndicatorSet `json:"indicators"`
}

// ActivePosition is one persisted active_positions row: an open position
// valued at the cycle's current price.
type ActivePosition struct {
	Timestamp     time.Time `json:"timestamp"`
	Position      Position  `json:"position"`
	CurrentPrice  float64   `json:"current_price"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
}

// CycleSnapshot is everything one cycle produced, persisted as a unit at
// the PERSIST step.
type CycleSnapshot struct {
	Timestamp       time.Time        `json:"timestamp"`
	CashBalance     float64          `json:"cash_balance"`
	TotalEquity     float64          `json:"total_equity"`
	TotalReturnPct  float64          `json:"total_return_pct"`
	Trades          []TradeRecord    `json:"trades"`
	Decisions       []DecisionRecord `json:"decisions"`
	MarketSnapshots []MarketSnapshot `json:"market_snapshots"`
	ActivePositions []ActivePosition `json:"active_positions"`
}

// SnapshotStore persists cycle snapshots. A persistence failure is logged
// by the caller and never blocks the loop.
type SnapshotStore interface {
	WriteCycleSnapshot(ctx context.Context, snap CycleSnapshot) error
	Close() error
}

// ConfigStore manages versioned bot configurations.
type ConfigStore interface {
	// Current returns the newest config version, seeding defaults if empty.
	Current() (BotConfig, error)

	// Save writes fields as a new version with an incremented counter.
	Save(cfg BotConfig) (BotConfig, error)

	// Versions lists stored versions newest first, at most 50.
	Versions() ([]BotConfig, error)

	// Restore copies a stored version's fields into a new version entry.
	// The version counter is never rewound.
	Restore(version int) (BotConfig, error)
}

// LivePublisher pushes the freshest cycle state to dashboard consumers.
// Publishing is best-effort; the snapshot store stays the durable record.
type LivePublisher interface {
	PublishCycle(ctx context.Context, snap CycleSnapshot) error
}
