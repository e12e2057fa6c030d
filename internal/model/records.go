package model

import "time"

// TradeAction distinguishes the two trade audit events.
type TradeAction string

const (
	ActionOpen  TradeAction = "open"
	ActionClose TradeAction = "close"
)

// TradeRecord is an immutable audit entry appended for every ledger
// mutation. PnL is populated on close only.
type TradeRecord struct {
	Timestamp time.Time   `json:"timestamp"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Action    TradeAction `json:"action"`
	Quantity  float64     `json:"quantity"`
	Price     float64     `json:"price"`
	Fee       float64     `json:"fee"`
	PnL       float64     `json:"pnl"`
	Reason    string      `json:"reason"`
}

// DecisionType is the kind of action the decision service proposed.
type DecisionType string

const (
	DecisionEntry DecisionType = "entry"
	DecisionClose DecisionType = "close"
	DecisionHold  DecisionType = "hold"
)

// DecisionRecord is an immutable audit entry logged for every decision the
// service returns, including rejected ones. A rejected decision carries the
// rejection reason and never corresponds to a ledger mutation.
type DecisionRecord struct {
	Timestamp       time.Time    `json:"timestamp"`
	Symbol          string       `json:"symbol"`
	Decision        DecisionType `json:"decision_type"`
	Side            Side         `json:"side,omitempty"`
	Quantity        float64      `json:"quantity,omitempty"`
	Leverage        float64      `json:"leverage,omitempty"`
	StopLoss        float64      `json:"stop_loss,omitempty"`
	TakeProfit      float64      `json:"take_profit,omitempty"`
	Confidence      float64      `json:"confidence"`
	Reasoning       string       `json:"reasoning"`
	Accepted        bool         `json:"accepted"`
	RejectionReason string       `json:"rejection_reason,omitempty"`
}
