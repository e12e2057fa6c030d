// Package decision parses, validates, and executes the per-symbol decision
// documents returned by the external reasoning service.
//
// The loosely-typed external JSON is schema-checked into a Raw value first;
// no field is trusted unchecked. Validation then either applies the
// decision through the ledger or rejects it — a rejected decision never
// mutates any state, and every decision (accepted or not) produces exactly
// one DecisionRecord.
package decision

import (
	"encoding/json"
	"errors"
	"log"
)

// ErrInvalidDecision is returned when a decision fails validation
// (unknown type, bad side, leverage out of range, inconsistent stops).
var ErrInvalidDecision = errors.New("invalid decision")

// Raw is the schema-checked but not yet validated decision for one symbol.
type Raw struct {
	Decision     string  `json:"decision"`
	Side         string  `json:"side,omitempty"`
	Quantity     float64 `json:"quantity,omitempty"`
	StopLoss     float64 `json:"stop_loss,omitempty"`
	ProfitTarget float64 `json:"profit_target,omitempty"`
	Leverage     float64 `json:"leverage,omitempty"`
	Reasoning    string  `json:"reasoning"`
	Confidence   float64 `json:"confidence"`
}

// HoldAll builds a synthetic hold document for every symbol, used when the
// decision service times out or fails (degraded mode).
func HoldAll(symbols []string, reasoning string) map[string]Raw {
	out := make(map[string]Raw, len(symbols))
	for _, s := range symbols {
		out[s] = Raw{Decision: "hold", Reasoning: reasoning, Confidence: 0}
	}
	return out
}

// ParseResponse schema-checks the raw service response. Every configured
// symbol gets exactly one entry: symbols the service skipped, returned
// undecodable JSON for, or tagged with an out-of-range confidence are
// downgraded to hold with the parse error logged. Unknown decision type
// strings survive parsing and are rejected by the validator so the
// rejection is auditable.
func ParseResponse(resp map[string]json.RawMessage, symbols []string) map[string]Raw {
	out := make(map[string]Raw, len(symbols))
	for _, sym := range symbols {
		blob, ok := resp[sym]
		if !ok {
			out[sym] = Raw{Decision: "hold", Reasoning: "no decision returned for symbol"}
			continue
		}

		var raw Raw
		if err := json.Unmarshal(blob, &raw); err != nil {
			log.Printf("[decision] %s: undecodable decision JSON (%v), holding", sym, err)
			out[sym] = Raw{Decision: "hold", Reasoning: "schema violation: " + err.Error()}
			continue
		}
		if raw.Confidence < 0 || raw.Confidence > 1 {
			log.Printf("[decision] %s: confidence %v out of [0,1], holding", sym, raw.Confidence)
			out[sym] = Raw{Decision: "hold", Reasoning: "schema violation: confidence out of range"}
			continue
		}
		out[sym] = raw
	}
	return out
}
