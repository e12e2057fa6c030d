// Package guard enforces stop-loss/take-profit levels on open positions,
// independently of the decision service.
package guard

import (
	"log"

	"llm-crypto-trader/internal/ledger"
	"llm-crypto-trader/internal/model"
)

// Close reasons recorded on guardrail-triggered trades.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
)

// Closed describes one position the evaluator closed.
type Closed struct {
	Symbol string
	Side   model.Side
	Reason string
	Trade  model.TradeRecord
}

// Evaluate scans open positions against current prices and closes every
// triggered one at its stop/target level. Positions are visited in the
// ledger's stable order; positions whose symbol has no fetched price this
// cycle are skipped. Runs before the decision step so the decision service
// never observes a position the guardrails already closed.
func Evaluate(l *ledger.Ledger, prices map[string]float64) []Closed {
	var closed []Closed
	for _, pos := range l.OpenPositions() {
		price, ok := prices[pos.Symbol]
		if !ok {
			log.Printf("[guard] no price for %s this cycle, skipping", pos.Symbol)
			continue
		}

		exitPrice, reason := trigger(pos, price)
		if reason == "" {
			continue
		}

		rec, err := l.ClosePosition(pos.Symbol, pos.Side, exitPrice, reason)
		if err != nil {
			// Should be unreachable: positions come straight from the ledger.
			log.Printf("[guard] close %s %s failed: %v", pos.Symbol, pos.Side, err)
			continue
		}
		closed = append(closed, Closed{Symbol: pos.Symbol, Side: pos.Side, Reason: reason, Trade: rec})
	}
	return closed
}

// trigger returns the fill level and reason if the position must close.
// Fills happen at the stop/target level itself, not the observed price.
func trigger(pos model.Position, price float64) (float64, string) {
	if pos.Side == model.Long {
		if price <= pos.StopLoss {
			return pos.StopLoss, ReasonStopLoss
		}
		if price >= pos.TakeProfit {
			return pos.TakeProfit, ReasonTakeProfit
		}
		return 0, ""
	}
	// short
	if price >= pos.StopLoss {
		return pos.StopLoss, ReasonStopLoss
	}
	if price <= pos.TakeProfit {
		return pos.TakeProfit, ReasonTakeProfit
	}
	return 0, ""
}
