package decision

import (
	"fmt"
	"time"

	"llm-crypto-trader/internal/ledger"
	"llm-crypto-trader/internal/model"
)

// ReasonAIDecision is recorded on trades closed by an accepted close
// decision.
const ReasonAIDecision = "ai_decision"

// Executor validates decisions and applies accepted ones to the ledger.
type Executor struct {
	ledger *ledger.Ledger
	cfg    model.BotConfig

	now func() time.Time
}

// NewExecutor creates an Executor bound to a ledger and the active config.
func NewExecutor(l *ledger.Ledger, cfg model.BotConfig) *Executor {
	return &Executor{ledger: l, cfg: cfg, now: time.Now}
}

// Execute applies one decision per configured symbol, in configured symbol
// order. equity is the account equity at the top of the step, used for
// risk-based sizing when a decision omits quantity. Returns one
// DecisionRecord per symbol.
func (e *Executor) Execute(decisions map[string]Raw, prices map[string]float64, equity float64) []model.DecisionRecord {
	records := make([]model.DecisionRecord, 0, len(e.cfg.Symbols))
	for _, sym := range e.cfg.Symbols {
		raw, ok := decisions[sym]
		if !ok {
			raw = Raw{Decision: "hold", Reasoning: "no decision for symbol"}
		}
		records = append(records, e.executeOne(sym, raw, prices, equity))
	}
	return records
}

func (e *Executor) executeOne(sym string, raw Raw, prices map[string]float64, equity float64) model.DecisionRecord {
	rec := model.DecisionRecord{
		Timestamp:  e.now(),
		Symbol:     sym,
		Decision:   model.DecisionType(raw.Decision),
		Side:       model.Side(raw.Side),
		Quantity:   raw.Quantity,
		Leverage:   raw.Leverage,
		StopLoss:   raw.StopLoss,
		TakeProfit: raw.ProfitTarget,
		Confidence: raw.Confidence,
		Reasoning:  raw.Reasoning,
	}

	var err error
	switch model.DecisionType(raw.Decision) {
	case model.DecisionHold:
		rec.Accepted = true
		return rec
	case model.DecisionEntry:
		err = e.applyEntry(&rec, sym, raw, prices, equity)
	case model.DecisionClose:
		err = e.applyClose(&rec, sym, raw, prices)
	default:
		err = fmt.Errorf("unknown decision type %q: %w", raw.Decision, ErrInvalidDecision)
	}

	if err != nil {
		rec.Accepted = false
		rec.RejectionReason = err.Error()
		return rec
	}
	rec.Accepted = true
	return rec
}

// applyEntry validates an entry decision in order (side, quantity,
// leverage, stop consistency) and delegates to the ledger, surfacing its
// failures unchanged.
func (e *Executor) applyEntry(rec *model.DecisionRecord, sym string, raw Raw, prices map[string]float64, equity float64) error {
	side := model.Side(raw.Side)
	if !side.Valid() {
		return fmt.Errorf("entry side %q: %w", raw.Side, ErrInvalidDecision)
	}

	price, ok := prices[sym]
	if !ok || price <= 0 {
		return fmt.Errorf("entry %s: no current price: %w", sym, ErrInvalidDecision)
	}

	// Explicit quantity wins; the risk-based sizing formula only fills gaps.
	qty := raw.Quantity
	if qty == 0 {
		qty = ledger.SizeQuantity(equity, e.cfg.RiskPerTradePct, price, e.cfg.StopLossPct)
		rec.Quantity = qty
	}
	if qty <= 0 {
		return fmt.Errorf("entry quantity %v: %w", qty, ErrInvalidDecision)
	}

	lev := raw.Leverage
	if lev == 0 {
		lev = 1
		rec.Leverage = lev
	}
	if lev < 1 || lev > e.cfg.MaxLeverage {
		return fmt.Errorf("leverage %v outside [1, %v]: %w", lev, e.cfg.MaxLeverage, ErrInvalidDecision)
	}

	stop, target := raw.StopLoss, raw.ProfitTarget
	if stop == 0 {
		stop = defaultStop(side, price, e.cfg.StopLossPct)
		rec.StopLoss = stop
	}
	if target == 0 {
		target = defaultTarget(side, price, e.cfg.TakeProfitPct)
		rec.TakeProfit = target
	}
	if err := checkStops(side, price, stop, target); err != nil {
		return err
	}

	_, err := e.ledger.OpenPosition(sym, side, qty, price, lev, stop, target)
	return err
}

// applyClose resolves the position key and delegates to the ledger. A
// decision without a side closes the symbol's only open position; with
// both directions open the side is required.
func (e *Executor) applyClose(rec *model.DecisionRecord, sym string, raw Raw, prices map[string]float64) error {
	side := model.Side(raw.Side)
	if raw.Side != "" && !side.Valid() {
		return fmt.Errorf("close side %q: %w", raw.Side, ErrInvalidDecision)
	}
	if raw.Side == "" {
		resolved, err := e.resolveSide(sym)
		if err != nil {
			return err
		}
		side = resolved
		rec.Side = side
	}

	price, ok := prices[sym]
	if !ok || price <= 0 {
		return fmt.Errorf("close %s: no current price: %w", sym, ErrInvalidDecision)
	}

	_, err := e.ledger.ClosePosition(sym, side, price, ReasonAIDecision)
	return err
}

func (e *Executor) resolveSide(sym string) (model.Side, error) {
	_, hasLong := e.ledger.Position(model.PositionKey{Symbol: sym, Side: model.Long})
	_, hasShort := e.ledger.Position(model.PositionKey{Symbol: sym, Side: model.Short})
	switch {
	case hasLong && hasShort:
		return "", fmt.Errorf("close %s: both sides open, side required: %w", sym, ErrInvalidDecision)
	case hasLong:
		return model.Long, nil
	case hasShort:
		return model.Short, nil
	default:
		return "", fmt.Errorf("close %s: %w", sym, ledger.ErrPositionNotFound)
	}
}

func checkStops(side model.Side, price, stop, target float64) error {
	if side == model.Long {
		if !(stop < price && price < target) {
			return fmt.Errorf("long stops inconsistent: need stop %v < price %v < target %v: %w",
				stop, price, target, ErrInvalidDecision)
		}
		return nil
	}
	if !(target < price && price < stop) {
		return fmt.Errorf("short stops inconsistent: need target %v < price %v < stop %v: %w",
			target, price, stop, ErrInvalidDecision)
	}
	return nil
}

func defaultStop(side model.Side, price, pct float64) float64 {
	if side == model.Long {
		return price * (1 - pct/100)
	}
	return price * (1 + pct/100)
}

func defaultTarget(side model.Side, price, pct float64) float64 {
	if side == model.Long {
		return price * (1 + pct/100)
	}
	return price * (1 - pct/100)
}
