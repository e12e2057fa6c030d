package guard

import (
	"testing"

	"llm-crypto-trader/internal/ledger"
	"llm-crypto-trader/internal/model"
)

func openLong(t *testing.T, l *ledger.Ledger, symbol string, entry, stop, target float64) {
	t.Helper()
	if _, err := l.OpenPosition(symbol, model.Long, 1, entry, 1, stop, target); err != nil {
		t.Fatalf("open %s: %v", symbol, err)
	}
}

func TestEvaluate_LongStopLossBoundary(t *testing.T) {
	// entry=100, stop=95: price 95.01 must NOT trigger, 95.00 must.
	l := ledger.New(10000, 5)
	openLong(t, l, "BTCUSDT", 100, 95, 110)

	if closed := Evaluate(l, map[string]float64{"BTCUSDT": 95.01}); len(closed) != 0 {
		t.Fatalf("price 95.01 triggered close: %+v", closed)
	}

	closed := Evaluate(l, map[string]float64{"BTCUSDT": 95.00})
	if len(closed) != 1 {
		t.Fatalf("price 95.00 expected 1 close, got %d", len(closed))
	}
	if closed[0].Reason != ReasonStopLoss {
		t.Errorf("reason: got %s", closed[0].Reason)
	}
	// Fill at the stop level, not the observed price.
	if closed[0].Trade.Price != 95.0 {
		t.Errorf("fill price: got %v, want 95", closed[0].Trade.Price)
	}
}

func TestEvaluate_LongTakeProfit(t *testing.T) {
	l := ledger.New(10000, 5)
	openLong(t, l, "BTCUSDT", 100, 95, 110)

	closed := Evaluate(l, map[string]float64{"BTCUSDT": 112})
	if len(closed) != 1 || closed[0].Reason != ReasonTakeProfit {
		t.Fatalf("expected take_profit close, got %+v", closed)
	}
	if closed[0].Trade.Price != 110 {
		t.Errorf("fill price: got %v, want 110", closed[0].Trade.Price)
	}
}

func TestEvaluate_ShortTriggers(t *testing.T) {
	l := ledger.New(10000, 5)
	if _, err := l.OpenPosition("ETHUSDT", model.Short, 1, 200, 1, 210, 180); err != nil {
		t.Fatalf("open: %v", err)
	}

	// Shorts invert: stop above entry, target below.
	if closed := Evaluate(l, map[string]float64{"ETHUSDT": 205}); len(closed) != 0 {
		t.Fatalf("price inside band triggered close: %+v", closed)
	}
	closed := Evaluate(l, map[string]float64{"ETHUSDT": 210})
	if len(closed) != 1 || closed[0].Reason != ReasonStopLoss {
		t.Fatalf("expected short stop_loss, got %+v", closed)
	}
}

func TestEvaluate_MissingPriceSkips(t *testing.T) {
	l := ledger.New(10000, 5)
	openLong(t, l, "BTCUSDT", 100, 95, 110)

	if closed := Evaluate(l, map[string]float64{}); len(closed) != 0 {
		t.Fatalf("position without price was closed: %+v", closed)
	}
	if l.PositionCount() != 1 {
		t.Errorf("position disappeared")
	}
}

func TestEvaluate_DeterministicOrder(t *testing.T) {
	l := ledger.New(100000, 5)
	openLong(t, l, "ETHUSDT", 100, 95, 110)
	openLong(t, l, "BTCUSDT", 100, 95, 110)

	closed := Evaluate(l, map[string]float64{"BTCUSDT": 90, "ETHUSDT": 90})
	if len(closed) != 2 {
		t.Fatalf("expected 2 closes, got %d", len(closed))
	}
	if closed[0].Symbol != "BTCUSDT" || closed[1].Symbol != "ETHUSDT" {
		t.Errorf("order not symbol-sorted: %s, %s", closed[0].Symbol, closed[1].Symbol)
	}
}
