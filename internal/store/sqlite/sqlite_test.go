package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"llm-crypto-trader/internal/model"
)

func testSnapshot(ts time.Time) model.CycleSnapshot {
	pos := model.Position{
		Symbol: "BTCUSDT", Side: model.Long, Quantity: 0.5, EntryPrice: 50000,
		Leverage: 5, Margin: 5000, EntryFee: 6.875, StopLoss: 47500, TakeProfit: 52500,
		OpenedAt: ts,
	}
	return model.CycleSnapshot{
		Timestamp:      ts,
		CashBalance:    4993.125,
		TotalEquity:    10093.125,
		TotalReturnPct: 0.93,
		Trades: []model.TradeRecord{
			{Timestamp: ts, Symbol: "BTCUSDT", Side: model.Long, Action: model.ActionOpen,
				Quantity: 0.5, Price: 50000, Fee: 6.875, Reason: "ai_decision"},
		},
		Decisions: []model.DecisionRecord{
			{Timestamp: ts, Symbol: "BTCUSDT", Decision: model.DecisionEntry, Side: model.Long,
				Quantity: 0.5, Leverage: 5, StopLoss: 47500, TakeProfit: 52500,
				Confidence: 0.8, Reasoning: "breakout", Accepted: true},
			{Timestamp: ts, Symbol: "ETHUSDT", Decision: model.DecisionHold,
				Reasoning: "no signal", Accepted: true},
		},
		MarketSnapshots: []model.MarketSnapshot{
			{Timestamp: ts, Indicators: model.IndicatorSet{
				Symbol: "BTCUSDT", Price: 50200, EMA20: 49800, RSI14: 61.2,
				MACDLine: 12.5, MACDSignal: 10.1, MACDHist: 2.4, FundingRate: 0.0001,
			}},
		},
		ActivePositions: []model.ActivePosition{
			{Timestamp: ts, Position: pos, CurrentPrice: 50200, UnrealizedPnL: 100},
		},
	}
}

func TestWriteAndReadCycleSnapshot(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trading.db")
	w, err := New(WriterConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := w.WriteCycleSnapshot(context.Background(), testSnapshot(ts)); err != nil {
		t.Fatalf("WriteCycleSnapshot: %v", err)
	}

	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	state, err := r.LatestState()
	if err != nil {
		t.Fatalf("LatestState: %v", err)
	}
	if state.TotalEquity != 10093.125 {
		t.Errorf("TotalEquity = %v, want 10093.125", state.TotalEquity)
	}
	if !state.Timestamp.Equal(ts) {
		t.Errorf("Timestamp = %v, want %v", state.Timestamp, ts)
	}

	trades, err := r.Trades(10)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 1 || trades[0].Symbol != "BTCUSDT" || trades[0].Fee != 6.875 {
		t.Errorf("trades = %+v", trades)
	}

	decisions, err := r.Decisions(10)
	if err != nil {
		t.Fatalf("Decisions: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("got %d decisions, want 2", len(decisions))
	}
	// newest first by insert order
	if decisions[0].Symbol != "ETHUSDT" || decisions[1].Symbol != "BTCUSDT" {
		t.Errorf("decision order = %s, %s", decisions[0].Symbol, decisions[1].Symbol)
	}
	if !decisions[1].Accepted || decisions[1].Confidence != 0.8 {
		t.Errorf("entry decision = %+v", decisions[1])
	}

	market, err := r.MarketHistory("BTCUSDT", 10)
	if err != nil {
		t.Fatalf("MarketHistory: %v", err)
	}
	if len(market) != 1 || market[0].Indicators.RSI14 != 61.2 {
		t.Errorf("market = %+v", market)
	}

	positions, err := r.ActivePositions()
	if err != nil {
		t.Fatalf("ActivePositions: %v", err)
	}
	if len(positions) != 1 || positions[0].Position.Margin != 5000 {
		t.Errorf("positions = %+v", positions)
	}
}

func TestActivePositionsReplacedEachCycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trading.db")
	w, err := New(WriterConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	if err := w.WriteCycleSnapshot(context.Background(), testSnapshot(ts)); err != nil {
		t.Fatalf("first write: %v", err)
	}

	// Second cycle closed the position; snapshot carries no positions.
	second := testSnapshot(ts.Add(3 * time.Minute))
	second.Trades = nil
	second.Decisions = nil
	second.ActivePositions = nil
	if err := w.WriteCycleSnapshot(context.Background(), second); err != nil {
		t.Fatalf("second write: %v", err)
	}

	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	positions, err := r.ActivePositions()
	if err != nil {
		t.Fatalf("ActivePositions: %v", err)
	}
	if len(positions) != 0 {
		t.Errorf("got %d positions after empty cycle, want 0", len(positions))
	}

	// Append-only tables keep both cycles.
	history, err := r.EquityHistory(10)
	if err != nil {
		t.Fatalf("EquityHistory: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("got %d equity rows, want 2", len(history))
	}
	if !history[0].Timestamp.Before(history[1].Timestamp) {
		t.Error("equity history not oldest first")
	}
}

func TestPerformanceStats(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trading.db")
	w, err := New(WriterConfig{DBPath: dbPath})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := model.CycleSnapshot{
		Timestamp:   ts,
		TotalEquity: 10000,
		Trades: []model.TradeRecord{
			{Timestamp: ts, Symbol: "BTCUSDT", Side: model.Long, Action: model.ActionOpen, Quantity: 1, Price: 100, Fee: 0.5},
			{Timestamp: ts, Symbol: "BTCUSDT", Side: model.Long, Action: model.ActionClose, Quantity: 1, Price: 110, Fee: 0.5, PnL: 9.0},
			{Timestamp: ts, Symbol: "ETHUSDT", Side: model.Short, Action: model.ActionOpen, Quantity: 1, Price: 50, Fee: 0.25},
			{Timestamp: ts, Symbol: "ETHUSDT", Side: model.Short, Action: model.ActionClose, Quantity: 1, Price: 55, Fee: 0.25, PnL: -5.5},
		},
	}
	if err := w.WriteCycleSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("WriteCycleSnapshot: %v", err)
	}

	// Two more cycles: equity dips to 9000 then recovers to 9500.
	for i, equity := range []float64{9000, 9500} {
		dip := model.CycleSnapshot{
			Timestamp:   ts.Add(time.Duration(i+1) * 3 * time.Minute),
			TotalEquity: equity,
		}
		if err := w.WriteCycleSnapshot(context.Background(), dip); err != nil {
			t.Fatalf("WriteCycleSnapshot: %v", err)
		}
	}

	r, err := NewReader(dbPath)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()

	p, err := r.PerformanceStats()
	if err != nil {
		t.Fatalf("PerformanceStats: %v", err)
	}
	if p.TotalTrades != 4 || p.ClosedTrades != 2 {
		t.Errorf("counts = %+v", p)
	}
	if p.WinningTrades != 1 || p.LosingTrades != 1 || p.WinRatePct != 50 {
		t.Errorf("win rate = %+v", p)
	}
	if p.TotalPnL != 3.5 {
		t.Errorf("TotalPnL = %v, want 3.5", p.TotalPnL)
	}
	if p.TotalFees != 1.5 {
		t.Errorf("TotalFees = %v, want 1.5", p.TotalFees)
	}
	if p.BestTrade != 9.0 || p.WorstTrade != -5.5 {
		t.Errorf("best/worst = %v/%v", p.BestTrade, p.WorstTrade)
	}
	if p.ProfitFactor != 9.0/5.5 {
		t.Errorf("ProfitFactor = %v, want %v", p.ProfitFactor, 9.0/5.5)
	}
	// Peak 10000 → trough 9000 is a 10% drawdown.
	if p.MaxDrawdownPct != 10 {
		t.Errorf("MaxDrawdownPct = %v, want 10", p.MaxDrawdownPct)
	}
}

func TestConfigStoreSeedsDefaults(t *testing.T) {
	s, err := NewConfigStore(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewConfigStore: %v", err)
	}
	defer s.Close()

	cfg, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("seeded version = %d, want 1", cfg.Version)
	}
	if cfg.InitialBalance != 10000 || len(cfg.Symbols) != 6 {
		t.Errorf("seeded config = %+v", cfg)
	}
}

func TestConfigStoreVersionCap(t *testing.T) {
	s, err := NewConfigStore(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewConfigStore: %v", err)
	}
	defer s.Close()

	cfg := model.DefaultBotConfig()
	for i := 0; i < 51; i++ {
		cfg.MaxPositions = i + 1
		if _, err := s.Save(cfg); err != nil {
			t.Fatalf("Save %d: %v", i, err)
		}
	}

	versions, err := s.Versions()
	if err != nil {
		t.Fatalf("Versions: %v", err)
	}
	if len(versions) != 50 {
		t.Fatalf("got %d versions, want 50", len(versions))
	}
	if versions[0].Version != 51 || versions[len(versions)-1].Version != 2 {
		t.Errorf("kept range %d..%d, want 51..2", versions[0].Version, versions[len(versions)-1].Version)
	}
}

func TestConfigStoreRestoreNeverRewinds(t *testing.T) {
	s, err := NewConfigStore(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewConfigStore: %v", err)
	}
	defer s.Close()

	v1 := model.DefaultBotConfig()
	if _, err := s.Save(v1); err != nil {
		t.Fatalf("Save v1: %v", err)
	}
	v2 := v1
	v2.MaxLeverage = 20
	if _, err := s.Save(v2); err != nil {
		t.Fatalf("Save v2: %v", err)
	}

	restored, err := s.Restore(1)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Version != 3 {
		t.Errorf("restored version = %d, want 3", restored.Version)
	}
	if restored.MaxLeverage != v1.MaxLeverage {
		t.Errorf("restored MaxLeverage = %v, want %v", restored.MaxLeverage, v1.MaxLeverage)
	}

	cur, err := s.Current()
	if err != nil {
		t.Fatalf("Current: %v", err)
	}
	if cur.Version != 3 {
		t.Errorf("current version = %d, want 3", cur.Version)
	}
}

func TestConfigStoreRejectsInvalid(t *testing.T) {
	s, err := NewConfigStore(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("NewConfigStore: %v", err)
	}
	defer s.Close()

	bad := model.DefaultBotConfig()
	bad.Symbols = nil
	if _, err := s.Save(bad); err == nil {
		t.Fatal("want validation error for empty symbols")
	}
}
