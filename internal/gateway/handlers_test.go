package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"llm-crypto-trader/internal/model"
	sqlitestore "llm-crypto-trader/internal/store/sqlite"
)

func newTestServer(t *testing.T, totpSecret string) (*httptest.Server, *sqlitestore.Writer) {
	t.Helper()
	dir := t.TempDir()

	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: filepath.Join(dir, "trading.db")})
	if err != nil {
		t.Fatalf("sqlite writer: %v", err)
	}
	t.Cleanup(func() { writer.Close() })

	reader, err := sqlitestore.NewReader(filepath.Join(dir, "trading.db"))
	if err != nil {
		t.Fatalf("sqlite reader: %v", err)
	}
	t.Cleanup(func() { reader.Close() })

	configs, err := sqlitestore.NewConfigStore(filepath.Join(dir, "config.db"))
	if err != nil {
		t.Fatalf("config store: %v", err)
	}
	t.Cleanup(func() { configs.Close() })

	hub := NewHub(nil) // no live feed needed for REST tests

	mux := http.NewServeMux()
	RegisterRoutes(mux, hub, reader, configs, NewTOTPGuard(totpSecret), time.Now())

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, writer
}

func seedCycle(t *testing.T, writer *sqlitestore.Writer) {
	t.Helper()
	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	snap := model.CycleSnapshot{
		Timestamp:      ts,
		CashBalance:    9500,
		TotalEquity:    10100,
		TotalReturnPct: 1.0,
		Trades: []model.TradeRecord{
			{Timestamp: ts, Symbol: "BTCUSDT", Side: model.Long, Action: model.ActionOpen, Quantity: 0.1, Price: 50000, Fee: 1.375},
		},
		Decisions: []model.DecisionRecord{
			{Timestamp: ts, Symbol: "BTCUSDT", Decision: model.DecisionEntry, Side: model.Long, Accepted: true},
		},
		MarketSnapshots: []model.MarketSnapshot{
			{Timestamp: ts, Indicators: model.IndicatorSet{Symbol: "BTCUSDT", Price: 50000, RSI14: 55}},
		},
		ActivePositions: []model.ActivePosition{
			{Timestamp: ts, Position: model.Position{Symbol: "BTCUSDT", Side: model.Long, Quantity: 0.1, EntryPrice: 50000, Leverage: 5, Margin: 1000, StopLoss: 47500, TakeProfit: 52500, OpenedAt: ts}, CurrentPrice: 51000, UnrealizedPnL: 100},
		},
	}
	if err := writer.WriteCycleSnapshot(context.Background(), snap); err != nil {
		t.Fatalf("seed cycle: %v", err)
	}
}

func getJSON(t *testing.T, url string, out interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestStatusEndpoint(t *testing.T) {
	srv, writer := newTestServer(t, "")

	if code := getJSON(t, srv.URL+"/api/status", nil); code != http.StatusNotFound {
		t.Errorf("empty db status = %d, want 404", code)
	}

	seedCycle(t, writer)

	var status struct {
		Portfolio sqlitestore.PortfolioState `json:"portfolio"`
		Positions []model.ActivePosition     `json:"positions"`
	}
	if code := getJSON(t, srv.URL+"/api/status", &status); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if status.Portfolio.TotalEquity != 10100 {
		t.Errorf("equity = %v, want 10100", status.Portfolio.TotalEquity)
	}
	if len(status.Positions) != 1 || status.Positions[0].Position.Symbol != "BTCUSDT" {
		t.Errorf("positions = %+v", status.Positions)
	}
}

func TestTradesAndDecisionsEndpoints(t *testing.T) {
	srv, writer := newTestServer(t, "")
	seedCycle(t, writer)

	var trades []model.TradeRecord
	if code := getJSON(t, srv.URL+"/api/trades", &trades); code != http.StatusOK {
		t.Fatalf("trades = %d", code)
	}
	if len(trades) != 1 || trades[0].Symbol != "BTCUSDT" {
		t.Errorf("trades = %+v", trades)
	}

	var decisions []model.DecisionRecord
	if code := getJSON(t, srv.URL+"/api/decisions", &decisions); code != http.StatusOK {
		t.Fatalf("decisions = %d", code)
	}
	if len(decisions) != 1 || !decisions[0].Accepted {
		t.Errorf("decisions = %+v", decisions)
	}
}

func TestMarketEndpoint(t *testing.T) {
	srv, writer := newTestServer(t, "")
	seedCycle(t, writer)

	var overview []model.MarketSnapshot
	if code := getJSON(t, srv.URL+"/api/market", &overview); code != http.StatusOK {
		t.Fatalf("overview = %d", code)
	}
	if len(overview) != 1 || overview[0].Indicators.Symbol != "BTCUSDT" {
		t.Errorf("overview = %+v", overview)
	}

	var history []model.MarketSnapshot
	if code := getJSON(t, srv.URL+"/api/market?symbol=btcusdt", &history); code != http.StatusOK {
		t.Fatalf("history = %d", code)
	}
	if len(history) != 1 || history[0].Indicators.RSI14 != 55 {
		t.Errorf("history = %+v", history)
	}

	// Path forms serve the same data.
	var pathOverview []model.MarketSnapshot
	if code := getJSON(t, srv.URL+"/api/market/overview", &pathOverview); code != http.StatusOK {
		t.Fatalf("path overview = %d", code)
	}
	if len(pathOverview) != 1 {
		t.Errorf("path overview = %+v", pathOverview)
	}
	var pathHistory []model.MarketSnapshot
	if code := getJSON(t, srv.URL+"/api/market/BTCUSDT", &pathHistory); code != http.StatusOK {
		t.Fatalf("path history = %d", code)
	}
	if len(pathHistory) != 1 || pathHistory[0].Indicators.Symbol != "BTCUSDT" {
		t.Errorf("path history = %+v", pathHistory)
	}
}

func TestConfigEndpoints(t *testing.T) {
	srv, _ := newTestServer(t, "")

	// Current seeds defaults.
	var cfg model.BotConfig
	if code := getJSON(t, srv.URL+"/api/config/current", &cfg); code != http.StatusOK {
		t.Fatalf("current = %d", code)
	}
	if cfg.Version != 1 || len(cfg.Symbols) != 6 {
		t.Errorf("default config = %+v", cfg)
	}

	// Save a new version.
	cfg.MaxLeverage = 20
	body, _ := json.Marshal(cfg)
	resp, err := http.Post(srv.URL+"/api/config/save", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save status = %d", resp.StatusCode)
	}
	var saved model.BotConfig
	if err := json.NewDecoder(resp.Body).Decode(&saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if saved.Version != 2 || saved.MaxLeverage != 20 {
		t.Errorf("saved = %+v", saved)
	}

	// Restore version 1 as version 3.
	restoreBody := bytes.NewReader([]byte(`{"version": 1}`))
	resp2, err := http.Post(srv.URL+"/api/config/restore", "application/json", restoreBody)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	defer resp2.Body.Close()
	var restored model.BotConfig
	if err := json.NewDecoder(resp2.Body).Decode(&restored); err != nil {
		t.Fatalf("decode restored: %v", err)
	}
	if restored.Version != 3 || restored.MaxLeverage != 10 {
		t.Errorf("restored = %+v", restored)
	}

	var versions []model.BotConfig
	if code := getJSON(t, srv.URL+"/api/config/versions", &versions); code != http.StatusOK {
		t.Fatalf("versions = %d", code)
	}
	if len(versions) != 3 {
		t.Errorf("got %d versions, want 3", len(versions))
	}
}

func TestConfigSaveRequiresTOTP(t *testing.T) {
	srv, _ := newTestServer(t, "JBSWY3DPEHPK3PXP")

	cfg := model.DefaultBotConfig()
	body, _ := json.Marshal(cfg)

	// Missing code
	resp, err := http.Post(srv.URL+"/api/config/save", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("save without code = %d, want 401", resp.StatusCode)
	}

	// Wrong code
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/config/save", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-TOTP", "000000")
	resp2, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	resp2.Body.Close()
	if resp2.StatusCode != http.StatusUnauthorized {
		t.Errorf("save with wrong code = %d, want 401", resp2.StatusCode)
	}

	// Reads stay open.
	if code := getJSON(t, srv.URL+"/api/config/current", nil); code != http.StatusOK {
		t.Errorf("current with TOTP enabled = %d, want 200", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, "")

	var health struct {
		Status    string `json:"status"`
		WSClients int    `json:"ws_clients"`
	}
	if code := getJSON(t, srv.URL+"/health", &health); code != http.StatusOK {
		t.Fatalf("health = %d", code)
	}
	if health.Status != "ok" || health.WSClients != 0 {
		t.Errorf("health = %+v", health)
	}
}
