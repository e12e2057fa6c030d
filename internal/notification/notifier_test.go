package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"llm-crypto-trader/internal/model"
)

func TestTradeAlertLevels(t *testing.T) {
	open := TradeAlert(model.TradeRecord{
		Symbol: "BTCUSDT", Side: model.Long, Action: model.ActionOpen,
		Quantity: 0.1, Price: 50000, Fee: 1.375, Reason: "entry",
	})
	if open.Level != AlertInfo || !strings.Contains(open.Title, "Opened long BTCUSDT") {
		t.Errorf("open alert = %+v", open)
	}

	losing := TradeAlert(model.TradeRecord{
		Symbol: "ETHUSDT", Side: model.Short, Action: model.ActionClose,
		Quantity: 1, Price: 3000, PnL: -42.5, Reason: "llm close",
	})
	if losing.Level != AlertWarning {
		t.Errorf("losing close level = %s, want WARNING", losing.Level)
	}

	guard := GuardrailAlert(model.TradeRecord{
		Symbol: "SOLUSDT", Side: model.Long, Action: model.ActionClose,
		Quantity: 2, Price: 95, PnL: -10, Reason: "stop_loss",
	})
	if guard.Level != AlertWarning || !strings.Contains(guard.Title, "Guardrail close") {
		t.Errorf("guardrail alert = %+v", guard)
	}
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := n.Send(ctx, Alert{Level: AlertCritical, Title: "persist failure", Message: "sqlite write failed"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if got["level"] != "CRITICAL" || got["title"] != "persist failure" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookNotifierErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	if err := n.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"}); err == nil {
		t.Fatal("expected error on 502")
	}
}

type stubNotifier struct {
	calls int
	err   error
}

func (s *stubNotifier) Send(context.Context, Alert) error {
	s.calls++
	return s.err
}

func TestMultiFansOutPastFailures(t *testing.T) {
	bad := &stubNotifier{err: errors.New("down")}
	good := &stubNotifier{}

	m := NewMulti(bad, nil, good)
	if !m.Enabled() {
		t.Fatal("expected enabled with two backends")
	}

	err := m.Send(context.Background(), Alert{Level: AlertInfo, Title: "t", Message: "m"})
	if err == nil {
		t.Fatal("expected first backend error surfaced")
	}
	if bad.calls != 1 || good.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", bad.calls, good.calls)
	}

	if NewMulti(nil).Enabled() {
		t.Error("expected disabled with no backends")
	}
}

func TestEscapeMarkdownV2(t *testing.T) {
	got := escapeMarkdownV2("pnl -1.5 (stop_loss)")
	want := `pnl \-1\.5 \(stop\_loss\)`
	if got != want {
		t.Errorf("escaped = %q, want %q", got, want)
	}
}
