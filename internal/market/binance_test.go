package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	c := NewClient(WithBaseURL(srv.URL), WithTimeout(2*time.Second))
	c.http.SetRetryCount(0)
	return c, srv
}

func TestGetCandles(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			t.Errorf("path: %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Errorf("symbol: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			[1700000000000,"100.5","101.0","99.5","100.8","1234.5",1700000179999,"0",10,"0","0","0"],
			[1700000180000,"100.8","102.0","100.1","101.2","2345.6",1700000359999,"0",12,"0","0","0"]
		]`))
	})
	defer srv.Close()

	candles, err := c.GetCandles(context.Background(), "BTCUSDT", "3m", 200)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(candles) != 2 {
		t.Fatalf("got %d candles", len(candles))
	}
	if candles[0].Close != 100.8 || candles[1].Close != 101.2 {
		t.Errorf("closes: %v, %v", candles[0].Close, candles[1].Close)
	}
	if !candles[0].OpenTime.Before(candles[1].OpenTime) {
		t.Error("candles not oldest first")
	}
}

func TestGetTicker(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"ETHUSDT","price":"2345.67"}`))
	})
	defer srv.Close()

	price, err := c.GetTicker(context.Background(), "ETHUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if price != 2345.67 {
		t.Errorf("price: %v", price)
	}
}

func TestGetFundingRate(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"symbol":"BTCUSDT","lastFundingRate":"0.00010000","markPrice":"100.0"}`))
	})
	defer srv.Close()

	rate, err := c.GetFundingRate(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rate != 0.0001 {
		t.Errorf("rate: %v", rate)
	}
}

func TestServerErrorWrapsDataUnavailable(t *testing.T) {
	c, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"code":-1121,"msg":"Invalid symbol."}`, http.StatusBadRequest)
	})
	defer srv.Close()

	if _, err := c.GetTicker(context.Background(), "NOPE"); !errors.Is(err, ErrDataUnavailable) {
		t.Fatalf("expected ErrDataUnavailable, got %v", err)
	}
}
