// Package market fetches candles, tickers, and funding rates from the
// Binance USDT-M futures REST API.
//
// Only public market-data endpoints are used; the simulator never places
// real orders.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"llm-crypto-trader/internal/model"
)

// ErrDataUnavailable wraps every transport or exchange failure. Callers
// retry on the next cycle; no state changes on the way.
var ErrDataUnavailable = errors.New("market data unavailable")

const defaultBaseURL = "https://fapi.binance.com"

// Client is a Binance futures market-data client.
type Client struct {
	http *resty.Client
}

// Option configures the Client.
type Option func(*Client)

// WithBaseURL points the client at a different REST endpoint (testnet,
// local stub in tests).
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.http.SetBaseURL(baseURL) }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.SetTimeout(d) }
}

// NewClient creates a market-data client with retry on transient failures.
func NewClient(opts ...Option) *Client {
	c := &Client{
		http: resty.New().
			SetBaseURL(defaultBaseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2).
			SetRetryWaitTime(500 * time.Millisecond).
			SetRetryMaxWaitTime(5 * time.Second),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetCandles returns up to limit klines for the symbol, oldest first.
func (c *Client) GetCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	var rows [][]json.RawMessage
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol":   symbol,
			"interval": interval,
			"limit":    strconv.Itoa(limit),
		}).
		SetResult(&rows).
		Get("/fapi/v1/klines")
	if err := checkResp(resp, err, "klines "+symbol); err != nil {
		return nil, err
	}

	candles := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		candle, err := parseKline(row)
		if err != nil {
			return nil, fmt.Errorf("klines %s: %v: %w", symbol, err, ErrDataUnavailable)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// GetTicker returns the current traded price for the symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Price string `json:"price"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/fapi/v1/ticker/price")
	if err := checkResp(resp, err, "ticker "+symbol); err != nil {
		return 0, err
	}

	price, err := strconv.ParseFloat(out.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: bad price %q: %w", symbol, out.Price, ErrDataUnavailable)
	}
	return price, nil
}

// GetFundingRate returns the latest perpetual funding rate for the symbol.
func (c *Client) GetFundingRate(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		LastFundingRate string `json:"lastFundingRate"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&out).
		Get("/fapi/v1/premiumIndex")
	if err := checkResp(resp, err, "funding "+symbol); err != nil {
		return 0, err
	}

	rate, err := strconv.ParseFloat(out.LastFundingRate, 64)
	if err != nil {
		return 0, fmt.Errorf("funding %s: bad rate %q: %w", symbol, out.LastFundingRate, ErrDataUnavailable)
	}
	return rate, nil
}

func checkResp(resp *resty.Response, err error, op string) error {
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrDataUnavailable)
	}
	if resp.IsError() {
		return fmt.Errorf("%s: http %d: %w", op, resp.StatusCode(), ErrDataUnavailable)
	}
	return nil
}

// parseKline decodes one Binance kline row:
// [openTime, open, high, low, close, volume, ...] with prices as strings.
func parseKline(row []json.RawMessage) (model.Candle, error) {
	if len(row) < 6 {
		return model.Candle{}, fmt.Errorf("kline row has %d fields", len(row))
	}

	var openTimeMs int64
	if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
		return model.Candle{}, fmt.Errorf("open_time: %v", err)
	}

	vals := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		var s string
		if err := json.Unmarshal(row[i], &s); err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %v", i, err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return model.Candle{}, fmt.Errorf("field %d: %v", i, err)
		}
		vals[i-1] = f
	}

	return model.Candle{
		OpenTime: time.Unix(0, openTimeMs*int64(time.Millisecond)).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}
