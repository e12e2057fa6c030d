package model

import (
	"encoding/json"
	"time"
)

// CandleWindow is the number of candles retained per symbol for indicator
// computation. Matches the exchange fetch limit.
const CandleWindow = 200

// Candle represents one OHLCV bar for a fixed interval.
// Candles are immutable once fetched; series are ordered oldest first.
type Candle struct {
	OpenTime time.Time `json:"open_time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Closes extracts the close series from a candle slice, oldest first.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
