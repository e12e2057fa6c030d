// Package indicator provides technical indicator calculations over candle data.
//
// All functions are pure: they take an ordered close series (oldest first)
// and return values without retaining state between cycles. Each symbol's
// IndicatorSet is rebuilt from scratch every cycle.
package indicator

import (
	"errors"
	"fmt"

	"llm-crypto-trader/internal/model"
)

// Standard periods used by the trading cycle.
const (
	EMAPeriod  = 20
	RSIPeriod  = 14
	MACDFast   = 12
	MACDSlow   = 26
	MACDSignal = 9
)

// ErrInsufficientHistory is returned when a series is too short for the
// requested indicator. The caller skips that symbol for the cycle.
var ErrInsufficientHistory = errors.New("insufficient candle history")

// Compute derives the full indicator snapshot for one symbol.
// Requires at least MACDSlow+MACDSignal candles; shorter series fail with
// ErrInsufficientHistory.
func Compute(symbol string, candles []model.Candle, price, fundingRate float64) (model.IndicatorSet, error) {
	closes := model.Closes(candles)

	ema20, err := LastEMA(closes, EMAPeriod)
	if err != nil {
		return model.IndicatorSet{}, err
	}
	rsi, err := RSI(closes, RSIPeriod)
	if err != nil {
		return model.IndicatorSet{}, err
	}
	macd, err := MACD(closes, MACDFast, MACDSlow, MACDSignal)
	if err != nil {
		return model.IndicatorSet{}, err
	}

	return model.IndicatorSet{
		Symbol:      symbol,
		Price:       price,
		EMA20:       ema20,
		RSI14:       rsi,
		MACDLine:    macd.Line,
		MACDSignal:  macd.Signal,
		MACDHist:    macd.Hist,
		FundingRate: fundingRate,
	}, nil
}

func insufficient(name string, need, got int) error {
	return fmt.Errorf("%s: need %d candles, got %d: %w", name, need, got, ErrInsufficientHistory)
}
