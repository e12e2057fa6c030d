package model

// IndicatorSet is the per-symbol, per-cycle snapshot of derived indicators.
// It is recomputed from scratch every cycle and never mutated in place.
type IndicatorSet struct {
	Symbol      string  `json:"symbol"`
	Price       float64 `json:"price"`
	EMA20       float64 `json:"ema20"`
	RSI14       float64 `json:"rsi"`
	MACDLine    float64 `json:"macd"`
	MACDSignal  float64 `json:"macd_signal"`
	MACDHist    float64 `json:"macd_hist"`
	FundingRate float64 `json:"funding_rate"`
}
