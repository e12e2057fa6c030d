package indicator

// MACDResult holds the three MACD outputs for the latest candle.
type MACDResult struct {
	Line   float64
	Signal float64
	Hist   float64
}

// MACD calculates Moving Average Convergence Divergence:
// line = EMA(fast) - EMA(slow), signal = EMA(signal) of the line series,
// hist = line - signal. Requires slow+signal closes so the signal line has
// a full SMA seed.
func MACD(closes []float64, fast, slow, signal int) (MACDResult, error) {
	if len(closes) < slow+signal {
		return MACDResult{}, insufficient("MACD", slow+signal, len(closes))
	}

	emaFast, err := EMA(closes, fast)
	if err != nil {
		return MACDResult{}, err
	}
	emaSlow, err := EMA(closes, slow)
	if err != nil {
		return MACDResult{}, err
	}

	// MACD line is defined from the first index where the slow EMA exists.
	line := make([]float64, 0, len(closes)-slow+1)
	for i := slow - 1; i < len(closes); i++ {
		line = append(line, emaFast[i]-emaSlow[i])
	}

	signalSeries, err := EMA(line, signal)
	if err != nil {
		return MACDResult{}, err
	}

	last := len(line) - 1
	res := MACDResult{
		Line:   line[last],
		Signal: signalSeries[last],
	}
	res.Hist = res.Line - res.Signal
	return res, nil
}
