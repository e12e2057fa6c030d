package indicator

// EMA calculates the Exponential Moving Average series for the given period.
// The returned slice has the same length as closes; entries before index
// period-1 are zero. The first valid value is the simple average of the
// first period closes (SMA seed); each subsequent value follows
// EMA = close*m + prev*(1-m) with m = 2/(period+1).
func EMA(closes []float64, period int) ([]float64, error) {
	if len(closes) < period {
		return nil, insufficient("EMA", period, len(closes))
	}

	multiplier := 2.0 / float64(period+1)
	out := make([]float64, len(closes))

	var sum float64
	for i := 0; i < period; i++ {
		sum += closes[i]
	}
	out[period-1] = sum / float64(period)

	for i := period; i < len(closes); i++ {
		out[i] = closes[i]*multiplier + out[i-1]*(1-multiplier)
	}
	return out, nil
}

// LastEMA returns the final EMA value for the series.
func LastEMA(closes []float64, period int) (float64, error) {
	series, err := EMA(closes, period)
	if err != nil {
		return 0, err
	}
	return series[len(series)-1], nil
}
