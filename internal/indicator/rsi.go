package indicator

// RSI calculates the Relative Strength Index using Wilder's smoothing.
// The initial average gain/loss is the simple average over the first
// period deltas; subsequent averages follow avg = (prev*(period-1)+cur)/period.
// When the average loss is zero the RSI is 100 by convention.
// Requires period+1 closes (period deltas).
func RSI(closes []float64, period int) (float64, error) {
	if len(closes) < period+1 {
		return 0, insufficient("RSI", period+1, len(closes))
	}

	var avgGain, avgLoss float64
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	p := float64(period)
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain, loss := 0.0, 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*(p-1) + gain) / p
		avgLoss = (avgLoss*(p-1) + loss) / p
	}

	if avgLoss == 0 {
		return 100.0, nil
	}
	rs := avgGain / avgLoss
	return 100.0 - 100.0/(1.0+rs), nil
}
