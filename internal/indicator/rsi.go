package indicator

import "math"

// RSI returns the Relative Strength Index using Wilder smoothing
// (α = 1/period) applied separately to gains and losses.
//
// The first bar has no delta, so rsi[0] is NaN and the averages are seeded
// by the first delta. RS = avgGain / (avgLoss + Epsilon), which keeps the
// result within [0, 100] even for a strictly rising series.
func RSI(series []float64, period int) []float64 {
	n := len(series)
	out := nanSeries(n)
	if n < 2 {
		return out
	}
	if period < 1 {
		period = 1
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	gains[0], losses[0] = math.NaN(), math.NaN()
	for i := 1; i < n; i++ {
		d := series[i] - series[i-1]
		gains[i] = math.Max(d, 0)
		losses[i] = math.Max(-d, 0)
	}

	alpha := 1.0 / float64(period)
	avgGain := ewm(gains, alpha)
	avgLoss := ewm(losses, alpha)

	for i := 1; i < n; i++ {
		rs := avgGain[i] / (avgLoss[i] + Epsilon)
		out[i] = 100.0 - 100.0/(1.0+rs)
	}
	return out
}
