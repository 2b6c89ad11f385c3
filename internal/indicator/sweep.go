package indicator

import "candle-alerts/internal/model"

// SweepSeries flags liquidity sweeps on every bar against the previous
// lookback bars (the current bar excluded).
//
// High sweep: high > max(prior highs) and close < that max.
// Low sweep:  low  < min(prior lows)  and close > that min.
// Bars without lookback predecessors are false.
func SweepSeries(candles []model.Candle, lookback int) (high, low []bool) {
	n := len(candles)
	high = make([]bool, n)
	low = make([]bool, n)
	if lookback < 1 {
		return high, low
	}
	for i := lookback; i < n; i++ {
		priorHigh := candles[i-lookback].High
		priorLow := candles[i-lookback].Low
		for j := i - lookback + 1; j < i; j++ {
			if candles[j].High > priorHigh {
				priorHigh = candles[j].High
			}
			if candles[j].Low < priorLow {
				priorLow = candles[j].Low
			}
		}
		c := &candles[i]
		high[i] = c.High > priorHigh && c.Close < priorHigh
		low[i] = c.Low < priorLow && c.Close > priorLow
	}
	return high, low
}

// DetectSweep evaluates only the newest bar. Both flags are false with
// fewer than lookback+1 bars.
func DetectSweep(candles []model.Candle, lookback int) (high, low bool) {
	n := len(candles)
	if lookback < 1 || n < lookback+1 {
		return false, false
	}
	h, l := SweepSeries(candles[n-lookback-1:], lookback)
	return h[lookback], l[lookback]
}
