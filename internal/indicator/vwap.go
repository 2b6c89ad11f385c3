package indicator

import (
	"math"

	"candle-alerts/internal/model"
)

// VWAP returns the cumulative volume-weighted average of the typical price
// over the whole history. Bars before any volume has traded are NaN.
func VWAP(candles []model.Candle) []float64 {
	return SessionVWAP(candles, nil)
}

// SessionVWAP is VWAP whose running sums restart at every index where
// resets[i] is true (the bar itself is included after the restart).
// A nil resets slice never restarts.
func SessionVWAP(candles []model.Candle, resets []bool) []float64 {
	out := make([]float64, len(candles))
	var pv, v float64
	for i := range candles {
		if resets != nil && i < len(resets) && resets[i] {
			pv, v = 0, 0
		}
		c := &candles[i]
		pv += c.TypicalPrice() * c.Volume
		v += c.Volume
		if v == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = pv / v
	}
	return out
}
