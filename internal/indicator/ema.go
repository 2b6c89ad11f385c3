package indicator

// EMA returns the exponential moving average of series with
// α = 2/(span+1), seeded by the first value and with no bias adjustment:
//
//	ema[0] = series[0]
//	ema[i] = α·series[i] + (1-α)·ema[i-1]
func EMA(series []float64, span int) []float64 {
	if len(series) == 0 {
		return nil
	}
	if span < 1 {
		span = 1
	}
	alpha := 2.0 / float64(span+1)
	return ewm(series, alpha)
}

// ewm is the unadjusted exponentially weighted mean with smoothing alpha.
// Leading NaNs are carried through; the first finite value seeds the mean.
func ewm(series []float64, alpha float64) []float64 {
	out := make([]float64, len(series))
	seeded := false
	var cur float64
	for i, v := range series {
		if !Ready(v) {
			if seeded {
				out[i] = cur
			} else {
				out[i] = v
			}
			continue
		}
		if !seeded {
			cur = v
			seeded = true
		} else {
			cur = alpha*v + (1-alpha)*cur
		}
		out[i] = cur
	}
	return out
}
