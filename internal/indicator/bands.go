package indicator

import "math"

// Bands are VWAP ± kσ deviation bands, where σ is the rolling sample
// standard deviation of (close - vwap).
type Bands struct {
	Sigma  []float64
	Plus1  []float64
	Minus1 []float64
	Plus2  []float64
	Minus2 []float64
}

// VWAPBands computes deviation bands over a trailing window. Entries before
// the window is full, or whose window contains an undefined VWAP, are NaN.
func VWAPBands(closes, vwap []float64, window int) Bands {
	n := len(closes)
	if len(vwap) < n {
		n = len(vwap)
	}
	b := Bands{
		Sigma:  nanSeries(n),
		Plus1:  nanSeries(n),
		Minus1: nanSeries(n),
		Plus2:  nanSeries(n),
		Minus2: nanSeries(n),
	}
	if window < 2 {
		return b
	}

	delta := make([]float64, n)
	for i := 0; i < n; i++ {
		delta[i] = closes[i] - vwap[i]
	}

	for i := window - 1; i < n; i++ {
		sigma := sampleStd(delta[i-window+1 : i+1])
		if !Ready(sigma) {
			continue
		}
		b.Sigma[i] = sigma
		b.Plus1[i] = vwap[i] + sigma
		b.Minus1[i] = vwap[i] - sigma
		b.Plus2[i] = vwap[i] + 2*sigma
		b.Minus2[i] = vwap[i] - 2*sigma
	}
	return b
}

// sampleStd is the n-1 standard deviation; NaN if any input is NaN.
func sampleStd(xs []float64) float64 {
	if len(xs) < 2 {
		return math.NaN()
	}
	var sum float64
	for _, x := range xs {
		if !Ready(x) {
			return math.NaN()
		}
		sum += x
	}
	mean := sum / float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
