// Package indicator provides technical indicator calculations over candle
// history.
//
// Every function here is pure: it reads a series and returns a new one.
// Values that cannot be computed yet (warmup, window not full, zero volume)
// are NaN; callers test with Ready before using them for signaling.
package indicator

import "math"

// Epsilon clamps denominators that may legitimately be zero.
const Epsilon = 1e-9

// Ready reports whether v is a usable indicator value.
func Ready(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Last returns the final element of s, or NaN for an empty series.
func Last(s []float64) float64 {
	if len(s) == 0 {
		return math.NaN()
	}
	return s[len(s)-1]
}

// SafeDiv divides a by b with |b| clamped to at least Epsilon, keeping the
// sign of b.
func SafeDiv(a, b float64) float64 {
	if math.Abs(b) < Epsilon {
		if b < 0 {
			return a / -Epsilon
		}
		return a / Epsilon
	}
	return a / b
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
