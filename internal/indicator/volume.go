package indicator

import "math"

// VolumeSpike compares the newest volume with the mean of the preceding
// lookback volumes. It returns the ratio and whether it reached multiplier.
// With too little history, or no prior volume, the ratio is NaN.
func VolumeSpike(volumes []float64, lookback int, multiplier float64) (float64, bool) {
	n := len(volumes)
	if lookback < 1 || n < lookback+1 {
		return math.NaN(), false
	}
	var sum float64
	for _, v := range volumes[n-lookback-1 : n-1] {
		sum += v
	}
	mean := sum / float64(lookback)
	if mean <= 0 {
		return math.NaN(), false
	}
	ratio := volumes[n-1] / mean
	return ratio, ratio >= multiplier
}
