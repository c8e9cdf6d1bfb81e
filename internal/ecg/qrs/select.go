package qrs

import (
	"math"
	"slices"
)

// Plausible heart rates, infant through adult athlete, in beats/min.
const (
	MinPlausibleRate  = 40.0
	MaxPlausibleRate  = 160.0
	DefaultTargetRate = 80.0
)

// Select returns the index of the rate closest to the median of the
// plausible rates (or DefaultTargetRate when none is plausible) and that
// target. Ties go to the lowest index. rates must not be empty.
func Select(rates []float64) (best int, target float64) {
	var plausible []float64
	for _, r := range rates {
		if r >= MinPlausibleRate && r <= MaxPlausibleRate {
			plausible = append(plausible, r)
		}
	}
	target = DefaultTargetRate
	if len(plausible) > 0 {
		target = median(plausible)
	}

	bestDist := math.Inf(1)
	for k, r := range rates {
		if d := math.Abs(r - target); d < bestDist {
			best, bestDist = k, d
		}
	}
	return best, target
}

// median averages the two middle values for even lengths.
func median(xs []float64) float64 {
	s := slices.Clone(xs)
	slices.Sort(s)
	n := len(s)
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
