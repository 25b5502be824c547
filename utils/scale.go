package utils

import "golang.org/x/exp/constraints"

// Clamp bounds v to the interval [lo, hi].
func Clamp[T constraints.Ordered](v, lo, hi T) T {
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Lerp linearly interpolates between a and b by t, where t is normally in the
// unit interval. Values of t outside [0,1] extrapolate.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}
