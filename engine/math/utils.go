package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// CeilLog2 returns ceil(log2(v)) for v >= 1, and 0 otherwise.
func CeilLog2[T constraints.Integer](v T) uint32 {
	if v <= 1 {
		return 0
	}
	return uint32(gomath.Ceil(gomath.Log2(float64(v))))
}
