package utils

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundFloat rounds a float64 half away from zero to the given number of
// decimal places.
func RoundFloat(val float64, precision int32) float64 {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return 0
	}
	return decimal.NewFromFloat(val).Round(precision).InexactFloat64()
}

// SafeDiv returns a/b, or 0 when b is zero or the result is not finite.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	r := a / b
	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0
	}
	return r
}

// Finite replaces NaN and ±Inf with 0.
func Finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
