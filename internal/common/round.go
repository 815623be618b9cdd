package common

import (
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// RoundHalfEven rounds v to places decimals the way numpy.round does: v is
// scaled by 10^places in float64, the product is rounded half-even to an
// integer and shifted back. Binary representation error therefore decides
// near-ties (2.675 rounds to 2.67). NaN and infinities are returned unchanged.
func RoundHalfEven(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	scaled := v * math.Pow10(int(places))
	if math.IsInf(scaled, 0) {
		return v
	}
	return decimal.NewFromFloat(scaled).RoundBank(0).Shift(-places).InexactFloat64()
}

// FormatPlain formats v the way a plain float prints in a notebook: shortest
// round-trip digits, always with a fractional part ("2.0", "1.46", "-0.5").
func FormatPlain(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	abs := math.Abs(v)
	if abs != 0 && (abs >= 1e16 || abs < 1e-4) {
		return strconv.FormatFloat(v, 'e', -1, 64)
	}
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
