package exit

import (
	"math"

	"github.com/shopspring/decimal"
)

var decimalZero = decimal.Zero

func decFromFloat(val float64) decimal.Decimal {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return decimalZero
	}
	return decimal.NewFromFloat(val)
}

func decToFloat(val decimal.Decimal) float64 {
	f, _ := val.Float64()
	return f
}

func decimalCompare(a, b float64) int {
	return decFromFloat(a).Cmp(decFromFloat(b))
}

func decimalLTE(a, b float64) bool { return decimalCompare(a, b) <= 0 }
func decimalGTE(a, b float64) bool { return decimalCompare(a, b) >= 0 }

// offset returns base - delta for longs and base + delta for shorts.
func offset(side Side, base, delta decimal.Decimal) decimal.Decimal {
	if side == Short {
		return base.Add(delta)
	}
	return base.Sub(delta)
}

// favorable keeps whichever of prev and candidate protects more profit.
func favorable(side Side, prev, candidate float64) float64 {
	if side == Short {
		if decimalCompare(candidate, prev) < 0 {
			return candidate
		}
		return prev
	}
	if decimalCompare(candidate, prev) > 0 {
		return candidate
	}
	return prev
}

// stopHit uses the bar low for longs and the bar high for shorts.
func stopHit(side Side, low, high, stop float64) bool {
	if side == Short {
		return decimalGTE(high, stop)
	}
	return decimalLTE(low, stop)
}
