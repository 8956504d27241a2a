// Package trading provides order sizing utilities.
package trading

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"trendbot/internal/pkg/errkind"
)

// ErrZeroQty reports a quantity that truncates to zero at the symbol's precision.
var ErrZeroQty = errors.New("quantity rounds to zero")

// SizingMode picks how a watchlist size value is interpreted.
type SizingMode string

const (
	// SizingFixed treats the value as a quote-currency amount.
	SizingFixed SizingMode = "fixed"
	// SizingPercent treats the value as a percentage of equity.
	SizingPercent SizingMode = "percent"
)

// ComputeQty converts a sizing rule into a base-asset quantity at price.
// Percent sizing requires equity.
func ComputeQty(mode SizingMode, value, price float64, equity *float64) (float64, error) {
	if price <= 0 || value <= 0 {
		return 0, fmt.Errorf("sizing value=%.8f price=%.8f: %w", value, price, errkind.ErrInvalidParameter)
	}
	v := decimal.NewFromFloat(value)
	p := decimal.NewFromFloat(price)
	switch SizingMode(strings.ToLower(string(mode))) {
	case SizingFixed:
		q, _ := v.Div(p).Float64()
		return q, nil
	case SizingPercent:
		if equity == nil {
			return 0, fmt.Errorf("percent sizing without equity: %w", errkind.ErrInvalidParameter)
		}
		q, _ := v.Div(decimal.NewFromInt(100)).Mul(decimal.NewFromFloat(*equity)).Div(p).Float64()
		return q, nil
	}
	return 0, fmt.Errorf("sizing mode %q: %w", mode, errkind.ErrInvalidParameter)
}

// RoundQty truncates qty to the given number of decimals. Negative decimals
// leave qty untouched.
func RoundQty(qty float64, decimals int) float64 {
	if decimals < 0 {
		return qty
	}
	out, _ := decimal.NewFromFloat(qty).Truncate(int32(decimals)).Float64()
	return out
}

// ApplyMinNotional lifts qty so that qty*price reaches minNotional, rounding
// up at the given decimals. It reports whether the quantity was changed.
func ApplyMinNotional(qty, price, minNotional float64, decimals int) (float64, bool) {
	if minNotional <= 0 || price <= 0 {
		return qty, false
	}
	notional := decimal.NewFromFloat(qty).Mul(decimal.NewFromFloat(price))
	floor := decimal.NewFromFloat(minNotional)
	if notional.GreaterThanOrEqual(floor) {
		return qty, false
	}
	need := floor.Div(decimal.NewFromFloat(price))
	if decimals >= 0 {
		scale := decimal.New(1, int32(decimals))
		up, _ := need.Mul(scale).Ceil().Div(scale).Float64()
		return up, true
	}
	out, _ := need.Float64()
	return out, true
}
