// Package indicator implements the numeric series used by the strategies:
// EMA, Wilder ATR and a SuperTrend-style ratcheted band.
//
// All functions are pure and return one value per input bar.
package indicator

import (
	"fmt"

	"trendbot/internal/pkg/errkind"
)

// EMA returns the exponential moving average of prices.
// The series is seeded with prices[0]; there is no warm-up truncation.
func EMA(prices []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("ema period %d: %w", period, errkind.ErrInvalidParameter)
	}
	if len(prices) == 0 {
		return nil, nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, len(prices))
	prev := prices[0]
	out[0] = prev
	for i := 1; i < len(prices); i++ {
		prev = prices[i]*k + prev*(1-k)
		out[i] = prev
	}
	return out, nil
}
