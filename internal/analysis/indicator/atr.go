package indicator

import (
	"fmt"
	"math"

	"trendbot/internal/pkg/errkind"
)

// TrueRange returns the per-bar true range. tr[0] is high[0]-low[0].
func TrueRange(highs, lows, closes []float64) ([]float64, error) {
	if err := sameLength(highs, lows, closes); err != nil {
		return nil, err
	}
	out := make([]float64, len(highs))
	for i := range highs {
		if i == 0 {
			out[i] = highs[i] - lows[i]
			continue
		}
		prevClose := closes[i-1]
		out[i] = math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-prevClose), math.Abs(lows[i]-prevClose)))
	}
	return out, nil
}

// ATR returns Wilder-smoothed average true range.
//
// When fewer than period bars exist the result is empty, which callers treat
// as "not ready". Indices before period-1 are back-filled with the first
// computed value so the output length always equals the input length.
func ATR(highs, lows, closes []float64, period int) ([]float64, error) {
	if period <= 0 {
		return nil, fmt.Errorf("atr period %d: %w", period, errkind.ErrInvalidParameter)
	}
	trs, err := TrueRange(highs, lows, closes)
	if err != nil {
		return nil, err
	}
	if len(trs) < period {
		return nil, nil
	}
	out := make([]float64, len(trs))
	sum := 0.0
	for _, tr := range trs[:period] {
		sum += tr
	}
	prev := sum / float64(period)
	out[period-1] = prev
	for i := period; i < len(trs); i++ {
		prev = (prev*float64(period-1) + trs[i]) / float64(period)
		out[i] = prev
	}
	for i := 0; i < period-1; i++ {
		out[i] = out[period-1]
	}
	return out, nil
}

func sameLength(highs, lows, closes []float64) error {
	if len(highs) != len(lows) || len(lows) != len(closes) {
		return fmt.Errorf("series length mismatch high=%d low=%d close=%d: %w",
			len(highs), len(lows), len(closes), errkind.ErrInvalidParameter)
	}
	return nil
}
