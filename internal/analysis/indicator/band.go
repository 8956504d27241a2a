package indicator

import (
	"fmt"
	"math"

	"trendbot/internal/pkg/errkind"
)

// Direction of the trend band.
const (
	Up   = 1
	Down = -1
)

// Band computes a SuperTrend-style band over ATR.
//
// The value ratchets: while the direction is Up it never falls, while Down it
// never rises. Direction flips only when the close crosses the previous bar's
// opposite candidate band. Index 0 is seeded with direction Up and the upper
// candidate band.
func Band(highs, lows, closes []float64, period int, multiplier float64) ([]float64, []int, error) {
	if err := sameLength(highs, lows, closes); err != nil {
		return nil, nil, err
	}
	atr, err := ATR(highs, lows, closes, period)
	if err != nil {
		return nil, nil, err
	}
	if len(atr) == 0 {
		return nil, nil, fmt.Errorf("band needs %d bars, have %d: %w", period, len(closes), errkind.ErrMissingInput)
	}
	n := len(closes)
	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := 0; i < n; i++ {
		mid := (highs[i] + lows[i]) / 2
		upper[i] = mid + multiplier*atr[i]
		lower[i] = mid - multiplier*atr[i]
	}

	values := make([]float64, n)
	dirs := make([]int, n)
	values[0] = upper[0]
	dirs[0] = Up
	for i := 1; i < n; i++ {
		dir := dirs[i-1]
		switch {
		case closes[i] > upper[i-1]:
			dir = Up
		case closes[i] < lower[i-1]:
			dir = Down
		}
		if dir == Up {
			values[i] = math.Max(lower[i], values[i-1])
		} else {
			values[i] = math.Min(upper[i], values[i-1])
		}
		dirs[i] = dir
	}
	return values, dirs, nil
}
