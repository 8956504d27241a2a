package market

import "time"

// Candle is one closed OHLCV bar. Times are milliseconds since epoch.
type Candle struct {
	OpenTime  int64   `json:"open_time"`
	CloseTime int64   `json:"close_time"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
	Trades    int64   `json:"trades"`
}

// Valid reports whether the bar is well formed: positive prices with open and
// close inside [low, high].
func (c Candle) Valid() bool {
	if c.CloseTime <= c.OpenTime || c.Low <= 0 || c.High < c.Low {
		return false
	}
	return c.Open >= c.Low && c.Open <= c.High && c.Close >= c.Low && c.Close <= c.High
}

// ClosedBy reports whether the bar had closed at the given instant.
func (c Candle) ClosedBy(now time.Time) bool {
	return c.CloseTime <= now.UnixMilli()
}

// FilterClosed keeps bars whose close time is not after now.
func FilterClosed(candles []Candle, now time.Time) []Candle {
	out := make([]Candle, 0, len(candles))
	for _, c := range candles {
		if c.ClosedBy(now) {
			out = append(out, c)
		}
	}
	return out
}
