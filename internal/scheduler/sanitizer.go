package scheduler

import (
	"time"

	"trendbot/internal/market"
)

// KlineGrace is how long after its nominal close a bar is still treated as
// possibly in progress.
const KlineGrace = 10 * time.Second

// DropInProgress trims a trailing bar that has not closed yet. REST kline
// endpoints return the forming bar last; the core only accepts closed bars.
func DropInProgress(klines []market.Candle, interval time.Duration) []market.Candle {
	return dropInProgressAt(klines, interval, time.Now().UTC(), KlineGrace)
}

func dropInProgressAt(klines []market.Candle, interval time.Duration, now time.Time, grace time.Duration) []market.Candle {
	if len(klines) == 0 || interval <= 0 {
		return klines
	}
	if grace < 0 {
		grace = 0
	}
	last := klines[len(klines)-1]
	if last.OpenTime <= 0 {
		return klines
	}
	closeAt := last.OpenTime + interval.Milliseconds()
	if now.UnixMilli() < closeAt+grace.Milliseconds() {
		return klines[:len(klines)-1]
	}
	return klines
}
