package strategy

import (
	"math"

	"trendbot/internal/market"
)

const (
	breakBuffer   = 0.05
	retestTouch   = 0.25
	retestInvalid = 0.30
	midEpsilon    = 1e-9
)

// BreakoutRetest looks for a close outside a tight consolidation range, then
// waits for price to come back and hold the broken level.
type BreakoutRetest struct {
	Window        int
	MaxWidthPct   float64
	RetestMaxBars int
}

func (BreakoutRetest) Name() string { return NameBreakoutRetest }

// Range is the consolidation box preceding the current bar.
type Range struct {
	High  float64
	Low   float64
	Width float64
	Valid bool
}

// FindRange measures the window bars preceding the last one. A range is valid
// when its width relative to the midpoint is within maxWidth.
func FindRange(candles []market.Candle, window int, maxWidth float64) Range {
	if window <= 0 || len(candles) < window+1 {
		return Range{}
	}
	box := candles[len(candles)-1-window : len(candles)-1]
	hi, lo := math.Inf(-1), math.Inf(1)
	for _, c := range box {
		hi = math.Max(hi, c.High)
		lo = math.Min(lo, c.Low)
	}
	mid := (hi + lo) / 2
	if mid < midEpsilon {
		mid = midEpsilon
	}
	width := (hi - lo) / mid
	return Range{High: hi, Low: lo, Width: width, Valid: width <= maxWidth}
}

func (s BreakoutRetest) Evaluate(snap market.Snapshot) Evaluation {
	state := snap.Breakout
	if state.Phase == "" {
		state = market.Idle()
	}
	ev := Evaluation{Breakout: state}
	if s.Window <= 0 || len(snap.Candles) < s.Window+1 || !snap.Current.Ready {
		return ev
	}
	last, _ := snap.Last()
	ind := snap.Current

	if !state.Waiting() {
		rng := FindRange(snap.Candles, s.Window, s.MaxWidthPct)
		if !rng.Valid {
			return ev
		}
		switch {
		case last.Close > rng.High+breakBuffer*ind.ATR && ind.BandDir > 0 && last.Close > ind.EMA:
			ev.Breakout = market.BreakoutState{Phase: market.PhaseWaitRetestLong, Level: rng.High, StartedAt: snap.Seq}
		case last.Close < rng.Low-breakBuffer*ind.ATR && ind.BandDir < 0 && last.Close < ind.EMA:
			ev.Breakout = market.BreakoutState{Phase: market.PhaseWaitRetestShort, Level: rng.Low, StartedAt: snap.Seq}
		}
		return ev
	}

	if snap.Seq-state.StartedAt > int64(s.RetestMaxBars) {
		ev.Breakout = market.Idle()
		return ev
	}
	level := state.Level
	if state.Phase == market.PhaseWaitRetestLong {
		if ind.BandDir < 0 || last.Close < ind.EMA || last.Close < level-retestInvalid*ind.ATR {
			ev.Breakout = market.Idle()
			return ev
		}
		if last.Low <= level+retestTouch*ind.ATR && last.Close >= level+breakBuffer*ind.ATR {
			ev.Breakout = market.Idle()
			ev.Signal = &Signal{Action: EnterLong, Strategy: NameBreakoutRetest, Reason: "retest held above breakout level"}
		}
		return ev
	}
	if ind.BandDir > 0 || last.Close > ind.EMA || last.Close > level+retestInvalid*ind.ATR {
		ev.Breakout = market.Idle()
		return ev
	}
	if last.High >= level-retestTouch*ind.ATR && last.Close <= level-breakBuffer*ind.ATR {
		ev.Breakout = market.Idle()
		ev.Signal = &Signal{Action: EnterShort, Strategy: NameBreakoutRetest, Reason: "retest held below breakout level"}
	}
	return ev
}
