package strategy

import "trendbot/internal/market"

// TrendCross fires when the band flips direction while crossing the EMA and
// the close sits on the new side of the EMA.
type TrendCross struct{}

func (TrendCross) Name() string { return NameTrendCross }

func (TrendCross) Evaluate(snap market.Snapshot) Evaluation {
	ev := Evaluation{Breakout: snap.Breakout}
	if len(snap.Candles) < 2 || !snap.Current.Ready {
		return ev
	}
	last, _ := snap.Last()
	cur := snap.Current
	prev := snap.Previous
	if !prev.Ready {
		prev = cur
	}
	switch {
	case prev.BandDir < 0 && cur.BandDir > 0 && prev.BandValue <= prev.EMA && cur.BandValue > cur.EMA && last.Close > cur.EMA:
		ev.Signal = &Signal{Action: EnterLong, Strategy: NameTrendCross, InitialStop: ptr(cur.BandValue), Reason: "band flipped up above ema"}
	case prev.BandDir > 0 && cur.BandDir < 0 && prev.BandValue >= prev.EMA && cur.BandValue < cur.EMA && last.Close < cur.EMA:
		ev.Signal = &Signal{Action: EnterShort, Strategy: NameTrendCross, InitialStop: ptr(cur.BandValue), Reason: "band flipped down below ema"}
	}
	return ev
}
