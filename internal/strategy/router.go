package strategy

import "trendbot/internal/market"

// Router runs the breakout strategy first (when enabled) and falls back to
// the trend cross. The breakout machine state from the first evaluation is
// carried to the caller whether or not a signal was emitted.
type Router struct {
	TrendCross     Strategy
	BreakoutRetest Strategy
}

// Route evaluates the enabled strategies in priority order.
func (r Router) Route(snap market.Snapshot, enableTrend, enableBreakout bool) Evaluation {
	out := Evaluation{Breakout: snap.Breakout}
	if enableBreakout && r.BreakoutRetest != nil {
		ev := r.BreakoutRetest.Evaluate(snap)
		out.Breakout = ev.Breakout
		if ev.Signal != nil {
			out.Signal = ev.Signal
			return out
		}
	}
	if enableTrend && r.TrendCross != nil {
		snap.Breakout = out.Breakout
		ev := r.TrendCross.Evaluate(snap)
		if ev.Signal != nil {
			out.Signal = ev.Signal
		}
	}
	return out
}
