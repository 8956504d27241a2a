// Package exit decides when an open position is closed: a trend flip, a
// trailing-stop hit, or a hit on the band-ratcheted stop loss carried by
// trend-cross entries.
package exit

import (
	"fmt"

	"trendbot/internal/analysis/indicator"
	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/strategy"
)

// Reason is persisted on the closing trade and the position.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonTrendFlip Reason = "TREND_FLIP"
	ReasonTrailHit  Reason = "TRAIL_HIT"
	ReasonStopHit   Reason = "STOP_HIT"
)

// Position is the subset of an open position the exit check reads.
type Position struct {
	Side         Side
	Strategy     string
	TrailingMode Mode
	EntryPrice   float64
	TrailingStop *float64
	StopLoss     *float64
}

// Decision carries the updated stops, which must be persisted even when no
// exit fires, plus the exit reason and price when one does.
type Decision struct {
	Reason       Reason
	Price        float64
	TrailingStop float64
	StopLoss     *float64
}

// Exit reports whether the decision closes the position.
func (d Decision) Exit() bool { return d.Reason != ReasonNone }

// Check evaluates one open position against the latest closed bar. The first
// true condition in the order trend flip, trailing stop, band stop wins.
func Check(pos Position, bar market.Candle, ind market.Indicators, params Params) (Decision, error) {
	if !ind.Ready {
		return Decision{}, fmt.Errorf("exit check: indicators: %w", errkind.ErrMissingInput)
	}
	atr, band := ind.ATR, ind.BandValue
	trail, err := UpdateTrailing(TrailInput{
		Side:       pos.Side,
		Mode:       pos.TrailingMode,
		Prev:       pos.TrailingStop,
		Candle:     bar,
		EntryPrice: pos.EntryPrice,
		Params:     params,
		ATR:        &atr,
		BandValue:  &band,
	})
	if err != nil {
		return Decision{}, err
	}
	out := Decision{TrailingStop: trail.Stop, StopLoss: pos.StopLoss, Price: bar.Close}

	stopHitNow := false
	if pos.Strategy == strategy.NameTrendCross {
		agrees := (pos.Side == Long && ind.BandDir == indicator.Up) || (pos.Side == Short && ind.BandDir == indicator.Down)
		if agrees {
			stop := band
			if pos.StopLoss != nil {
				stop = favorable(pos.Side, *pos.StopLoss, band)
			}
			out.StopLoss = &stop
			stopHitNow = stopHit(pos.Side, bar.Low, bar.High, stop)
		}
	}

	switch {
	case (pos.Side == Long && ind.BandDir == indicator.Down) || (pos.Side == Short && ind.BandDir == indicator.Up):
		out.Reason = ReasonTrendFlip
	case trail.Hit:
		out.Reason = ReasonTrailHit
	case stopHitNow:
		out.Reason = ReasonStopHit
	}
	return out, nil
}
