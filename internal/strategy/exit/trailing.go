package exit

import (
	"fmt"
	"strings"

	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
)

// Side of an open position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ParseSide accepts any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LONG":
		return Long, nil
	case "SHORT":
		return Short, nil
	}
	return "", fmt.Errorf("side %q: %w", s, errkind.ErrInvalidParameter)
}

// Mode selects how the trailing stop candidate is derived.
type Mode string

const (
	ModeATR   Mode = "ATR"
	ModePct   Mode = "PCT"
	ModeTrend Mode = "TREND"
)

// ParseMode accepts the mode names case-insensitively; SUPERTREND is an
// alias of TREND.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ATR":
		return ModeATR, nil
	case "PCT":
		return ModePct, nil
	case "TREND", "SUPERTREND":
		return ModeTrend, nil
	}
	return "", fmt.Errorf("trailing mode %q: %w", s, errkind.ErrInvalidParameter)
}

// Params are the per-mode multipliers.
type Params struct {
	ATRMult float64
	Pct     float64
}

// TrailInput bundles everything the calculator reads. ATR and BandValue are
// optional; a mode that needs one fails with ErrMissingInput when absent.
type TrailInput struct {
	Side       Side
	Mode       Mode
	Prev       *float64
	Candle     market.Candle
	EntryPrice float64
	Params     Params
	ATR        *float64
	BandValue  *float64
}

// Trail is the ratcheted stop and whether this bar crossed it.
type Trail struct {
	Stop float64
	Hit  bool
}

// UpdateTrailing computes the next trailing stop. A stop is never hit on the
// bar that seeds it, and once seeded it only moves in the position's favor.
func UpdateTrailing(in TrailInput) (Trail, error) {
	if in.Side != Long && in.Side != Short {
		return Trail{}, fmt.Errorf("side %q: %w", in.Side, errkind.ErrInvalidParameter)
	}
	closePx := decFromFloat(in.Candle.Close)
	var candidate float64
	switch in.Mode {
	case ModeATR:
		if in.ATR == nil {
			return Trail{}, fmt.Errorf("atr trailing: %w", errkind.ErrMissingInput)
		}
		delta := decFromFloat(*in.ATR).Mul(decFromFloat(in.Params.ATRMult))
		candidate = decToFloat(offset(in.Side, closePx, delta))
	case ModePct:
		delta := decFromFloat(in.EntryPrice).Mul(decFromFloat(in.Params.Pct))
		candidate = decToFloat(offset(in.Side, closePx, delta))
	case ModeTrend:
		if in.BandValue == nil {
			return Trail{}, fmt.Errorf("trend trailing: %w", errkind.ErrMissingInput)
		}
		candidate = *in.BandValue
	default:
		return Trail{}, fmt.Errorf("trailing mode %q: %w", in.Mode, errkind.ErrInvalidParameter)
	}
	if in.Prev == nil {
		return Trail{Stop: candidate}, nil
	}
	stop := favorable(in.Side, *in.Prev, candidate)
	return Trail{Stop: stop, Hit: stopHit(in.Side, in.Candle.Low, in.Candle.High, stop)}, nil
}
