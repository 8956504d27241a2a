package config

import (
	"fmt"
	"strings"

	"trendbot/internal/pkg/symbol"
)

// SymbolConfig is one watchlist entry. It is read-only to the engine.
type SymbolConfig struct {
	Symbol   string  `mapstructure:"symbol" json:"symbol"`
	Enabled  *bool   `mapstructure:"enabled" json:"enabled"`
	Leverage float64 `mapstructure:"leverage" json:"leverage"`

	QtyMode     string  `mapstructure:"qty_mode" json:"qty_mode"`
	QtyValue    float64 `mapstructure:"qty_value" json:"qty_value"`
	QtyDecimals int     `mapstructure:"qty_decimals" json:"qty_decimals"`

	EMAPeriod      int     `mapstructure:"ema_period" json:"ema_period"`
	BandPeriod     int     `mapstructure:"band_period" json:"band_period"`
	BandMultiplier float64 `mapstructure:"band_multiplier" json:"band_multiplier"`

	TrailingMode    string  `mapstructure:"trailing_mode" json:"trailing_mode"`
	TrailingATRMult float64 `mapstructure:"trailing_atr_mult" json:"trailing_atr_mult"`
	TrailingPct     float64 `mapstructure:"trailing_pct" json:"trailing_pct"`

	UseTrendCross bool `mapstructure:"use_trend_cross" json:"use_trend_cross"`
	UseBreakout   bool `mapstructure:"use_breakout" json:"use_breakout"`

	RangeWindow      int     `mapstructure:"range_window" json:"range_window"`
	MaxRangeWidthPct float64 `mapstructure:"max_range_width_pct" json:"max_range_width_pct"`
	RetestMaxBars    int     `mapstructure:"retest_max_bars" json:"retest_max_bars"`
}

// Watchlist defaults for fields an entry leaves empty.
const (
	defaultQtyMode          = "fixed"
	defaultQtyDecimals      = 3
	defaultEMAPeriod        = 50
	defaultBandPeriod       = 10
	defaultBandMultiplier   = 3.0
	defaultTrailingMode     = "TREND"
	defaultTrailingATRMult  = 2.0
	defaultTrailingPct      = 0.01
	defaultRangeWindow      = 120
	defaultMaxRangeWidthPct = 0.006
	defaultRetestMaxBars    = 30
)

// Active reports whether the entry takes part in the decision loop. An
// entry without an explicit enabled flag is active.
func (s SymbolConfig) Active() bool { return s.Enabled == nil || *s.Enabled }

// Normalize fills defaults and canonicalises the symbol and mode strings.
func (s SymbolConfig) Normalize() SymbolConfig {
	s.Symbol = symbol.Key(s.Symbol)
	s.QtyMode = strings.ToLower(strings.TrimSpace(s.QtyMode))
	if s.QtyMode == "" {
		s.QtyMode = defaultQtyMode
	}
	s.TrailingMode = strings.ToUpper(strings.TrimSpace(s.TrailingMode))
	if s.TrailingMode == "" {
		s.TrailingMode = defaultTrailingMode
	}
	if s.Leverage <= 0 {
		s.Leverage = 1
	}
	if s.QtyDecimals <= 0 {
		s.QtyDecimals = defaultQtyDecimals
	}
	if s.EMAPeriod <= 0 {
		s.EMAPeriod = defaultEMAPeriod
	}
	if s.BandPeriod <= 0 {
		s.BandPeriod = defaultBandPeriod
	}
	if s.BandMultiplier <= 0 {
		s.BandMultiplier = defaultBandMultiplier
	}
	if s.TrailingATRMult <= 0 {
		s.TrailingATRMult = defaultTrailingATRMult
	}
	if s.TrailingPct <= 0 {
		s.TrailingPct = defaultTrailingPct
	}
	if s.RangeWindow <= 0 {
		s.RangeWindow = defaultRangeWindow
	}
	if s.MaxRangeWidthPct <= 0 {
		s.MaxRangeWidthPct = defaultMaxRangeWidthPct
	}
	if s.RetestMaxBars <= 0 {
		s.RetestMaxBars = defaultRetestMaxBars
	}
	return s
}

// Validate checks a normalized entry.
func (s SymbolConfig) Validate() error {
	if !symbol.IsValid(s.Symbol) {
		return fmt.Errorf("watchlist symbol %q is not a base/quote pair", s.Symbol)
	}
	switch s.QtyMode {
	case "fixed", "percent":
	default:
		return fmt.Errorf("watchlist %s: qty_mode must be fixed or percent, got %q", s.Symbol, s.QtyMode)
	}
	if s.QtyValue <= 0 {
		return fmt.Errorf("watchlist %s: qty_value must be > 0", s.Symbol)
	}
	switch s.TrailingMode {
	case "ATR", "PCT", "TREND", "SUPERTREND":
	default:
		return fmt.Errorf("watchlist %s: trailing_mode must be ATR, PCT or TREND, got %q", s.Symbol, s.TrailingMode)
	}
	if !s.UseTrendCross && !s.UseBreakout {
		return fmt.Errorf("watchlist %s: enable at least one of use_trend_cross, use_breakout", s.Symbol)
	}
	return nil
}
