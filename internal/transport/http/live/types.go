package livehttp

import (
	"trendbot/internal/market"
	"trendbot/internal/store/model"
)

// PositionView is a position row plus its mark-to-market when open.
type PositionView struct {
	model.PositionModel
	MarkPrice     *float64 `json:"mark_price,omitempty"`
	UnrealizedPnL *float64 `json:"unrealized_pnl,omitempty"`
}

// SymbolView is the per-symbol market and strategy state.
type SymbolView struct {
	Symbol        string                `json:"symbol"`
	Watched       bool                  `json:"watched"`
	UseTrendCross bool                  `json:"use_trend_cross,omitempty"`
	UseBreakout   bool                  `json:"use_breakout,omitempty"`
	TrailingMode  string                `json:"trailing_mode,omitempty"`
	Bars          int                   `json:"bars"`
	LastCloseTime int64                 `json:"last_close_time"`
	Close         float64               `json:"close"`
	Indicators    *market.Indicators    `json:"indicators,omitempty"`
	Breakout      *market.BreakoutState `json:"breakout,omitempty"`
	BarsElapsed   int64                 `json:"bars_elapsed"`
}
