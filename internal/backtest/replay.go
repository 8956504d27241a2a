// Package backtest replays archived candles through the live decision engine
// with a paper exchange, an in-memory store and a simulated clock.
package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"trendbot/internal/config"
	"trendbot/internal/engine"
	"trendbot/internal/gateway/exchange"
	"trendbot/internal/ledger"
	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/risk"
	"trendbot/internal/store"
	"trendbot/internal/store/gormstore"
	"trendbot/internal/store/model"
)

// Config is the parameter snapshot of one run.
type Config struct {
	Interval          string                `json:"interval"`
	Symbols           []config.SymbolConfig `json:"symbols"`
	InitialEquity     float64               `json:"initial_equity"`
	FeeBps            float64               `json:"fee_bps"`
	SlippageBps       float64               `json:"slippage_bps"`
	Risk              risk.Limits           `json:"risk"`
	MinNotional       float64               `json:"min_notional"`
	MinNotionalPolicy string                `json:"min_notional_policy"`
	Lookback          int                   `json:"lookback"`
}

// ConfigFrom copies the cost, risk and sizing settings of cfg.
func ConfigFrom(cfg *config.Config, symbols []config.SymbolConfig) Config {
	return Config{
		Interval:      cfg.Exchange.Interval,
		Symbols:       symbols,
		InitialEquity: cfg.Exchange.PaperEquity,
		FeeBps:        cfg.PnL.FeeBps,
		SlippageBps:   cfg.PnL.SlippageBps,
		Risk: risk.Limits{
			MaxOpenPositions: cfg.Risk.MaxOpenPositions,
			MaxDailyLoss:     cfg.Risk.MaxDailyLossUSDT,
			MaxLeverage:      cfg.Risk.MaxLeverage,
			Cooldown:         time.Duration(cfg.Risk.CooldownMinutesAfterLoss) * time.Minute,
		},
		MinNotional:       cfg.Risk.MinOrderNotionalUSDT,
		MinNotionalPolicy: cfg.Risk.MinNotionalPolicy,
		Lookback:          cfg.Engine.KlineLookback,
	}
}

// Stats summarises the realized equity curve of a run.
type Stats struct {
	InitialEquity     float64 `json:"initial_equity"`
	FinalEquity       float64 `json:"final_equity"`
	Profit            float64 `json:"profit"`
	ReturnPct         float64 `json:"return_pct"`
	WinRate           float64 `json:"win_rate"`
	MaxDrawdownPct    float64 `json:"max_drawdown_pct"`
	EquityPeak        float64 `json:"equity_peak"`
	EquityValley      float64 `json:"equity_valley"`
	Orders            int     `json:"orders"`
	Closed            int     `json:"closed"`
	OpenAtEnd         int     `json:"open_at_end"`
	Wins              int     `json:"wins"`
	Losses            int     `json:"losses"`
	AvgHoldingMinutes float64 `json:"avg_holding_minutes"`
}

type Result struct {
	Config    Config                `json:"config"`
	Start     int64                 `json:"start"`
	End       int64                 `json:"end"`
	Steps     int                   `json:"steps"`
	Stats     Stats                 `json:"stats"`
	Positions []model.PositionModel `json:"positions"`
	Daily     []model.DailyPnLModel `json:"daily"`
	Errors    []model.ErrorModel    `json:"errors,omitempty"`
}

type clock struct{ ms atomic.Int64 }

func (c *clock) Now() time.Time { return time.UnixMilli(c.ms.Load()).UTC() }

func (c *clock) set(ms int64) { c.ms.Store(ms) }

type watchlist []config.SymbolConfig

func (w watchlist) Active() []config.SymbolConfig { return w }

// Run steps the engine once per distinct close time in bars. Positions still
// open at the end are reported, not force-closed.
func Run(ctx context.Context, cfg Config, bars map[string][]market.Candle) (*Result, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("backtest: no symbols")
	}
	if cfg.InitialEquity <= 0 {
		return nil, fmt.Errorf("backtest: initial equity must be positive")
	}
	lookback := cfg.Lookback
	if lookback <= 0 {
		lookback = 500
	}
	src := NewReplaySource(bars)
	steps := src.Steps()
	if len(steps) == 0 {
		return nil, fmt.Errorf("backtest: no bars to replay")
	}

	clk := &clock{}
	clk.set(steps[0])
	st, err := gormstore.NewMemoryStore()
	if err != nil {
		return nil, fmt.Errorf("backtest: open store: %w", err)
	}
	defer st.Close()
	paper := exchange.NewPaper(cfg.InitialEquity)
	paper.SetClock(clk.Now)
	led := ledger.New(st, paper, ledger.Config{FeeBps: cfg.FeeBps, SlippageBps: cfg.SlippageBps})
	led.SetClock(clk.Now)
	gate := risk.NewGate(cfg.Risk)
	gate.SetClock(clk.Now)

	coord, err := engine.New(engine.Deps{
		Source:    src,
		Book:      market.NewBook(lookback),
		Ledger:    led,
		Store:     st,
		Exchange:  paper,
		Gate:      gate,
		Watchlist: watchlist(cfg.Symbols),
		Clock:     clk.Now,
	}, engine.Options{
		Interval:          cfg.Interval,
		HistoryLimit:      lookback,
		RefreshLimit:      3,
		FetchConcurrency:  1,
		MinNotional:       cfg.MinNotional,
		MinNotionalPolicy: cfg.MinNotionalPolicy,
	})
	if err != nil {
		return nil, err
	}

	logger.Infof("backtest: replaying %d steps over %d symbols", len(steps), len(cfg.Symbols))
	for _, t := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		clk.set(t)
		src.Advance(t)
		coord.Tick(ctx)
	}

	positions, err := st.Positions().List(ctx, store.PositionFilter{})
	if err != nil {
		return nil, fmt.Errorf("backtest: list positions: %w", err)
	}
	sort.Slice(positions, func(i, j int) bool { return positions[i].EntryTime < positions[j].EntryTime })
	daily, err := st.PnL().List(ctx)
	if err != nil {
		return nil, fmt.Errorf("backtest: list pnl: %w", err)
	}
	errs, err := st.Journal().ListErrors(ctx, 100)
	if err != nil {
		return nil, fmt.Errorf("backtest: list errors: %w", err)
	}

	res := &Result{
		Config:    cfg,
		Start:     steps[0],
		End:       steps[len(steps)-1],
		Steps:     len(steps),
		Stats:     summarize(positions, cfg.InitialEquity),
		Positions: positions,
		Daily:     daily,
		Errors:    errs,
	}
	res.Stats.Orders = len(paper.Orders())
	return res, nil
}

func summarize(positions []model.PositionModel, initial float64) Stats {
	closed := make([]model.PositionModel, 0, len(positions))
	stats := Stats{InitialEquity: initial}
	for _, p := range positions {
		if p.Status == model.PositionClosed {
			closed = append(closed, p)
		} else {
			stats.OpenAtEnd++
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].ExitTime < closed[j].ExitTime })

	start := decimal.NewFromFloat(initial)
	equity := start
	peak, valley := start, start
	maxDD := decimal.Zero
	var holdMs int64
	for _, p := range closed {
		equity = equity.Add(decimal.NewFromFloat(p.NetPnL))
		if p.NetPnL >= 0 {
			stats.Wins++
		} else {
			stats.Losses++
		}
		holdMs += p.ExitTime - p.EntryTime
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if equity.LessThan(valley) {
			valley = equity
		}
		if dd := peak.Sub(equity).Div(peak); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	hundred := decimal.NewFromInt(100)
	stats.Closed = len(closed)
	stats.FinalEquity = equity.InexactFloat64()
	stats.Profit = equity.Sub(start).InexactFloat64()
	stats.ReturnPct = equity.Sub(start).Div(start).Mul(hundred).InexactFloat64()
	stats.MaxDrawdownPct = maxDD.Mul(hundred).InexactFloat64()
	stats.EquityPeak = peak.InexactFloat64()
	stats.EquityValley = valley.InexactFloat64()
	if stats.Closed > 0 {
		stats.WinRate = float64(stats.Wins) / float64(stats.Closed) * 100
		stats.AvgHoldingMinutes = float64(holdMs) / float64(stats.Closed) / float64(time.Minute.Milliseconds())
	}
	return stats
}
