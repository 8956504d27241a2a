package app

import (
	"fmt"
	"strings"

	"trendbot/internal/config"
)

type StartupSummary struct {
	Exchange ExchangeSummary
	Engine   EngineSummary
	Risk     config.RiskConfig
	Symbols  []SymbolDetail
}

type ExchangeSummary struct {
	Source   string
	Executor string
	Mode     string
	Interval string
	HTTPAddr string
}

type EngineSummary struct {
	PollInterval int
	Lookback     int
	HistoryLimit int
	FetchWorkers int
}

type SymbolDetail struct {
	Symbol     string
	Strategies []string
	Trailing   string
	Sizing     string
}

func buildSummary(cfg *config.Config, source, executor string, entries []config.SymbolConfig) *StartupSummary {
	s := &StartupSummary{
		Exchange: ExchangeSummary{
			Source:   source,
			Executor: executor,
			Mode:     cfg.Exchange.Mode,
			Interval: cfg.Exchange.Interval,
			HTTPAddr: cfg.App.HTTPAddr,
		},
		Engine: EngineSummary{
			PollInterval: cfg.Engine.PollIntervalSeconds,
			Lookback:     cfg.Engine.KlineLookback,
			HistoryLimit: cfg.Engine.HistoryLimit,
			FetchWorkers: cfg.Engine.FetchConcurrency,
		},
		Risk: cfg.Risk,
	}
	for _, e := range entries {
		s.Symbols = append(s.Symbols, describeSymbol(e))
	}
	return s
}

func describeSymbol(e config.SymbolConfig) SymbolDetail {
	var strategies []string
	if e.UseTrendCross {
		strategies = append(strategies, fmt.Sprintf("trend_cross(ema=%d band=%d x%.2f)", e.EMAPeriod, e.BandPeriod, e.BandMultiplier))
	}
	if e.UseBreakout {
		strategies = append(strategies, fmt.Sprintf("breakout_retest(window=%d width<=%.4f retest<=%d)", e.RangeWindow, e.MaxRangeWidthPct, e.RetestMaxBars))
	}
	trailing := e.TrailingMode
	switch strings.ToUpper(e.TrailingMode) {
	case "ATR":
		trailing = fmt.Sprintf("ATR x%.2f", e.TrailingATRMult)
	case "PCT":
		trailing = fmt.Sprintf("PCT %.4f", e.TrailingPct)
	}
	return SymbolDetail{
		Symbol:     e.Symbol,
		Strategies: strategies,
		Trailing:   trailing,
		Sizing:     fmt.Sprintf("%s %.4f (qty decimals %d, leverage %.0fx)", e.QtyMode, e.QtyValue, e.QtyDecimals, e.Leverage),
	}
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[EXCHANGE]")
	fmt.Printf("  candles:  %s\n", s.Exchange.Source)
	fmt.Printf("  orders:   %s (mode=%s)\n", s.Exchange.Executor, s.Exchange.Mode)
	fmt.Printf("  interval: %s\n", s.Exchange.Interval)
	fmt.Printf("  status:   %s\n", s.Exchange.HTTPAddr)
	fmt.Println()

	fmt.Println("[ENGINE]")
	fmt.Printf("  poll every %ds, lookback %d, first fetch %d, %d fetch workers\n",
		s.Engine.PollInterval, s.Engine.Lookback, s.Engine.HistoryLimit, s.Engine.FetchWorkers)
	fmt.Println()

	fmt.Println("[RISK]")
	fmt.Printf("  max open %d, max daily loss %.2f USDT, max leverage %.1fx\n",
		s.Risk.MaxOpenPositions, s.Risk.MaxDailyLossUSDT, s.Risk.MaxLeverage)
	fmt.Printf("  cooldown %dm after loss, min notional %.2f USDT (%s)\n",
		s.Risk.CooldownMinutesAfterLoss, s.Risk.MinOrderNotionalUSDT, s.Risk.MinNotionalPolicy)
	fmt.Println()

	fmt.Println("[SYMBOLS]")
	if len(s.Symbols) == 0 {
		fmt.Println("  (none)")
	}
	for _, d := range s.Symbols {
		fmt.Printf("  > %s\n", d.Symbol)
		fmt.Printf("    strategies: %s\n", formatList(d.Strategies))
		fmt.Printf("    trailing:   %s\n", d.Trailing)
		fmt.Printf("    sizing:     %s\n", d.Sizing)
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
