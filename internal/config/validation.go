package config

import (
	"fmt"
	"strings"

	"trendbot/internal/scheduler"
)

func validate(c *Config) error {
	if err := c.Exchange.validate(); err != nil {
		return err
	}
	if err := c.Engine.validate(); err != nil {
		return err
	}
	if err := c.PnL.validate(); err != nil {
		return err
	}
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Storage.DBPath) == "" {
		return fmt.Errorf("storage.db_path cannot be empty")
	}
	if strings.TrimSpace(c.WatchlistPath) == "" {
		return fmt.Errorf("watchlist_path cannot be empty")
	}
	return nil
}

func (e *ExchangeConfig) validate() error {
	switch e.Name {
	case "binance", "gate":
	default:
		return fmt.Errorf("exchange.name must be binance or gate, got %q", e.Name)
	}
	switch e.Mode {
	case ModePaper:
	case ModeTestnet, ModeLive:
		if e.Name != "binance" {
			return fmt.Errorf("exchange.mode=%s requires exchange.name=binance", e.Mode)
		}
		if e.APIKey == "" || e.APISecret == "" {
			return fmt.Errorf("exchange.mode=%s requires api_key and api_secret", e.Mode)
		}
	default:
		return fmt.Errorf("exchange.mode must be paper, testnet or live, got %q", e.Mode)
	}
	if e.Mode == ModeLive && !e.ConfirmLive {
		return fmt.Errorf("refusing live mode without exchange.confirm_live=true")
	}
	if _, ok := scheduler.ParseIntervalDuration(e.Interval); !ok {
		return fmt.Errorf("exchange.interval %q is not a kline interval", e.Interval)
	}
	if e.Proxy.Enabled && e.Proxy.RESTURL == "" {
		return fmt.Errorf("exchange.proxy enabled but rest_url is empty")
	}
	if e.Mode == ModePaper && e.PaperEquity <= 0 {
		return fmt.Errorf("exchange.paper_equity_usdt must be > 0")
	}
	return nil
}

func (e *EngineConfig) validate() error {
	if e.PollIntervalSeconds <= 0 {
		return fmt.Errorf("engine.poll_interval_seconds must be > 0")
	}
	if e.KlineLookback < 50 {
		return fmt.Errorf("engine.kline_lookback must be >= 50")
	}
	if e.HistoryLimit <= 0 || e.HistoryLimit > 1500 {
		return fmt.Errorf("engine.history_limit must be in [1,1500]")
	}
	if e.FetchConcurrency <= 0 {
		return fmt.Errorf("engine.fetch_concurrency must be > 0")
	}
	if e.BreakerThreshold <= 0 {
		return fmt.Errorf("engine.breaker_threshold must be > 0")
	}
	return nil
}

func (p *PnLConfig) validate() error {
	if p.FeeBps < 0 || p.SlippageBps < 0 {
		return fmt.Errorf("pnl.fee_bps and pnl.slippage_bps must be >= 0")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxOpenPositions <= 0 {
		return fmt.Errorf("risk.max_open_positions must be > 0")
	}
	if r.MaxDailyLossUSDT <= 0 {
		return fmt.Errorf("risk.max_daily_loss_usdt must be > 0")
	}
	if r.MaxLeverage <= 0 {
		return fmt.Errorf("risk.max_leverage must be > 0")
	}
	if r.CooldownMinutesAfterLoss < 0 {
		return fmt.Errorf("risk.cooldown_minutes_after_loss must be >= 0")
	}
	if r.MinOrderNotionalUSDT < 0 {
		return fmt.Errorf("risk.min_order_notional_usdt must be >= 0")
	}
	switch r.MinNotionalPolicy {
	case MinNotionalScale, MinNotionalReject:
	default:
		return fmt.Errorf("risk.min_notional_policy must be scale or reject, got %q", r.MinNotionalPolicy)
	}
	return nil
}
