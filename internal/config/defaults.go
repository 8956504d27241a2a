package config

import (
	"strings"
)

const (
	defaultAppEnv           = "dev"
	defaultAppLogLevel      = "info"
	defaultAppLogFormat     = "text"
	defaultAppHTTPAddr      = ":9991"
	defaultExchangeName     = "binance"
	defaultExchangeMode     = ModePaper
	defaultBinanceREST      = "https://fapi.binance.com"
	defaultBinanceTestnet   = "https://testnet.binancefuture.com"
	defaultGateREST         = "https://api.gateio.ws/api/v4"
	defaultInterval         = "1m"
	defaultHTTPTimeout      = 10
	defaultPaperEquity      = 1000
	defaultPollInterval     = 1
	defaultKlineRefresh     = 10
	defaultKlineLookback    = 1200
	defaultHistoryLimit     = 500
	defaultFetchConcurrency = 4
	defaultBreakerThreshold = 5
	defaultBreakerCooloff   = 60
	defaultDBPath           = "data/trendbot.db"
	defaultCandleCacheDir   = "data/klines"
	defaultCandleCacheRows  = 100_000
	defaultFeeBps           = 4
	defaultSlippageBps      = 1
	defaultMaxOpen          = 3
	defaultMaxDailyLoss     = 100
	defaultMaxLeverage      = 10
	defaultCooldownMinutes  = 30
	defaultMinNotional      = 5.5
	defaultWatchlistPath    = "configs/watchlist.yaml"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Exchange.applyDefaults(keys)
	c.Engine.applyDefaults(keys)
	c.Storage.applyDefaults(keys)
	c.PnL.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	applyFieldDefaults(keys, stringFieldDefault("watchlist_path", &c.WatchlistPath, defaultWatchlistPath))
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (e *ExchangeConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.Name = strings.ToLower(strings.TrimSpace(e.Name))
	e.Mode = strings.ToLower(strings.TrimSpace(e.Mode))
	applyFieldDefaults(keys,
		stringFieldDefault("exchange.name", &e.Name, defaultExchangeName),
		stringFieldDefault("exchange.mode", &e.Mode, defaultExchangeMode),
		stringFieldDefault("exchange.interval", &e.Interval, defaultInterval),
		intFieldDefault("exchange.http_timeout_seconds", &e.HTTPTimeoutSeconds, defaultHTTPTimeout),
		floatFieldDefault("exchange.paper_equity_usdt", &e.PaperEquity, defaultPaperEquity),
	)
	if strings.TrimSpace(e.RESTBaseURL) == "" {
		switch e.Name {
		case "gate":
			e.RESTBaseURL = defaultGateREST
		default:
			if e.Mode == ModeTestnet {
				e.RESTBaseURL = defaultBinanceTestnet
				break
			}
			e.RESTBaseURL = defaultBinanceREST
		}
	}
	e.Proxy.normalize()
}

func (e *EngineConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("engine.poll_interval_seconds", &e.PollIntervalSeconds, defaultPollInterval),
		intFieldDefault("engine.kline_refresh_seconds", &e.KlineRefreshSeconds, defaultKlineRefresh),
		intFieldDefault("engine.kline_lookback", &e.KlineLookback, defaultKlineLookback),
		intFieldDefault("engine.history_limit", &e.HistoryLimit, defaultHistoryLimit),
		intFieldDefault("engine.fetch_concurrency", &e.FetchConcurrency, defaultFetchConcurrency),
		intFieldDefault("engine.breaker_threshold", &e.BreakerThreshold, defaultBreakerThreshold),
		intFieldDefault("engine.breaker_cooloff_seconds", &e.BreakerCooloffSecs, defaultBreakerCooloff),
	)
}

func (s *StorageConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("storage.db_path", &s.DBPath, defaultDBPath),
		stringFieldDefault("storage.candle_cache_dir", &s.CandleCacheDir, defaultCandleCacheDir),
		intFieldDefault("storage.candle_cache_max_rows", &s.CandleCacheMaxRows, defaultCandleCacheRows),
	)
}

func (p *PnLConfig) applyDefaults(keys keySet) {
	if p == nil {
		return
	}
	applyFieldDefaults(keys,
		floatFieldDefault("pnl.fee_bps", &p.FeeBps, defaultFeeBps),
		floatFieldDefault("pnl.slippage_bps", &p.SlippageBps, defaultSlippageBps),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	r.MinNotionalPolicy = strings.ToLower(strings.TrimSpace(r.MinNotionalPolicy))
	applyFieldDefaults(keys,
		intFieldDefault("risk.max_open_positions", &r.MaxOpenPositions, defaultMaxOpen),
		floatFieldDefault("risk.max_daily_loss_usdt", &r.MaxDailyLossUSDT, defaultMaxDailyLoss),
		floatFieldDefault("risk.max_leverage", &r.MaxLeverage, defaultMaxLeverage),
		intFieldDefault("risk.cooldown_minutes_after_loss", &r.CooldownMinutesAfterLoss, defaultCooldownMinutes),
		floatFieldDefault("risk.min_order_notional_usdt", &r.MinOrderNotionalUSDT, defaultMinNotional),
		stringFieldDefault("risk.min_notional_policy", &r.MinNotionalPolicy, MinNotionalScale),
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return target != nil && *target <= 0 },
		apply: func() { *target = def },
	}
}
