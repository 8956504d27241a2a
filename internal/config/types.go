package config

import "strings"

// Config is the root of config.yaml.
type Config struct {
	App           AppConfig      `toml:"app"`
	Exchange      ExchangeConfig `toml:"exchange"`
	Engine        EngineConfig   `toml:"engine"`
	Storage       StorageConfig  `toml:"storage"`
	PnL           PnLConfig      `toml:"pnl"`
	Risk          RiskConfig     `toml:"risk"`
	WatchlistPath string         `toml:"watchlist_path"`
}

type AppConfig struct {
	Env       string `toml:"env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogPath   string `toml:"log_path"`
	HTTPAddr  string `toml:"http_addr"`
}

// Exchange modes.
const (
	ModePaper   = "paper"
	ModeTestnet = "testnet"
	ModeLive    = "live"
)

// ExchangeConfig selects the candle source and where orders go.
type ExchangeConfig struct {
	// Name is the candle source: binance or gate.
	Name               string      `toml:"name"`
	Mode               string      `toml:"mode"`
	ConfirmLive        bool        `toml:"confirm_live"`
	RESTBaseURL        string      `toml:"rest_base_url"`
	APIKey             string      `toml:"api_key"`
	APISecret          string      `toml:"api_secret"`
	Interval           string      `toml:"interval"`
	HTTPTimeoutSeconds int         `toml:"http_timeout_seconds"`
	Proxy              ProxyConfig `toml:"proxy"`
	// PaperEquity is the fixed account equity reported in paper mode.
	PaperEquity float64 `toml:"paper_equity_usdt"`
}

type ProxyConfig struct {
	Enabled bool   `toml:"enabled"`
	RESTURL string `toml:"rest_url"`
}

func (p *ProxyConfig) normalize() {
	if p == nil {
		return
	}
	p.RESTURL = strings.TrimSpace(p.RESTURL)
}

// Live reports whether orders reach a real account.
func (e ExchangeConfig) Live() bool { return strings.EqualFold(e.Mode, ModeLive) }

// EngineConfig controls the polling loop and candle fetch sizing.
type EngineConfig struct {
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
	KlineRefreshSeconds int `toml:"kline_refresh_seconds"`
	KlineLookback       int `toml:"kline_lookback"`
	HistoryLimit        int `toml:"history_limit"`
	FetchConcurrency    int `toml:"fetch_concurrency"`
	BreakerThreshold    int `toml:"breaker_threshold"`
	BreakerCooloffSecs  int `toml:"breaker_cooloff_seconds"`
}

type StorageConfig struct {
	DBPath         string `toml:"db_path"`
	CandleCacheDir string `toml:"candle_cache_dir"`
	// CandleCacheMaxRows bounds each archive file; replays read from it.
	CandleCacheMaxRows int `toml:"candle_cache_max_rows"`
}

// PnLConfig is the cost model, in basis points of notional.
type PnLConfig struct {
	FeeBps      float64 `toml:"fee_bps"`
	SlippageBps float64 `toml:"slippage_bps"`
}

// Minimum notional policies.
const (
	MinNotionalScale  = "scale"
	MinNotionalReject = "reject"
)

type RiskConfig struct {
	MaxOpenPositions         int     `toml:"max_open_positions"`
	MaxDailyLossUSDT         float64 `toml:"max_daily_loss_usdt"`
	MaxLeverage              float64 `toml:"max_leverage"`
	CooldownMinutesAfterLoss int     `toml:"cooldown_minutes_after_loss"`
	MinOrderNotionalUSDT     float64 `toml:"min_order_notional_usdt"`
	MinNotionalPolicy        string  `toml:"min_notional_policy"`
}

// keySet tracks the field paths explicitly present in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes how one field falls back to its default.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
