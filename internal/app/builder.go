package app

import (
	"context"
	"fmt"
	"time"

	"trendbot/internal/config"
	cfgloader "trendbot/internal/config/loader"
	"trendbot/internal/engine"
	"trendbot/internal/gateway"
	"trendbot/internal/gateway/exchange"
	"trendbot/internal/ledger"
	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/metrics"
	"trendbot/internal/pkg/circuit"
	"trendbot/internal/risk"
	"trendbot/internal/scheduler"
	"trendbot/internal/store"
	"trendbot/internal/store/candlecache"
	"trendbot/internal/store/gormstore"
	livehttp "trendbot/internal/transport/http/live"
)

type AppBuilder struct {
	cfg *config.Config

	storeFn     func(config.StorageConfig) (store.Store, error)
	archiveFn   func(config.StorageConfig, int) (market.KlineStore, func() error, error)
	sourceFn    func(*config.Config) (market.Source, error)
	exchangeFn  func(*config.Config) (exchange.Exchange, error)
	watchlistFn func(string) (*cfgloader.WatchlistLoader, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:         cfg,
		storeFn:     openStore,
		archiveFn:   openArchive,
		sourceFn:    gateway.NewSourceFromConfig,
		exchangeFn:  gateway.NewExchangeFromConfig,
		watchlistFn: cfgloader.NewWatchlistLoader,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// WithStore replaces the SQLite file store, e.g. with an in-memory one.
func WithStore(st store.Store) AppBuilderOption {
	return func(b *AppBuilder) {
		b.storeFn = func(config.StorageConfig) (store.Store, error) { return st, nil }
	}
}

func WithSource(src market.Source) AppBuilderOption {
	return func(b *AppBuilder) {
		b.sourceFn = func(*config.Config) (market.Source, error) { return src, nil }
	}
}

func WithExchange(ex exchange.Exchange) AppBuilderOption {
	return func(b *AppBuilder) {
		b.exchangeFn = func(*config.Config) (exchange.Exchange, error) { return ex, nil }
	}
}

func openStore(cfg config.StorageConfig) (store.Store, error) {
	return gormstore.NewGormStore(cfg.DBPath)
}

// openArchive falls back to an in-process store when no cache dir is set;
// market state is then rebuilt from the exchange after a restart.
func openArchive(cfg config.StorageConfig, maxRows int) (market.KlineStore, func() error, error) {
	if cfg.CandleCacheDir == "" {
		return store.NewMemoryKlineStore(maxRows), nil, nil
	}
	cache, err := candlecache.New(cfg.CandleCacheDir, maxRows)
	if err != nil {
		return nil, nil, err
	}
	return cache, cache.Close, nil
}

func (b *AppBuilder) Build(ctx context.Context) (app *App, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg
	a := &App{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	st, err := b.storeFn(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.closers = append(a.closers, st.Close)

	archive, closeArchive, err := b.archiveFn(cfg.Storage, max(cfg.Storage.CandleCacheMaxRows, cfg.Engine.KlineLookback))
	if err != nil {
		return nil, fmt.Errorf("open candle archive: %w", err)
	}
	if closeArchive != nil {
		a.closers = append(a.closers, closeArchive)
	}

	src, err := b.sourceFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("market source: %w", err)
	}
	exch, err := b.exchangeFn(cfg)
	if err != nil {
		return nil, fmt.Errorf("exchange: %w", err)
	}

	wl, err := b.watchlistFn(cfg.WatchlistPath)
	if err != nil {
		return nil, fmt.Errorf("watchlist: %w", err)
	}
	a.watchlist = wl

	book := market.NewBook(cfg.Engine.KlineLookback)
	led := ledger.New(st, exch, ledger.Config{FeeBps: cfg.PnL.FeeBps, SlippageBps: cfg.PnL.SlippageBps})
	gate := risk.NewGate(risk.Limits{
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		MaxDailyLoss:     cfg.Risk.MaxDailyLossUSDT,
		MaxLeverage:      cfg.Risk.MaxLeverage,
		Cooldown:         time.Duration(cfg.Risk.CooldownMinutesAfterLoss) * time.Minute,
	})
	m := metrics.New()

	coord, err := engine.New(engine.Deps{
		Source:    src,
		Archive:   archive,
		Book:      book,
		Ledger:    led,
		Store:     st,
		Exchange:  exch,
		Gate:      gate,
		Breakers:  circuit.NewSet(cfg.Engine.BreakerThreshold, time.Duration(cfg.Engine.BreakerCooloffSecs)*time.Second),
		Metrics:   m,
		Watchlist: wl,
	}, engine.OptionsFromConfig(cfg))
	if err != nil {
		return nil, err
	}
	if err := coord.Restore(ctx, cfg.Engine.KlineLookback); err != nil {
		return nil, fmt.Errorf("restore: %w", err)
	}
	a.coordinator = coord

	srv, err := livehttp.NewServer(livehttp.ServerConfig{
		Addr:      cfg.App.HTTPAddr,
		Store:     st,
		Book:      book,
		Watchlist: wl,
		Metrics:   m.Handler(),
	})
	if err != nil {
		return nil, err
	}
	a.http = srv
	a.poller = scheduler.NewPoller(time.Duration(cfg.Engine.PollIntervalSeconds) * time.Second)
	a.Summary = buildSummary(cfg, src.Name(), exch.Name(), wl.Active())

	logger.Infof("app: built (source=%s exchange=%s symbols=%d)", src.Name(), exch.Name(), len(wl.Active()))
	return a, nil
}
