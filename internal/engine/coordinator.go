// Package engine runs one decision pass over the watchlist per tick: fetch
// closed candles, update market state, manage exits, then consider entries.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"trendbot/internal/config"
	"trendbot/internal/gateway/exchange"
	"trendbot/internal/ledger"
	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/metrics"
	"trendbot/internal/pkg/circuit"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/risk"
	"trendbot/internal/store"
)

// Watchlist supplies the enabled symbol entries for one tick.
type Watchlist interface {
	Active() []config.SymbolConfig
}

// Options sizes candle fetches and the minimum order notional.
type Options struct {
	Interval string
	// HistoryLimit is requested on the first fetch of a symbol in this process.
	HistoryLimit int
	// RefreshLimit is requested on every later fetch.
	RefreshLimit      int
	FetchConcurrency  int
	MinNotional       float64
	MinNotionalPolicy string
}

// RefreshLimit derives the steady-state fetch size: two bars per refresh
// second, at least three, never more than the lookback.
func RefreshLimit(refreshSeconds, lookback int) int {
	n := refreshSeconds * 2
	if n < 3 {
		n = 3
	}
	if lookback > 0 && n > lookback {
		n = lookback
	}
	return n
}

// OptionsFromConfig maps the engine and risk sections onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Interval:          cfg.Exchange.Interval,
		HistoryLimit:      cfg.Engine.HistoryLimit,
		RefreshLimit:      RefreshLimit(cfg.Engine.KlineRefreshSeconds, cfg.Engine.KlineLookback),
		FetchConcurrency:  cfg.Engine.FetchConcurrency,
		MinNotional:       cfg.Risk.MinOrderNotionalUSDT,
		MinNotionalPolicy: cfg.Risk.MinNotionalPolicy,
	}
}

// Deps are the collaborators a Coordinator drives.
type Deps struct {
	Source    market.Source
	Archive   market.KlineStore
	Book      *market.Book
	Ledger    *ledger.Ledger
	Store     store.Store
	Exchange  exchange.Exchange
	Gate      *risk.Gate
	Breakers  *circuit.Set
	Metrics   *metrics.Metrics
	Watchlist Watchlist
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Coordinator owns the per-tick control flow. Tick must not be called
// concurrently with itself.
type Coordinator struct {
	source    market.Source
	archive   market.KlineStore
	book      *market.Book
	ledger    *ledger.Ledger
	store     store.Store
	exch      exchange.Exchange
	gate      *risk.Gate
	breakers  *circuit.Set
	metrics   *metrics.Metrics
	watchlist Watchlist
	opts      Options

	now     func() time.Time
	fetched map[string]bool
	equity  *float64
}

func New(d Deps, opts Options) (*Coordinator, error) {
	if d.Source == nil || d.Book == nil || d.Ledger == nil || d.Store == nil || d.Exchange == nil || d.Gate == nil || d.Watchlist == nil {
		return nil, fmt.Errorf("engine: source, book, ledger, store, exchange, gate and watchlist are required")
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 500
	}
	if opts.RefreshLimit <= 0 {
		opts.RefreshLimit = 3
	}
	if opts.MinNotionalPolicy == "" {
		opts.MinNotionalPolicy = config.MinNotionalScale
	}
	breakers := d.Breakers
	if breakers == nil {
		breakers = circuit.NewSet(5, time.Minute)
	}
	now := d.Clock
	if now == nil {
		now = time.Now
	}
	m := d.Metrics
	breakers.OnStateChange(func(name string, from, to circuit.State) {
		logger.With("symbol", name).Warnf("engine: candle fetch circuit %s -> %s", from, to)
		m.SetCircuitState(name, int(to))
	})
	return &Coordinator{
		source:    d.Source,
		archive:   d.Archive,
		book:      d.Book,
		ledger:    d.Ledger,
		store:     d.Store,
		exch:      d.Exchange,
		gate:      d.Gate,
		breakers:  breakers,
		metrics:   m,
		watchlist: d.Watchlist,
		opts:      opts,
		now:       now,
		fetched:   make(map[string]bool),
	}, nil
}

// Restore rebuilds market state from the candle archive, re-anchors the
// persisted breakout machines of watched symbols and seeds the risk gate
// with today's realized loss.
func (c *Coordinator) Restore(ctx context.Context, maxBars int) error {
	entries := c.watchlist.Active()
	targets := make(map[string]market.IndicatorParams, len(entries))
	for _, e := range entries {
		targets[e.Symbol] = indicatorParams(e)
	}
	if c.archive != nil {
		market.NewPreheater(c.archive, c.book, maxBars).Preheat(ctx, c.opts.Interval, targets)
	}
	rows, err := c.store.BotState().List(ctx)
	if err != nil {
		return fmt.Errorf("load bot state: %w", err)
	}
	for _, row := range rows {
		if _, ok := targets[row.Symbol]; !ok {
			continue
		}
		c.book.RestoreBreakout(row.Symbol, market.BreakoutPhase(row.Phase), row.Level, row.BarsElapsed)
		c.metrics.SetBreakoutPhase(row.Symbol, phaseCode(market.BreakoutPhase(row.Phase)))
		if row.Phase != string(market.PhaseIdle) {
			logger.With("symbol", row.Symbol).Infof("engine: restored breakout %s level=%.8f bars=%d", row.Phase, row.Level, row.BarsElapsed)
		}
	}
	if err := c.ledger.Rebucket(ctx); err != nil {
		logger.Warnf("engine: rebuild daily pnl: %v", err)
	}
	loss, last, err := c.ledger.TodayLoss(ctx)
	if err != nil {
		return fmt.Errorf("seed daily loss: %w", err)
	}
	c.gate.Seed(loss, last)
	c.refreshGauges(ctx)
	logger.Infof("engine: restored %d symbols, daily loss %.4f", len(targets), loss)
	return nil
}

// Tick runs one pass over the active watchlist. Candle fetches run
// concurrently; each symbol is then processed in watchlist order with its
// failures isolated from the others.
func (c *Coordinator) Tick(ctx context.Context) {
	start := time.Now()
	c.equity = nil
	entries := c.watchlist.Active()
	batches := c.fetchAll(ctx, entries)
	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if err := c.runSymbol(ctx, entry, batches[i]); err != nil {
			c.recordFailure(ctx, entry.Symbol, err)
		}
	}
	c.persistState(ctx)
	c.refreshGauges(ctx)
	c.metrics.ObserveTick(time.Since(start))
}

type fetchResult struct {
	candles []market.Candle
	err     error
	skipped bool
}

func (c *Coordinator) fetchAll(ctx context.Context, entries []config.SymbolConfig) []fetchResult {
	out := make([]fetchResult, len(entries))
	var g errgroup.Group
	g.SetLimit(c.opts.FetchConcurrency)
	for i, e := range entries {
		i, e := i, e
		if !c.breakers.Get(e.Symbol).Allow() {
			out[i].skipped = true
			continue
		}
		limit := c.fetchLimit(e.Symbol)
		g.Go(func() error {
			candles, err := c.source.FetchHistory(ctx, e.Symbol, c.opts.Interval, limit)
			if err != nil {
				err = fmt.Errorf("fetch %s %s limit=%d: %w: %w", e.Symbol, c.opts.Interval, limit, errkind.ErrMarketDataGap, err)
			}
			out[i] = fetchResult{candles: candles, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Coordinator) fetchLimit(symbol string) int {
	if c.fetched[symbol] {
		return c.opts.RefreshLimit
	}
	return c.opts.HistoryLimit
}

func (c *Coordinator) persistState(ctx context.Context) {
	if err := c.store.BotState().ReplaceAll(context.WithoutCancel(ctx), botStateRows(c.book, c.now())); err != nil {
		logger.Errorf("engine: persist bot state: %v", err)
		c.journalError(ctx, "", "bot_state", err)
	}
}

func (c *Coordinator) refreshGauges(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	if n, err := c.store.Positions().CountOpen(ctx); err == nil {
		c.metrics.SetOpenPositions(n)
	}
	c.metrics.SetDailyLoss(c.gate.DailyLoss())
}

// accountEquity is fetched at most once per tick.
func (c *Coordinator) accountEquity(ctx context.Context) (float64, error) {
	if c.equity != nil {
		return *c.equity, nil
	}
	eq, err := c.exch.Equity(ctx)
	if err != nil {
		return 0, fmt.Errorf("equity: %w", err)
	}
	c.equity = &eq
	return eq, nil
}

func indicatorParams(e config.SymbolConfig) market.IndicatorParams {
	return market.IndicatorParams{
		EMAPeriod:      e.EMAPeriod,
		BandPeriod:     e.BandPeriod,
		BandMultiplier: e.BandMultiplier,
	}
}

func phaseCode(p market.BreakoutPhase) int {
	switch p {
	case market.PhaseWaitRetestLong:
		return 1
	case market.PhaseWaitRetestShort:
		return -1
	}
	return 0
}
