package engine

import (
	"context"
	"errors"
	"fmt"

	"trendbot/internal/config"
	"trendbot/internal/ledger"
	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/pkg/trading"
	"trendbot/internal/risk"
	"trendbot/internal/store"
	"trendbot/internal/store/model"
	"trendbot/internal/strategy"
	"trendbot/internal/strategy/exit"
)

// runSymbol processes one symbol: market state first, then exits, then an
// entry only when the symbol had no open position at the start of the pass.
// Strategies and exits only run when a new closed bar was accepted.
func (c *Coordinator) runSymbol(ctx context.Context, entry config.SymbolConfig, res fetchResult) (err error) {
	sym := entry.Symbol
	log := logger.With("symbol", sym)
	defer func() {
		if r := recover(); r != nil {
			err = stageErr("engine", "PANIC", fmt.Errorf("panic: %v", r))
		}
	}()
	if res.skipped {
		log.Debugf("engine: candle fetch circuit open, skipped")
		return nil
	}
	br := c.breakers.Get(sym)
	if res.err != nil {
		br.RecordFailure()
		return stageErr("market_data", "KLINE_FETCH", res.err)
	}
	br.RecordSuccess()
	c.fetched[sym] = true

	prevLast := c.book.LastCloseTime(sym)
	closed := market.FilterClosed(res.candles, c.now())
	accepted, err := c.book.Apply(sym, closed, indicatorParams(entry))
	if err != nil {
		return stageErr("market_state", "", err)
	}
	if accepted == 0 {
		return nil
	}
	c.archiveNew(ctx, sym, closed, prevLast)

	snap, ok := c.book.Snapshot(sym)
	if !ok {
		return nil
	}
	c.metrics.SetLastClose(sym, snap.LastCloseTime)
	if !snap.Current.Ready {
		log.Debugf("engine: indicators warming up (%d bars)", len(snap.Candles))
		return nil
	}

	hadOpen, err := c.manageExits(ctx, entry, snap)
	if err != nil || hadOpen {
		return err
	}
	return c.tryEnter(ctx, entry, snap)
}

func (c *Coordinator) archiveNew(ctx context.Context, sym string, closed []market.Candle, prevLast int64) {
	if c.archive == nil {
		return
	}
	fresh := make([]market.Candle, 0, len(closed))
	for _, k := range closed {
		if k.CloseTime > prevLast {
			fresh = append(fresh, k)
		}
	}
	if err := c.archive.Put(ctx, sym, c.opts.Interval, fresh); err != nil {
		logger.With("symbol", sym).Warnf("engine: archive %d bars failed: %v", len(fresh), err)
	}
}

// manageExits evaluates every open position of the symbol against the last
// bar. It reports whether the symbol had an open position, in which case
// no entry is considered on this pass.
func (c *Coordinator) manageExits(ctx context.Context, entry config.SymbolConfig, snap market.Snapshot) (bool, error) {
	open, err := c.store.Positions().List(ctx, store.PositionFilter{Symbol: entry.Symbol, Status: model.PositionOpen})
	if err != nil {
		return false, stageErr("positions", "STORE", err)
	}
	if len(open) == 0 {
		return false, nil
	}
	bar, _ := snap.Last()
	for _, pos := range open {
		if err := c.checkExit(ctx, entry, snap, bar, pos); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (c *Coordinator) checkExit(ctx context.Context, entry config.SymbolConfig, snap market.Snapshot, bar market.Candle, pos model.PositionModel) error {
	side, err := exit.ParseSide(string(pos.Side))
	if err != nil {
		return stageErr("exit", "", err)
	}
	mode, err := exit.ParseMode(pos.TrailingMode)
	if err != nil {
		return stageErr("exit", "", err)
	}
	dec, err := exit.Check(exit.Position{
		Side:         side,
		Strategy:     pos.Strategy,
		TrailingMode: mode,
		EntryPrice:   pos.EntryPrice,
		TrailingStop: pos.TrailingStop,
		StopLoss:     pos.StopLoss,
	}, bar, snap.Current, exit.Params{ATRMult: entry.TrailingATRMult, Pct: entry.TrailingPct})
	if err != nil {
		if errkind.NotReady(err) {
			logger.With("symbol", pos.Symbol).Debugf("engine: exit check not ready: %v", err)
			return nil
		}
		return stageErr("exit", "", err)
	}
	if !dec.Exit() {
		trail := dec.TrailingStop
		if err := c.ledger.SaveStops(ctx, pos.ID, &trail, dec.StopLoss); err != nil {
			return stageErr("positions", "STORE", fmt.Errorf("save stops %s: %w", pos.ID, err))
		}
		return nil
	}

	res, err := c.ledger.Exit(ctx, pos.ID, dec.Price, string(dec.Reason), entry.QtyDecimals)
	if err != nil {
		return stageErr("ledger", "EXIT", err)
	}
	closed := res.Position
	c.gate.RecordClose(closed.NetPnL, fillTime(closed.ExitTime))
	c.metrics.RecordExit(closed.Symbol, string(dec.Reason), closed.NetPnL)
	c.journalSignal(ctx, snap, closed.Strategy, "EXIT_"+string(closed.Side), dec.Price, string(dec.Reason))
	return nil
}

// tryEnter consults the risk gate before the router, so a rejected pass
// leaves the breakout machine where it was.
func (c *Coordinator) tryEnter(ctx context.Context, entry config.SymbolConfig, snap market.Snapshot) error {
	sym := entry.Symbol
	log := logger.With("symbol", sym)
	openCount, err := c.store.Positions().CountOpen(ctx)
	if err != nil {
		return stageErr("positions", "STORE", err)
	}
	equity, err := c.accountEquity(ctx)
	if err != nil {
		return stageErr("exchange", "EQUITY", err)
	}
	if err := c.gate.Allow(openCount, equity); err != nil {
		if errors.Is(err, risk.ErrRejected) {
			log.Debugf("engine: entry blocked: %v", err)
			c.metrics.RecordRejected(sym, "risk")
			return nil
		}
		return stageErr("risk", "", err)
	}

	ev := routerFor(entry).Route(snap, entry.UseTrendCross, entry.UseBreakout)
	if ev.Breakout != snap.Breakout {
		log.Infof("engine: breakout %s -> %s level=%.8f", snap.Breakout.Phase, ev.Breakout.Phase, ev.Breakout.Level)
	}
	c.book.CommitBreakout(sym, ev.Breakout)
	c.metrics.SetBreakoutPhase(sym, phaseCode(ev.Breakout.Phase))
	if ev.Signal == nil {
		return nil
	}
	sig := ev.Signal
	bar, _ := snap.Last()
	price := bar.Close
	c.metrics.RecordSignal(sym, sig.Strategy, string(sig.Action))
	log.Infof("engine: signal %s %s @ %.8f (%s)", sig.Strategy, sig.Action, price, sig.Reason)

	qty, err := c.size(ctx, entry, price)
	if errors.Is(err, trading.ErrZeroQty) {
		c.metrics.RecordRejected(sym, "qty_precision")
		c.journalError(ctx, sym, "sizing", stageErr("sizing", "QTY_ZERO",
			fmt.Errorf("%s at %.8f: %w, entry skipped", sig.Action, price, err)))
		return nil
	}
	if err != nil {
		return stageErr("sizing", "", err)
	}
	if qty <= 0 {
		c.metrics.RecordRejected(sym, "min_notional")
		c.journalError(ctx, sym, "sizing", stageErr("sizing", "MIN_NOTIONAL",
			fmt.Errorf("%s qty below %.4f notional at %.8f, entry skipped", sig.Action, c.opts.MinNotional, price)))
		return nil
	}

	res, err := c.ledger.Enter(ctx, ledger.EntryRequest{
		Symbol:       sym,
		Side:         model.Side(sig.Action.Side()),
		Qty:          qty,
		Price:        price,
		QtyDecimals:  entry.QtyDecimals,
		Leverage:     entry.Leverage,
		Strategy:     sig.Strategy,
		TrailingMode: entry.TrailingMode,
		InitialStop:  sig.InitialStop,
	})
	if err != nil {
		return stageErr("ledger", "ENTER", err)
	}
	c.metrics.RecordEntry(sym, sig.Strategy, string(res.Position.Side))
	c.journalSignal(ctx, snap, sig.Strategy, string(sig.Action), price, sig.Reason)
	return nil
}

// size converts the watchlist rule into an order quantity and applies the
// minimum notional policy. A zero quantity means the min notional policy
// rejected the entry.
func (c *Coordinator) size(ctx context.Context, entry config.SymbolConfig, price float64) (float64, error) {
	var equity *float64
	if trading.SizingMode(entry.QtyMode) == trading.SizingPercent {
		eq, err := c.accountEquity(ctx)
		if err != nil {
			return 0, err
		}
		equity = &eq
	}
	qty, err := trading.ComputeQty(trading.SizingMode(entry.QtyMode), entry.QtyValue, price, equity)
	if err != nil {
		return 0, err
	}
	raw := qty
	qty = trading.RoundQty(qty, entry.QtyDecimals)
	scaled, changed := trading.ApplyMinNotional(qty, price, c.opts.MinNotional, entry.QtyDecimals)
	if !changed {
		if qty <= 0 {
			return 0, fmt.Errorf("qty %.8f at %d decimals: %w", raw, entry.QtyDecimals, trading.ErrZeroQty)
		}
		return qty, nil
	}
	if c.opts.MinNotionalPolicy == config.MinNotionalReject {
		return 0, nil
	}
	logger.With("symbol", entry.Symbol).Infof("engine: qty %.8f raised to %.8f for min notional %.4f", qty, scaled, c.opts.MinNotional)
	return scaled, nil
}

func routerFor(e config.SymbolConfig) strategy.Router {
	return strategy.Router{
		TrendCross: strategy.TrendCross{},
		BreakoutRetest: strategy.BreakoutRetest{
			Window:        e.RangeWindow,
			MaxWidthPct:   e.MaxRangeWidthPct,
			RetestMaxBars: e.RetestMaxBars,
		},
	}
}
