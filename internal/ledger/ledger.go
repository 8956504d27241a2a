// Package ledger opens and closes positions through an exchange and keeps
// the position, trade and daily PnL tables consistent with the fills.
//
// Every mutation places the order first and records it afterwards in a
// single unit of work. A failed order leaves the store untouched; a started
// recording is not abandoned when the caller's context is cancelled.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trendbot/internal/gateway/exchange"
	"trendbot/internal/logger"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/store"
	"trendbot/internal/store/model"
)

// Config holds the cost model applied to every fill.
type Config struct {
	FeeBps      float64
	SlippageBps float64
}

type Ledger struct {
	store store.Store
	exch  exchange.Exchange
	cfg   Config
	now   func() time.Time
}

func New(st store.Store, exch exchange.Exchange, cfg Config) *Ledger {
	return &Ledger{store: st, exch: exch, cfg: cfg, now: time.Now}
}

// SetClock replaces the time source used for bucketing and stop updates.
func (l *Ledger) SetClock(now func() time.Time) {
	if now != nil {
		l.now = now
	}
}

// EntryRequest describes a new position.
type EntryRequest struct {
	Symbol       string
	Side         model.Side
	Qty          float64
	Price        float64
	QtyDecimals  int
	Leverage     float64
	Strategy     string
	TrailingMode string
	InitialStop  *float64
}

// Result is the outcome of an Enter or Exit.
type Result struct {
	Position model.PositionModel
	Trade    model.TradeModel
}

func orderSide(side model.Side) exchange.OrderSide {
	if side == model.SideShort {
		return exchange.Sell
	}
	return exchange.Buy
}

// Enter opens a position: one ENTER trade and one OPEN position row.
func (l *Ledger) Enter(ctx context.Context, req EntryRequest) (*Result, error) {
	if req.Qty <= 0 || req.Price <= 0 {
		return nil, fmt.Errorf("enter %s qty=%.8f price=%.8f: %w", req.Symbol, req.Qty, req.Price, errkind.ErrInvalidParameter)
	}
	if req.Side != model.SideLong && req.Side != model.SideShort {
		return nil, fmt.Errorf("enter %s side %q: %w", req.Symbol, req.Side, errkind.ErrInvalidParameter)
	}
	posID := uuid.NewString()
	fill, err := l.exch.PlaceMarket(ctx, exchange.OrderRequest{
		Symbol:        req.Symbol,
		Side:          orderSide(req.Side),
		Qty:           req.Qty,
		QtyDecimals:   req.QtyDecimals,
		RefPrice:      req.Price,
		Leverage:      req.Leverage,
		ClientOrderID: clientID(posID, model.TradeEnter),
	})
	if err != nil {
		return nil, fmt.Errorf("enter %s order: %w", req.Symbol, err)
	}

	at := l.fillTime(fill)
	costs := FillCosts(fill.Qty, fill.Price, l.cfg.FeeBps, l.cfg.SlippageBps)
	pos := model.PositionModel{
		ID:            posID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Strategy:      req.Strategy,
		Status:        model.PositionOpen,
		Qty:           fill.Qty,
		Leverage:      req.Leverage,
		EntryPrice:    fill.Price,
		EntryTime:     at.UnixMilli(),
		EntryNotional: costs.Notional,
		EntryOrderID:  fill.OrderID,
		TrailingMode:  req.TrailingMode,
		StopLoss:      req.InitialStop,
		FeesTotal:     costs.Fee,
		SlippageTotal: costs.Slippage,
		CreatedAt:     at.UnixMilli(),
		UpdatedAt:     at.UnixMilli(),
	}
	trade := l.trade(pos, fill, model.TradeEnter, req.Side, costs, "")

	err = l.record(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		if err := uow.Trades().Create(ctx, &trade); err != nil {
			return fmt.Errorf("create trade: %w", err)
		}
		if err := uow.Positions().Create(ctx, &pos); err != nil {
			return fmt.Errorf("create position: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Errorf("ledger: %s filled as %s but not recorded: %v", req.Symbol, fill.OrderID, err)
		return nil, fmt.Errorf("enter %s: %w", req.Symbol, err)
	}
	logger.Infof("ledger: opened %s %s qty=%.8f @ %.8f (%s)", req.Symbol, req.Side, pos.Qty, pos.EntryPrice, req.Strategy)
	return &Result{Position: pos, Trade: trade}, nil
}

// Exit closes the position identified by positionID at price. An already
// closed position yields errkind.ErrPositionClosed and no order is sent.
func (l *Ledger) Exit(ctx context.Context, positionID string, price float64, reason string, qtyDecimals int) (*Result, error) {
	pos, err := l.store.Positions().Get(ctx, positionID)
	if err != nil {
		return nil, fmt.Errorf("exit %s: %w", positionID, err)
	}
	if !pos.Open() {
		return nil, fmt.Errorf("exit %s %s: %w", pos.Symbol, positionID, errkind.ErrPositionClosed)
	}
	if price <= 0 {
		return nil, fmt.Errorf("exit %s price=%.8f: %w", pos.Symbol, price, errkind.ErrInvalidParameter)
	}
	closeSide := pos.Side.Opposite()
	fill, err := l.exch.PlaceMarket(ctx, exchange.OrderRequest{
		Symbol:        pos.Symbol,
		Side:          orderSide(closeSide),
		Qty:           pos.Qty,
		QtyDecimals:   qtyDecimals,
		RefPrice:      price,
		Leverage:      pos.Leverage,
		ReduceOnly:    true,
		ClientOrderID: clientID(pos.ID, model.TradeExit),
	})
	if err != nil {
		return nil, fmt.Errorf("exit %s order: %w", pos.Symbol, err)
	}

	// Exits close the whole position; the leg is booked at the position quantity.
	if fill.Qty != pos.Qty {
		logger.With("symbol", pos.Symbol).Warnf("ledger: exit fill qty %.8f differs from position qty %.8f", fill.Qty, pos.Qty)
		booked := *fill
		booked.Qty = pos.Qty
		fill = &booked
	}
	at := l.fillTime(fill)
	costs := FillCosts(fill.Qty, fill.Price, l.cfg.FeeBps, l.cfg.SlippageBps)
	closed := Realize(*pos, ExitFill{
		Price:    fill.Price,
		Fee:      costs.Fee,
		Slippage: costs.Slippage,
		Time:     at,
		Reason:   reason,
		OrderID:  fill.OrderID,
	})
	trade := l.trade(closed, fill, model.TradeExit, closeSide, costs, reason)

	err = l.record(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		current, err := uow.Positions().Get(ctx, pos.ID)
		if err != nil {
			return fmt.Errorf("reload position: %w", err)
		}
		if !current.Open() {
			return errkind.ErrPositionClosed
		}
		if err := uow.Positions().Save(ctx, &closed); err != nil {
			return fmt.Errorf("save position: %w", err)
		}
		if err := uow.Trades().Create(ctx, &trade); err != nil {
			return fmt.Errorf("create trade: %w", err)
		}
		return rebucket(ctx, uow, at)
	})
	if err != nil {
		logger.Errorf("ledger: %s exit filled as %s but not recorded: %v", pos.Symbol, fill.OrderID, err)
		return nil, fmt.Errorf("exit %s: %w", pos.Symbol, err)
	}
	logger.Infof("ledger: closed %s %s @ %.8f reason=%s net=%.4f", closed.Symbol, closed.Side, closed.ExitPrice, reason, closed.NetPnL)
	return &Result{Position: closed, Trade: trade}, nil
}

// SaveStops persists ratcheted stop levels of an open position.
func (l *Ledger) SaveStops(ctx context.Context, positionID string, trailing, stopLoss *float64) error {
	return l.record(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		pos, err := uow.Positions().Get(ctx, positionID)
		if err != nil {
			return err
		}
		if !pos.Open() {
			return errkind.ErrPositionClosed
		}
		pos.TrailingStop = trailing
		pos.StopLoss = stopLoss
		pos.UpdatedAt = l.now().UnixMilli()
		return uow.Positions().Save(ctx, pos)
	})
}

// Rebucket recomputes every daily bucket from the closed positions.
func (l *Ledger) Rebucket(ctx context.Context) error {
	return l.record(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		return rebucket(ctx, uow, l.now())
	})
}

// TodayLoss returns the realized loss of positions closed since UTC midnight.
func (l *Ledger) TodayLoss(ctx context.Context) (float64, time.Time, error) {
	closed, err := l.store.Positions().List(ctx, store.PositionFilter{Status: model.PositionClosed})
	if err != nil {
		return 0, time.Time{}, err
	}
	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	loss, last := LossSince(closed, midnight)
	return loss, last, nil
}

func rebucket(ctx context.Context, uow store.UnitOfWork, now time.Time) error {
	closed, err := uow.Positions().List(ctx, store.PositionFilter{Status: model.PositionClosed})
	if err != nil {
		return fmt.Errorf("list closed: %w", err)
	}
	if err := uow.PnL().ReplaceAll(ctx, BucketDaily(closed, now)); err != nil {
		return fmt.Errorf("replace daily pnl: %w", err)
	}
	return nil
}

// record runs fn in one unit of work. Cancellation of ctx does not
// interrupt it.
func (l *Ledger) record(ctx context.Context, fn func(context.Context, store.UnitOfWork) error) (err error) {
	ctx = context.WithoutCancel(ctx)
	uow, err := l.store.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := uow.Rollback(); rbErr != nil {
				err = errors.Join(err, rbErr)
			}
		}
	}()
	if err = fn(ctx, uow); err != nil {
		return err
	}
	if err = uow.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (l *Ledger) trade(pos model.PositionModel, fill *exchange.Fill, action model.TradeAction, side model.Side, costs Costs, reason string) model.TradeModel {
	at := l.fillTime(fill)
	return model.TradeModel{
		ID:         uuid.NewString(),
		PositionID: pos.ID,
		Exchange:   l.exch.Name(),
		Symbol:     pos.Symbol,
		Side:       side,
		Action:     action,
		Qty:        fill.Qty,
		Price:      fill.Price,
		Notional:   costs.Notional,
		Fee:        costs.Fee,
		Slippage:   costs.Slippage,
		Strategy:   pos.Strategy,
		Reason:     reason,
		OrderID:    fill.OrderID,
		ClientID:   fill.ClientOrderID,
		Timestamp:  at.UnixMilli(),
	}
}

func (l *Ledger) fillTime(fill *exchange.Fill) time.Time {
	if fill.FilledAt.IsZero() {
		return l.now()
	}
	return fill.FilledAt
}

// clientID derives a short deterministic client order id for a position leg.
func clientID(positionID string, action model.TradeAction) string {
	id := positionID
	if len(id) > 24 {
		id = id[:24]
	}
	return "tb-" + string(action)[:2] + "-" + id
}
