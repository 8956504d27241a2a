package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"trendbot/internal/gateway/exchange"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/store"
	"trendbot/internal/store/gormstore"
	"trendbot/internal/store/model"
)

type MockExchange struct {
	mock.Mock
}

func (m *MockExchange) Name() string { return "mock" }

func (m *MockExchange) PlaceMarket(ctx context.Context, req exchange.OrderRequest) (*exchange.Fill, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*exchange.Fill), args.Error(1)
}

func (m *MockExchange) Equity(ctx context.Context) (float64, error) {
	args := m.Called(ctx)
	return args.Get(0).(float64), args.Error(1)
}

// failCommitStore rolls back every unit of work and reports err from Commit.
type failCommitStore struct {
	store.Store
	err error
}

func (s failCommitStore) Begin(ctx context.Context) (store.UnitOfWork, error) {
	uow, err := s.Store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return failCommitUnit{UnitOfWork: uow, err: s.err}, nil
}

type failCommitUnit struct {
	store.UnitOfWork
	err error
}

func (u failCommitUnit) Commit() error {
	_ = u.UnitOfWork.Rollback()
	return u.err
}

func newStore(t *testing.T) *gormstore.GormStore {
	t.Helper()
	st, err := gormstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newLedger(st store.Store, exch exchange.Exchange) *Ledger {
	l := New(st, exch, Config{FeeBps: 5, SlippageBps: 2.5})
	l.now = func() time.Time { return t0 }
	return l
}

func TestRealize(t *testing.T) {
	t.Run("long gains", func(t *testing.T) {
		pos := model.PositionModel{Side: model.SideLong, Qty: 1, EntryPrice: 100, EntryNotional: 100, Status: model.PositionOpen}
		out := Realize(pos, ExitFill{Price: 110, Fee: 0.1, Slippage: 0.05, Time: t0, Reason: "TRAIL_HIT"})
		assert.Equal(t, model.PositionClosed, out.Status)
		assert.InDelta(t, 10.0, out.GrossPnL, 1e-12)
		assert.InDelta(t, 9.85, out.NetPnL, 1e-12)
		assert.InDelta(t, 10.0, out.ReturnPct, 1e-12)
		assert.InDelta(t, 9.85, out.NetReturnPct, 1e-12)
		assert.InDelta(t, 110.0, out.ExitNotional, 1e-12)
		assert.InDelta(t, 105.0, out.AvgNotional, 1e-12)
		assert.Equal(t, "TRAIL_HIT", out.ExitReason)
		assert.Equal(t, t0.UnixMilli(), out.ExitTime)
		assert.Equal(t, model.PositionOpen, pos.Status)
	})

	t.Run("short gains when price falls", func(t *testing.T) {
		pos := model.PositionModel{Side: model.SideShort, Qty: 2, EntryPrice: 50, EntryNotional: 100, FeesTotal: 0.05}
		out := Realize(pos, ExitFill{Price: 45, Fee: 0.05, Time: t0})
		assert.InDelta(t, 10.0, out.GrossPnL, 1e-12)
		assert.InDelta(t, 0.1, out.FeesTotal, 1e-12)
		assert.InDelta(t, 9.9, out.NetPnL, 1e-12)
	})
}

func TestUnrealized(t *testing.T) {
	assert.InDelta(t, 5.0, Unrealized(model.PositionModel{Side: model.SideLong, Qty: 1, EntryPrice: 100}, 105), 1e-12)
	assert.InDelta(t, -5.0, Unrealized(model.PositionModel{Side: model.SideShort, Qty: 1, EntryPrice: 100}, 105), 1e-12)
}

func closedAt(at time.Time, net float64) model.PositionModel {
	return model.PositionModel{
		Status:        model.PositionClosed,
		ExitTime:      at.UnixMilli(),
		GrossPnL:      net + 0.1,
		NetPnL:        net,
		FeesTotal:     0.1,
		EntryNotional: 100,
		ExitNotional:  100 + net,
	}
}

func TestBucketDaily(t *testing.T) {
	day2 := t0.Add(24 * time.Hour)
	closed := []model.PositionModel{
		closedAt(t0, 10),
		closedAt(t0.Add(time.Hour), -4),
		closedAt(t0.Add(2*time.Hour), 0),
		closedAt(day2, 3),
		{Status: model.PositionOpen},
	}

	rows := BucketDaily(closed, t0)
	require.Len(t, rows, 2)

	d1 := rows[0]
	assert.Equal(t, "2024-03-01", d1.Date)
	assert.Equal(t, 3, d1.Trades)
	assert.Equal(t, 2, d1.Wins)
	assert.Equal(t, 1, d1.Losses)
	assert.InDelta(t, 6.0, d1.NetPnL, 1e-12)
	assert.InDelta(t, 0.3, d1.Fees, 1e-12)
	assert.InDelta(t, 5.0, d1.AvgWin, 1e-12)
	assert.InDelta(t, 4.0, d1.AvgLoss, 1e-12)
	assert.InDelta(t, 2.5, float64(d1.ProfitFactor), 1e-12)
	assert.InDelta(t, 200.0/3.0, d1.WinRate, 1e-9)
	assert.InDelta(t, 300.0, d1.EntryVolume, 1e-12)

	d2 := rows[1]
	assert.Equal(t, "2024-03-02", d2.Date)
	assert.True(t, d2.ProfitFactor.IsInf())
	assert.InDelta(t, 100.0, d2.WinRate, 1e-12)

	t.Run("idempotent", func(t *testing.T) {
		assert.Equal(t, rows, BucketDaily(closed, t0))
	})

	t.Run("only losses", func(t *testing.T) {
		rows := BucketDaily([]model.PositionModel{closedAt(t0, -1)}, t0)
		require.Len(t, rows, 1)
		assert.Equal(t, model.Ratio(0), rows[0].ProfitFactor)
		assert.Equal(t, 0.0, rows[0].WinRate)
	})
}

func TestLossSince(t *testing.T) {
	closed := []model.PositionModel{
		closedAt(t0.Add(-48*time.Hour), -7),
		closedAt(t0, -2),
		closedAt(t0.Add(time.Hour), -1.5),
		closedAt(t0.Add(2*time.Hour), 4),
	}
	loss, last := LossSince(closed, t0.Add(-time.Hour))
	assert.InDelta(t, 3.5, loss, 1e-12)
	assert.Equal(t, t0.Add(time.Hour).UnixMilli(), last.UnixMilli())
}

func TestLedgerEnterExit(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	paper := exchange.NewPaper(1000)
	l := newLedger(st, paper)

	stop := 95.0
	res, err := l.Enter(ctx, EntryRequest{
		Symbol:       "BTCUSDT",
		Side:         model.SideLong,
		Qty:          1,
		Price:        100,
		Strategy:     "A_SUPERTREND_CROSS",
		TrailingMode: "ATR",
		InitialStop:  &stop,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PositionOpen, res.Position.Status)
	assert.InDelta(t, 0.05, res.Position.FeesTotal, 1e-12)
	assert.InDelta(t, 0.025, res.Position.SlippageTotal, 1e-12)
	assert.Equal(t, model.TradeEnter, res.Trade.Action)
	assert.Equal(t, "paper", res.Trade.Exchange)

	n, err := st.Positions().CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	trail := 104.0
	require.NoError(t, l.SaveStops(ctx, res.Position.ID, &trail, &stop))

	out, err := l.Exit(ctx, res.Position.ID, 110, "TRAIL_HIT", 3)
	require.NoError(t, err)
	assert.Equal(t, model.PositionClosed, out.Position.Status)
	assert.Equal(t, model.SideShort, out.Trade.Side)
	assert.InDelta(t, 10.0, out.Position.GrossPnL, 1e-12)
	assert.InDelta(t, 10-0.105-0.0525, out.Position.NetPnL, 1e-9)
	require.NotNil(t, out.Position.TrailingStop)
	assert.Equal(t, 104.0, *out.Position.TrailingStop)

	orders := paper.Orders()
	require.Len(t, orders, 2)
	assert.Equal(t, exchange.Sell, orders[1].Side)

	trades, err := st.Trades().ListByPosition(ctx, res.Position.ID)
	require.NoError(t, err)
	assert.Len(t, trades, 2)

	rows, err := st.PnL().List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].Wins)

	t.Run("second exit is refused without an order", func(t *testing.T) {
		_, err := l.Exit(ctx, res.Position.ID, 111, "TRAIL_HIT", 3)
		assert.ErrorIs(t, err, errkind.ErrPositionClosed)
		assert.Len(t, paper.Orders(), 2)
	})

	t.Run("rebucket is stable", func(t *testing.T) {
		require.NoError(t, l.Rebucket(ctx))
		again, err := st.PnL().List(ctx)
		require.NoError(t, err)
		require.Len(t, again, len(rows))
		for i := range rows {
			again[i].UpdatedAt = rows[i].UpdatedAt
		}
		assert.Equal(t, rows, again)
	})
}

func TestLedgerOrderFailureLeavesNoState(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	exch := new(MockExchange)
	exch.On("PlaceMarket", mock.Anything, mock.Anything).Return(nil, errors.New("rejected")).Once()
	l := newLedger(st, exch)

	_, err := l.Enter(ctx, EntryRequest{Symbol: "ETHUSDT", Side: model.SideShort, Qty: 1, Price: 2000})
	require.Error(t, err)

	all, err := st.Positions().List(ctx, store.PositionFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	trades, err := st.Trades().ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, trades)
	exch.AssertExpectations(t)
}

func TestLedgerExitFailureKeepsPositionOpen(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	exch := new(MockExchange)
	fill := &exchange.Fill{OrderID: "o1", Qty: 1, Price: 100, FilledAt: t0}
	exch.On("PlaceMarket", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool { return !req.ReduceOnly })).Return(fill, nil).Once()
	exch.On("PlaceMarket", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool { return req.ReduceOnly })).Return(nil, errors.New("timeout")).Once()
	l := newLedger(st, exch)

	res, err := l.Enter(ctx, EntryRequest{Symbol: "BTCUSDT", Side: model.SideLong, Qty: 1, Price: 100})
	require.NoError(t, err)

	_, err = l.Exit(ctx, res.Position.ID, 90, "STOP_HIT", 3)
	require.Error(t, err)

	pos, err := st.Positions().Get(ctx, res.Position.ID)
	require.NoError(t, err)
	assert.True(t, pos.Open())
	rows, err := st.PnL().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)
	exch.AssertExpectations(t)
}

func TestLedgerExitBooksPositionQty(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	exch := new(MockExchange)
	entry := &exchange.Fill{OrderID: "o1", Qty: 1, Price: 100, FilledAt: t0}
	short := &exchange.Fill{OrderID: "o2", Qty: 0.4, Price: 110, FilledAt: t0.Add(time.Minute)}
	exch.On("PlaceMarket", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool { return !req.ReduceOnly })).Return(entry, nil).Once()
	exch.On("PlaceMarket", mock.Anything, mock.MatchedBy(func(req exchange.OrderRequest) bool { return req.ReduceOnly && req.Qty == 1 })).Return(short, nil).Once()
	l := newLedger(st, exch)

	res, err := l.Enter(ctx, EntryRequest{Symbol: "BTCUSDT", Side: model.SideLong, Qty: 1, Price: 100})
	require.NoError(t, err)
	out, err := l.Exit(ctx, res.Position.ID, 110, "TRAIL_HIT", 3)
	require.NoError(t, err)

	assert.Equal(t, 1.0, out.Trade.Qty)
	assert.InDelta(t, 110.0, out.Trade.Notional, 1e-12)
	assert.InDelta(t, 0.055, out.Trade.Fee, 1e-12)
	assert.InDelta(t, out.Trade.Notional, out.Position.ExitNotional, 1e-12)
	assert.InDelta(t, 10.0, out.Position.GrossPnL, 1e-12)
	assert.Equal(t, 0.4, short.Qty)
	exch.AssertExpectations(t)
}

func TestLedgerCommitFailure(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	l := newLedger(failCommitStore{Store: st, err: errors.New("disk full")}, exchange.NewPaper(1000))

	_, err := l.Enter(ctx, EntryRequest{Symbol: "BTCUSDT", Side: model.SideLong, Qty: 1, Price: 100})
	require.Error(t, err)
	n, err := st.Positions().CountOpen(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestTodayLoss(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	l := newLedger(st, exchange.NewPaper(1000))
	res, err := l.Enter(ctx, EntryRequest{Symbol: "BTCUSDT", Side: model.SideLong, Qty: 1, Price: 100})
	require.NoError(t, err)
	_, err = l.Exit(ctx, res.Position.ID, 90, "STOP_HIT", 3)
	require.NoError(t, err)

	loss, _, err := l.TodayLoss(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10+0.05+0.025+0.045+0.0225, loss, 1e-9)
}

func TestClientID(t *testing.T) {
	id := clientID("0123456789abcdef0123456789abcdef", model.TradeExit)
	assert.Equal(t, "tb-EX-0123456789abcdef01234567", id)
	assert.LessOrEqual(t, len(id), 36)
}
