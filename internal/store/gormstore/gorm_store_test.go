package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"trendbot/internal/store"
	"trendbot/internal/store/model"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	s, err := NewGormStore(filepath.Join(t.TempDir(), "nested", "trendbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGormStorePositions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	stop := 95.0
	pos := &model.PositionModel{ID: "p1", Symbol: "BTCUSDT", Side: model.SideLong, Status: model.PositionOpen, Qty: 1, EntryPrice: 100, EntryTime: 1, StopLoss: &stop}
	require.NoError(t, s.Positions().Create(ctx, pos))
	require.NoError(t, s.Positions().Create(ctx, &model.PositionModel{ID: "p2", Symbol: "ETHUSDT", Side: model.SideShort, Status: model.PositionClosed, EntryTime: 2}))

	got, err := s.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got.StopLoss)
	assert.Equal(t, 95.0, *got.StopLoss)

	_, err = s.Positions().Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	open, err := s.Positions().List(ctx, store.PositionFilter{Status: model.PositionOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "p1", open[0].ID)

	n, err := s.Positions().CountOpen(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got.TrailingStop = &stop
	require.NoError(t, s.Positions().Save(ctx, got))
	again, err := s.Positions().Get(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, again.TrailingStop)
}

func TestGormStoreUnitOfWork(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	t.Run("rollback discards writes", func(t *testing.T) {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.Positions().Create(ctx, &model.PositionModel{ID: "tx1", Symbol: "BTCUSDT", Status: model.PositionOpen}))
		require.NoError(t, uow.Trades().Create(ctx, &model.TradeModel{ID: "t1", PositionID: "tx1"}))
		require.NoError(t, uow.Rollback())
		require.NoError(t, uow.Rollback())

		_, err = s.Positions().Get(ctx, "tx1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		trades, err := s.Trades().ListByPosition(ctx, "tx1")
		require.NoError(t, err)
		assert.Empty(t, trades)
	})

	t.Run("commit persists writes", func(t *testing.T) {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, uow.Positions().Create(ctx, &model.PositionModel{ID: "tx2", Symbol: "BTCUSDT", Status: model.PositionOpen}))
		require.NoError(t, uow.PnL().ReplaceAll(ctx, []model.DailyPnLModel{{Date: "2024-01-01", Trades: 1, ProfitFactor: model.Inf()}}))
		require.NoError(t, uow.Commit())
		require.NoError(t, uow.Rollback())

		_, err = s.Positions().Get(ctx, "tx2")
		require.NoError(t, err)
		rows, err := s.PnL().List(ctx)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.True(t, rows[0].ProfitFactor.IsInf())
	})
}

func TestGormStoreReplaceAll(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.PnL().ReplaceAll(ctx, []model.DailyPnLModel{{Date: "2024-01-01"}, {Date: "2024-01-02", ProfitFactor: 1.5}}))
	require.NoError(t, s.PnL().ReplaceAll(ctx, []model.DailyPnLModel{{Date: "2024-01-02", ProfitFactor: 2}}))
	rows, err := s.PnL().List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.Ratio(2), rows[0].ProfitFactor)

	require.NoError(t, s.BotState().ReplaceAll(ctx, []model.BotStateModel{{Symbol: "BTCUSDT", Phase: "WAIT_RETEST_LONG", Level: 100, BarsElapsed: 3}}))
	require.NoError(t, s.BotState().ReplaceAll(ctx, []model.BotStateModel{{Symbol: "ETHUSDT", Phase: "IDLE"}}))
	states, err := s.BotState().List(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "ETHUSDT", states[0].Symbol)
}

func TestGormStoreJournal(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Journal().AppendSignal(ctx, &model.SignalModel{Symbol: "BTCUSDT", Signal: "ENTER_LONG", Indicators: datatypes.JSON(`{"ema":1}`)}))
	require.NoError(t, s.Journal().AppendSignal(ctx, &model.SignalModel{Symbol: "BTCUSDT", Signal: "EXIT"}))
	require.NoError(t, s.Journal().AppendError(ctx, &model.ErrorModel{Module: "engine", Kind: "MarketDataGap", Message: "timeout"}))

	sigs, err := s.Journal().ListSignals(ctx, 10)
	require.NoError(t, err)
	require.Len(t, sigs, 2)
	assert.Equal(t, "EXIT", sigs[0].Signal)
	assert.JSONEq(t, `{"ema":1}`, string(sigs[1].Indicators))

	errs, err := s.Journal().ListErrors(ctx, 10)
	require.NoError(t, err)
	require.Len(t, errs, 1)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	t.Run("direct writes survive an open unit of work", func(t *testing.T) {
		uow, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, s.Journal().AppendError(ctx, &model.ErrorModel{Module: "engine", Kind: "INTERNAL", Message: "boom"}))
		require.NoError(t, uow.Positions().Create(ctx, &model.PositionModel{ID: "m1", Symbol: "BTCUSDT", Status: model.PositionOpen}))
		require.NoError(t, uow.Commit())

		errs, err := s.Journal().ListErrors(ctx, 10)
		require.NoError(t, err)
		require.Len(t, errs, 1)
		_, err = s.Positions().Get(ctx, "m1")
		require.NoError(t, err)
	})

	t.Run("stores are isolated", func(t *testing.T) {
		other, err := NewMemoryStore()
		require.NoError(t, err)
		defer other.Close()
		n, err := other.Positions().CountOpen(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("list ordering", func(t *testing.T) {
		for i, id := range []string{"p3", "p1", "p2"} {
			require.NoError(t, s.Positions().Create(ctx, &model.PositionModel{ID: id, Symbol: "ETHUSDT", EntryTime: int64(3 - i)}))
		}
		all, err := s.Positions().List(ctx, store.PositionFilter{Symbol: "ETHUSDT"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"p2", "p1", "p3"}, []string{all[0].ID, all[1].ID, all[2].ID})

		latest, err := s.Positions().List(ctx, store.PositionFilter{Symbol: "ETHUSDT", Limit: 1})
		require.NoError(t, err)
		require.Len(t, latest, 1)
		assert.Equal(t, "p3", latest[0].ID)
	})
}
