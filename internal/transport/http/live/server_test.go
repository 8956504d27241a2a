package livehttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/config"
	"trendbot/internal/market"
	"trendbot/internal/metrics"
	"trendbot/internal/store/gormstore"
	"trendbot/internal/store/model"
)

type staticWatchlist []config.SymbolConfig

func (w staticWatchlist) Active() []config.SymbolConfig { return w }

func newTestServer(t *testing.T) (*Server, *gormstore.GormStore, *market.Book) {
	t.Helper()
	st, err := gormstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	book := market.NewBook(100)
	srv, err := NewServer(ServerConfig{
		Store:     st,
		Book:      book,
		Watchlist: staticWatchlist{{Symbol: "BTCUSDT", UseTrendCross: true, TrailingMode: "TREND"}},
		Metrics:   metrics.New().Handler(),
	})
	require.NoError(t, err)
	return srv, st, book
}

func get(t *testing.T, srv *Server, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	var body map[string]any
	if rec.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestNewServerRequiresStore(t *testing.T) {
	_, err := NewServer(ServerConfig{})
	require.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec, body := get(t, srv, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, _ = get(t, srv, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestPositions(t *testing.T) {
	srv, st, book := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.Positions().Create(ctx, &model.PositionModel{
		ID: "open-1", Symbol: "BTCUSDT", Side: model.SideLong, Status: model.PositionOpen, Qty: 2, EntryPrice: 100,
	}))
	require.NoError(t, st.Positions().Create(ctx, &model.PositionModel{
		ID: "closed-1", Symbol: "BTCUSDT", Side: model.SideLong, Status: model.PositionClosed, Qty: 1, EntryPrice: 100, ExitPrice: 110,
	}))
	_, err := book.Apply("BTCUSDT", []market.Candle{
		{OpenTime: 0, CloseTime: 60_000, Open: 104, High: 106, Low: 103, Close: 105},
	}, market.IndicatorParams{EMAPeriod: 5, BandPeriod: 3, BandMultiplier: 2})
	require.NoError(t, err)

	t.Run("open positions carry mark to market", func(t *testing.T) {
		rec, body := get(t, srv, "/api/positions?status=open")
		require.Equal(t, http.StatusOK, rec.Code)
		rows := body["positions"].([]any)
		require.Len(t, rows, 1)
		row := rows[0].(map[string]any)
		assert.Equal(t, "open-1", row["id"])
		assert.InDelta(t, 105.0, row["mark_price"], 1e-9)
		assert.InDelta(t, 10.0, row["unrealized_pnl"], 1e-9)
	})

	t.Run("all positions", func(t *testing.T) {
		_, body := get(t, srv, "/api/positions")
		assert.EqualValues(t, 2, body["count"])
	})

	t.Run("bad status", func(t *testing.T) {
		rec, _ := get(t, srv, "/api/positions?status=pending")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestTradesAndPnL(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	for _, id := range []string{"t1", "t2", "t3"} {
		require.NoError(t, st.Trades().Create(ctx, &model.TradeModel{ID: id, PositionID: "p1", Symbol: "BTCUSDT", Action: model.TradeEnter}))
	}
	require.NoError(t, st.PnL().ReplaceAll(ctx, []model.DailyPnLModel{{Date: "2024-03-01", Trades: 1, Wins: 1, ProfitFactor: model.Inf()}}))

	_, body := get(t, srv, "/api/trades?limit=2")
	assert.EqualValues(t, 2, body["count"])

	_, body = get(t, srv, "/api/trades?position_id=p1")
	assert.EqualValues(t, 3, body["count"])

	rec, body := get(t, srv, "/api/pnl/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	days := body["days"].([]any)
	require.Len(t, days, 1)
	assert.Equal(t, "inf", days[0].(map[string]any)["profit_factor"])
}

func TestSymbols(t *testing.T) {
	srv, _, book := newTestServer(t)
	book.CommitBreakout("ETHUSDT", market.BreakoutState{Phase: market.PhaseWaitRetestShort, Level: 10})

	_, body := get(t, srv, "/api/symbols")
	rows := body["symbols"].([]any)
	require.Len(t, rows, 2)
	btc := rows[0].(map[string]any)
	assert.Equal(t, "BTCUSDT", btc["symbol"])
	assert.Equal(t, true, btc["watched"])
	eth := rows[1].(map[string]any)
	assert.Equal(t, "ETHUSDT", eth["symbol"])
	assert.Equal(t, false, eth["watched"])
	assert.Equal(t, "WAIT_RETEST_SHORT", eth["breakout"].(map[string]any)["phase"])
}

func TestJournals(t *testing.T) {
	srv, st, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, st.Journal().AppendSignal(ctx, &model.SignalModel{Symbol: "BTCUSDT", Signal: "ENTER_LONG"}))
	require.NoError(t, st.Journal().AppendError(ctx, &model.ErrorModel{Symbol: "BTCUSDT", Module: "market_data", Kind: "KLINE_FETCH"}))

	_, body := get(t, srv, "/api/signals")
	assert.EqualValues(t, 1, body["count"])
	_, body = get(t, srv, "/api/errors?limit=5")
	assert.EqualValues(t, 1, body["count"])
}
