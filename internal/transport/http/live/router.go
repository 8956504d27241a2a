package livehttp

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"trendbot/internal/config"
	"trendbot/internal/ledger"
	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/pkg/symbol"
	"trendbot/internal/store"
	"trendbot/internal/store/model"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	queryTimeout = 2 * time.Second
)

// Watchlist reports the enabled entries.
type Watchlist interface {
	Active() []config.SymbolConfig
}

// Router serves positions, trades, daily PnL, journals and per-symbol
// market state.
type Router struct {
	Store     store.Store
	Book      *market.Book
	Watchlist Watchlist
}

func NewRouter(st store.Store, book *market.Book, wl Watchlist) *Router {
	return &Router{Store: st, Book: book, Watchlist: wl}
}

// Register mounts the routes under group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/positions", r.handlePositions)
	group.GET("/trades", r.handleTrades)
	group.GET("/pnl/daily", r.handleDailyPnL)
	group.GET("/symbols", r.handleSymbols)
	group.GET("/signals", r.handleSignals)
	group.GET("/errors", r.handleErrors)
}

func (r *Router) handlePositions(c *gin.Context) {
	filter := store.PositionFilter{Limit: parseLimit(c)}
	switch strings.ToUpper(strings.TrimSpace(c.Query("status"))) {
	case "":
	case string(model.PositionOpen):
		filter.Status = model.PositionOpen
	case string(model.PositionClosed):
		filter.Status = model.PositionClosed
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be open or closed"})
		return
	}
	if sym := strings.TrimSpace(c.Query("symbol")); sym != "" {
		filter.Symbol = symbol.Key(sym)
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	rows, err := r.Store.Positions().List(ctx, filter)
	if err != nil {
		r.fail(c, "positions", err)
		return
	}
	out := make([]PositionView, 0, len(rows))
	for _, pos := range rows {
		view := PositionView{PositionModel: pos}
		if pos.Open() {
			if snap, ok := r.Book.Snapshot(pos.Symbol); ok {
				if last, ok := snap.Last(); ok {
					mark := last.Close
					unrealized := ledger.Unrealized(pos, mark)
					view.MarkPrice = &mark
					view.UnrealizedPnL = &unrealized
				}
			}
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out, "count": len(out)})
}

func (r *Router) handleTrades(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	var (
		rows []model.TradeModel
		err  error
	)
	if id := strings.TrimSpace(c.Query("position_id")); id != "" {
		rows, err = r.Store.Trades().ListByPosition(ctx, id)
	} else {
		rows, err = r.Store.Trades().ListRecent(ctx, parseLimit(c))
	}
	if err != nil {
		r.fail(c, "trades", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": rows, "count": len(rows)})
}

func (r *Router) handleDailyPnL(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	rows, err := r.Store.PnL().List(ctx)
	if err != nil {
		r.fail(c, "pnl", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"days": rows, "count": len(rows)})
}

func (r *Router) handleSignals(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	rows, err := r.Store.Journal().ListSignals(ctx, parseLimit(c))
	if err != nil {
		r.fail(c, "signals", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"signals": rows, "count": len(rows)})
}

func (r *Router) handleErrors(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	rows, err := r.Store.Journal().ListErrors(ctx, parseLimit(c))
	if err != nil {
		r.fail(c, "errors", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"errors": rows, "count": len(rows)})
}

// handleSymbols lists the watched symbols with their latest indicators and
// breakout machine state. Symbols known to the market book but no longer
// watched are reported with watched=false.
func (r *Router) handleSymbols(c *gin.Context) {
	watched := map[string]config.SymbolConfig{}
	order := []string{}
	if r.Watchlist != nil {
		for _, e := range r.Watchlist.Active() {
			watched[e.Symbol] = e
			order = append(order, e.Symbol)
		}
	}
	for _, sym := range r.Book.Symbols() {
		if _, ok := watched[sym]; !ok {
			order = append(order, sym)
		}
	}
	out := make([]SymbolView, 0, len(order))
	for _, sym := range order {
		entry, isWatched := watched[sym]
		view := SymbolView{Symbol: sym, Watched: isWatched}
		if isWatched {
			view.UseTrendCross = entry.UseTrendCross
			view.UseBreakout = entry.UseBreakout
			view.TrailingMode = entry.TrailingMode
		}
		if snap, ok := r.Book.Snapshot(sym); ok {
			view.Bars = len(snap.Candles)
			view.LastCloseTime = snap.LastCloseTime
			if last, ok := snap.Last(); ok {
				view.Close = last.Close
			}
			ind := snap.Current
			view.Indicators = &ind
			br := snap.Breakout
			view.Breakout = &br
			view.BarsElapsed = r.Book.BarsElapsed(sym)
		}
		out = append(out, view)
	}
	c.JSON(http.StatusOK, gin.H{"symbols": out, "count": len(out)})
}

func (r *Router) fail(c *gin.Context, what string, err error) {
	logger.Errorf("[api] %s query failed ip=%s err=%v", what, c.ClientIP(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(strings.TrimSpace(c.DefaultQuery("limit", "")))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
