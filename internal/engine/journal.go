package engine

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"

	"trendbot/internal/logger"
	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/pkg/text"
	"trendbot/internal/store/model"
)

const maxErrorMessage = 1000

// stageError tags a symbol failure with the module that raised it and a
// short kind used in the error journal.
type stageError struct {
	module string
	kind   string
	err    error
}

func stageErr(module, kind string, err error) error {
	return &stageError{module: module, kind: kind, err: err}
}

func (e *stageError) Error() string { return e.module + ": " + e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

// classify returns the journal module and kind for err.
func classify(err error) (string, string) {
	module, kind := "engine", ""
	var se *stageError
	if errors.As(err, &se) {
		module, kind = se.module, se.kind
	}
	if kind != "" {
		return module, kind
	}
	switch {
	case errors.Is(err, errkind.ErrMarketDataGap):
		kind = "KLINE_FETCH"
	case errors.Is(err, errkind.ErrInvalidParameter):
		kind = "INVALID_PARAMETER"
	case errors.Is(err, errkind.ErrMissingInput):
		kind = "MISSING_INPUT"
	case errors.Is(err, errkind.ErrPositionClosed):
		kind = "POSITION_CLOSED"
	default:
		kind = "INTERNAL"
	}
	return module, kind
}

func (c *Coordinator) recordFailure(ctx context.Context, sym string, err error) {
	module, kind := classify(err)
	logger.With("symbol", sym, "module", module).Errorf("engine: %s: %v", kind, err)
	c.metrics.RecordSymbolError(sym, kind)
	c.journalError(ctx, sym, module, err)
}

func (c *Coordinator) journalError(ctx context.Context, sym, module string, err error) {
	_, kind := classify(err)
	rec := &model.ErrorModel{
		Timestamp: c.now().UnixMilli(),
		Module:    module,
		Symbol:    sym,
		Kind:      kind,
		Message:   text.Truncate(err.Error(), maxErrorMessage),
	}
	if jerr := c.store.Journal().AppendError(context.WithoutCancel(ctx), rec); jerr != nil {
		logger.Warnf("engine: append error journal failed: %v", jerr)
	}
}

// signalContext is the indicator snapshot stored with each journaled signal.
type signalContext struct {
	Price     float64              `json:"price"`
	CloseTime int64                `json:"close_time"`
	EMA       float64              `json:"ema"`
	ATR       float64              `json:"atr"`
	BandValue float64              `json:"band_value"`
	BandDir   int                  `json:"band_dir"`
	Breakout  market.BreakoutState `json:"breakout"`
}

func (c *Coordinator) journalSignal(ctx context.Context, snap market.Snapshot, strategyName, signal string, price float64, reason string) {
	raw, err := json.Marshal(signalContext{
		Price:     price,
		CloseTime: snap.LastCloseTime,
		EMA:       snap.Current.EMA,
		ATR:       snap.Current.ATR,
		BandValue: snap.Current.BandValue,
		BandDir:   snap.Current.BandDir,
		Breakout:  snap.Breakout,
	})
	if err != nil {
		raw = []byte("{}")
	}
	rec := &model.SignalModel{
		Timestamp:  c.now().UnixMilli(),
		Symbol:     snap.Symbol,
		Strategy:   strategyName,
		Signal:     signal,
		Price:      price,
		Reason:     reason,
		Indicators: datatypes.JSON(raw),
	}
	if err := c.store.Journal().AppendSignal(context.WithoutCancel(ctx), rec); err != nil {
		logger.With("symbol", snap.Symbol).Warnf("engine: append signal journal failed: %v", err)
	}
}

func botStateRows(book *market.Book, now time.Time) []model.BotStateModel {
	states := book.Breakouts()
	syms := book.Symbols()
	rows := make([]model.BotStateModel, 0, len(syms))
	for _, sym := range syms {
		st := states[sym]
		if st.Phase == "" {
			st = market.Idle()
		}
		rows = append(rows, model.BotStateModel{
			Symbol:        sym,
			Phase:         string(st.Phase),
			Level:         st.Level,
			BarsElapsed:   book.BarsElapsed(sym),
			LastCloseTime: book.LastCloseTime(sym),
			UpdatedAt:     now.UnixMilli(),
		})
	}
	return rows
}

func fillTime(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
