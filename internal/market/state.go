package market

import (
	"fmt"
	"sort"
	"sync"

	"trendbot/internal/analysis/indicator"
	"trendbot/internal/pkg/errkind"
)

// SafetyMargin is kept on top of the configured lookback before eviction.
const SafetyMargin = 300

// IndicatorParams configures the per-symbol indicator pipeline.
type IndicatorParams struct {
	EMAPeriod      int
	BandPeriod     int
	BandMultiplier float64
}

func (p IndicatorParams) validate() error {
	if p.EMAPeriod <= 0 || p.BandPeriod <= 0 || p.BandMultiplier <= 0 {
		return fmt.Errorf("indicator params ema=%d band=%d mult=%.4f: %w",
			p.EMAPeriod, p.BandPeriod, p.BandMultiplier, errkind.ErrInvalidParameter)
	}
	return nil
}

// Indicators holds the final value of each series for one recompute.
type Indicators struct {
	EMA       float64 `json:"ema"`
	ATR       float64 `json:"atr"`
	BandValue float64 `json:"band_value"`
	BandDir   int     `json:"band_dir"`
	Ready     bool    `json:"ready"`
}

// BreakoutPhase is the state of the breakout/retest machine.
type BreakoutPhase string

const (
	PhaseIdle            BreakoutPhase = "IDLE"
	PhaseWaitRetestLong  BreakoutPhase = "WAIT_RETEST_LONG"
	PhaseWaitRetestShort BreakoutPhase = "WAIT_RETEST_SHORT"
)

// BreakoutState is the breakout strategy's private per-symbol memory.
// StartedAt is the bar sequence number at which the breakout was seen.
type BreakoutState struct {
	Phase     BreakoutPhase `json:"phase"`
	Level     float64       `json:"level"`
	StartedAt int64         `json:"started_at"`
}

// Idle returns the initial machine state.
func Idle() BreakoutState { return BreakoutState{Phase: PhaseIdle} }

// Waiting reports whether a retest is pending.
func (b BreakoutState) Waiting() bool {
	return b.Phase == PhaseWaitRetestLong || b.Phase == PhaseWaitRetestShort
}

// Snapshot is a read-only copy of one symbol's state.
type Snapshot struct {
	Symbol        string        `json:"symbol"`
	Candles       []Candle      `json:"-"`
	Seq           int64         `json:"seq"`
	LastCloseTime int64         `json:"last_close_time"`
	Current       Indicators    `json:"current"`
	Previous      Indicators    `json:"previous"`
	Breakout      BreakoutState `json:"breakout"`
}

// Last returns the most recent bar.
func (s Snapshot) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

type symbolState struct {
	candles       []Candle
	seq           int64
	lastCloseTime int64
	current       Indicators
	previous      Indicators
	breakout      BreakoutState
}

// Book owns the state of every watched symbol. All mutation goes through
// Apply and CommitBreakout; readers only get copies.
type Book struct {
	mu       sync.RWMutex
	capacity int
	symbols  map[string]*symbolState
}

// NewBook sizes every symbol buffer at lookback plus SafetyMargin.
func NewBook(lookback int) *Book {
	if lookback <= 0 {
		lookback = 1200
	}
	return &Book{capacity: lookback + SafetyMargin, symbols: make(map[string]*symbolState)}
}

func (b *Book) ensure(symbol string) *symbolState {
	st, ok := b.symbols[symbol]
	if !ok {
		st = &symbolState{breakout: Idle()}
		b.symbols[symbol] = st
	}
	return st
}

// Apply appends closed bars and recomputes indicators over the retained window.
//
// Bars whose close time is not after the last applied one are skipped; that is
// the only ordering guard. The returned count is the number of bars accepted.
// Indicators are recomputed only when something was accepted and at least
// EMAPeriod bars are retained; a band that is still warming up leaves the
// previous values in place.
func (b *Book) Apply(symbol string, candles []Candle, params IndicatorParams) (int, error) {
	if err := params.validate(); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.ensure(symbol)
	accepted := 0
	for _, c := range candles {
		if !c.Valid() {
			continue
		}
		if st.lastCloseTime != 0 && c.CloseTime <= st.lastCloseTime {
			continue
		}
		st.candles = append(st.candles, c)
		st.lastCloseTime = c.CloseTime
		st.seq++
		accepted++
	}
	if over := len(st.candles) - b.capacity; over > 0 {
		st.candles = append([]Candle(nil), st.candles[over:]...)
	}
	if accepted == 0 || len(st.candles) < params.EMAPeriod {
		return accepted, nil
	}
	next, err := compute(st.candles, params)
	if err != nil {
		if errkind.NotReady(err) {
			return accepted, nil
		}
		return accepted, err
	}
	st.previous = st.current
	st.current = next
	return accepted, nil
}

func compute(candles []Candle, params IndicatorParams) (Indicators, error) {
	n := len(candles)
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i] = c.High
		lows[i] = c.Low
		closes[i] = c.Close
	}
	ema, err := indicator.EMA(closes, params.EMAPeriod)
	if err != nil {
		return Indicators{}, err
	}
	atr, err := indicator.ATR(highs, lows, closes, params.BandPeriod)
	if err != nil {
		return Indicators{}, err
	}
	if len(atr) == 0 {
		return Indicators{}, fmt.Errorf("atr warming up: %w", errkind.ErrMissingInput)
	}
	values, dirs, err := indicator.Band(highs, lows, closes, params.BandPeriod, params.BandMultiplier)
	if err != nil {
		return Indicators{}, err
	}
	return Indicators{
		EMA:       ema[n-1],
		ATR:       atr[n-1],
		BandValue: values[n-1],
		BandDir:   dirs[n-1],
		Ready:     true,
	}, nil
}

// Snapshot returns a copy of the symbol's state.
func (b *Book) Snapshot(symbol string) (Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.symbols[symbol]
	if !ok {
		return Snapshot{}, false
	}
	return Snapshot{
		Symbol:        symbol,
		Candles:       append([]Candle(nil), st.candles...),
		Seq:           st.seq,
		LastCloseTime: st.lastCloseTime,
		Current:       st.current,
		Previous:      st.previous,
		Breakout:      st.breakout,
	}, true
}

// LastCloseTime returns the close time of the last applied bar, or 0.
func (b *Book) LastCloseTime(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if st, ok := b.symbols[symbol]; ok {
		return st.lastCloseTime
	}
	return 0
}

// CommitBreakout stores the next breakout machine state for symbol.
func (b *Book) CommitBreakout(symbol string, next BreakoutState) {
	if next.Phase == "" {
		next = Idle()
	}
	b.mu.Lock()
	b.ensure(symbol).breakout = next
	b.mu.Unlock()
}

// Breakouts returns every symbol's machine state.
func (b *Book) Breakouts() map[string]BreakoutState {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]BreakoutState, len(b.symbols))
	for sym, st := range b.symbols {
		out[sym] = st.breakout
	}
	return out
}

// Symbols lists known symbols in sorted order.
func (b *Book) Symbols() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, 0, len(b.symbols))
	for sym := range b.symbols {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// BarsElapsed returns how many bars were applied since the breakout was seen.
func (b *Book) BarsElapsed(symbol string) int64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	st, ok := b.symbols[symbol]
	if !ok || !st.breakout.Waiting() {
		return 0
	}
	return st.seq - st.breakout.StartedAt
}

// RestoreBreakout re-anchors a persisted machine state onto the current bar
// sequence, which restarts from zero after a process restart.
func (b *Book) RestoreBreakout(symbol string, phase BreakoutPhase, level float64, barsElapsed int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := b.ensure(symbol)
	switch phase {
	case PhaseWaitRetestLong, PhaseWaitRetestShort:
		if barsElapsed < 0 {
			barsElapsed = 0
		}
		st.breakout = BreakoutState{Phase: phase, Level: level, StartedAt: st.seq - barsElapsed}
	default:
		st.breakout = Idle()
	}
}
