package backtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"trendbot/internal/market"
)

// ReplaySource serves archived bars as if they were live, hiding every bar
// that closes after the cursor.
type ReplaySource struct {
	mu     sync.RWMutex
	bars   map[string][]market.Candle
	cursor int64
}

func NewReplaySource(bars map[string][]market.Candle) *ReplaySource {
	cp := make(map[string][]market.Candle, len(bars))
	for sym, list := range bars {
		sorted := append([]market.Candle(nil), list...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].CloseTime < sorted[j].CloseTime })
		cp[sym] = sorted
	}
	return &ReplaySource{bars: cp}
}

func (s *ReplaySource) Name() string { return "replay" }

// Advance moves the cursor to closeTime (ms).
func (s *ReplaySource) Advance(closeTime int64) {
	s.mu.Lock()
	s.cursor = closeTime
	s.mu.Unlock()
}

func (s *ReplaySource) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.bars[symbol]
	end := sort.Search(len(list), func(i int) bool { return list[i].CloseTime > s.cursor })
	start := 0
	if limit > 0 && end-limit > 0 {
		start = end - limit
	}
	return append([]market.Candle(nil), list[start:end]...), nil
}

// Steps returns every distinct close time across all symbols, ascending.
func (s *ReplaySource) Steps() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	for _, list := range s.bars {
		for _, c := range list {
			seen[c.CloseTime] = struct{}{}
		}
	}
	out := make([]int64, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// RangeReader is the archive query used to load a replay window.
type RangeReader interface {
	Range(ctx context.Context, symbol, interval string, start, end int64) ([]market.Candle, error)
}

// LoadRange reads [start, end] for every symbol. Symbols without bars are
// left out of the result.
func LoadRange(ctx context.Context, r RangeReader, symbols []string, interval string, start, end int64) (map[string][]market.Candle, error) {
	out := make(map[string][]market.Candle, len(symbols))
	for _, sym := range symbols {
		list, err := r.Range(ctx, sym, interval, start, end)
		if err != nil {
			return nil, fmt.Errorf("load %s %s: %w", sym, interval, err)
		}
		if len(list) > 0 {
			out[sym] = list
		}
	}
	return out, nil
}
