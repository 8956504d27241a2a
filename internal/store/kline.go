package store

import (
	"context"
	"errors"
	"sync"

	"trendbot/internal/market"
)

var _ market.KlineStore = (*MemoryKlineStore)(nil)

// MemoryKlineStore keeps the most recent bars per symbol and interval in
// sharded maps. It backs tests and runs without an on-disk archive.
type MemoryKlineStore struct {
	max    int
	shards []klineShard
}

type klineShard struct {
	mu   sync.RWMutex
	data map[string][]market.Candle
}

const defaultShardCount = 32

func NewMemoryKlineStore(max int) *MemoryKlineStore {
	return newMemoryKlineStore(defaultShardCount, max)
}

func newMemoryKlineStore(shards, max int) *MemoryKlineStore {
	if shards <= 0 {
		shards = 1
	}
	if max <= 0 {
		max = 1500
	}
	out := &MemoryKlineStore{max: max, shards: make([]klineShard, shards)}
	for i := range out.shards {
		out.shards[i] = klineShard{data: make(map[string][]market.Candle)}
	}
	return out
}

func (s *MemoryKlineStore) shardFor(key string) *klineShard {
	idx := hashKey(key) % uint32(len(s.shards))
	return &s.shards[idx]
}

func key(symbol, interval string) string { return symbol + "@" + interval }

// Put appends bars newer than the stored tail and replaces a bar with the
// same open time.
func (s *MemoryKlineStore) Put(ctx context.Context, symbol, interval string, ks []market.Candle) error {
	if symbol == "" || interval == "" {
		return errors.New("kline store: symbol and interval are required")
	}
	if len(ks) == 0 {
		return nil
	}
	k := key(symbol, interval)
	sh := s.shardFor(k)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	cur := sh.data[k]
	for _, candle := range ks {
		n := len(cur)
		if n > 0 && cur[n-1].OpenTime == candle.OpenTime {
			cur[n-1] = candle
			continue
		}
		if n > 0 && candle.OpenTime < cur[n-1].OpenTime {
			continue
		}
		cur = append(cur, candle)
	}
	if len(cur) > s.max {
		cur = append([]market.Candle(nil), cur[len(cur)-s.max:]...)
	}
	sh.data[k] = cur
	return nil
}

// Load returns up to limit of the most recent bars, oldest first.
func (s *MemoryKlineStore) Load(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if symbol == "" || interval == "" {
		return nil, errors.New("kline store: symbol and interval are required")
	}
	if limit <= 0 {
		return nil, nil
	}
	k := key(symbol, interval)
	sh := s.shardFor(k)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	cur := sh.data[k]
	if limit > len(cur) {
		limit = len(cur)
	}
	out := make([]market.Candle, limit)
	copy(out, cur[len(cur)-limit:])
	return out, nil
}

func hashKey(s string) uint32 {
	const (
		offset32 = 2166136261
		prime32  = 16777619
	)
	var h uint32 = offset32
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime32
	}
	return h
}
