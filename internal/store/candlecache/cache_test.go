package candlecache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/market"
)

func bars(n int, from int64) []market.Candle {
	out := make([]market.Candle, 0, n)
	for i := 0; i < n; i++ {
		open := from + int64(i)*60_000
		p := 100 + float64(i)
		out = append(out, market.Candle{OpenTime: open, CloseTime: open + 59_999, Open: p, High: p + 1, Low: p - 1, Close: p, Volume: 1, Trades: 3})
	}
	return out
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	c, err := New(t.TempDir(), 5)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.Put(ctx, "btcusdt", "1M", bars(4, 0)))
	require.NoError(t, c.Put(ctx, "btcusdt", "1M", bars(4, 120_000)))

	t.Run("load returns newest bars ascending", func(t *testing.T) {
		got, err := c.Load(ctx, "BTCUSDT", "1m", 3)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, int64(180_000), got[0].OpenTime)
		assert.Equal(t, int64(300_000), got[2].OpenTime)
		assert.Equal(t, int64(3), got[2].Trades)
	})

	t.Run("prunes beyond max rows", func(t *testing.T) {
		got, err := c.Load(ctx, "BTCUSDT", "1m", 100)
		require.NoError(t, err)
		assert.Len(t, got, 5)
		m, err := c.Manifest(ctx, "BTCUSDT", "1m")
		require.NoError(t, err)
		assert.Equal(t, int64(5), m.Rows)
		assert.Equal(t, int64(60_000), m.MinTime)
		assert.Equal(t, "BTCUSDT", m.Symbol)
	})

	t.Run("range", func(t *testing.T) {
		got, err := c.Range(ctx, "BTCUSDT", "1m", 120_000, 180_000)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, 100.0, got[0].Close)
	})

	t.Run("empty symbol", func(t *testing.T) {
		_, err := c.Load(ctx, "", "1m", 1)
		assert.Error(t, err)
	})
}
