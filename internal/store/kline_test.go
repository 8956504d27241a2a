package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/market"
)

func candle(open int64, price float64) market.Candle {
	return market.Candle{OpenTime: open, CloseTime: open + 59_999, Open: price, High: price, Low: price, Close: price}
}

func TestMemoryKlineStore(t *testing.T) {
	ctx := context.Background()
	s := newMemoryKlineStore(4, 3)

	require.NoError(t, s.Put(ctx, "BTCUSDT", "1m", []market.Candle{candle(0, 1), candle(60_000, 2)}))
	require.NoError(t, s.Put(ctx, "BTCUSDT", "1m", []market.Candle{candle(60_000, 2.5), candle(120_000, 3), candle(180_000, 4)}))

	got, err := s.Load(ctx, "BTCUSDT", "1m", 10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 2.5, got[0].Close)
	assert.Equal(t, 4.0, got[2].Close)

	got, err = s.Load(ctx, "BTCUSDT", "1m", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(180_000), got[0].OpenTime)

	got, err = s.Load(ctx, "ETHUSDT", "1m", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	assert.Error(t, s.Put(ctx, "", "1m", []market.Candle{candle(0, 1)}))
}
