package market

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/pkg/errkind"
)

var testParams = IndicatorParams{EMAPeriod: 5, BandPeriod: 3, BandMultiplier: 2}

func bars(startClose int64, n int, price float64) []Candle {
	out := make([]Candle, 0, n)
	for i := 0; i < n; i++ {
		ct := startClose + int64(i)*60_000
		p := price + float64(i)
		out = append(out, Candle{
			OpenTime:  ct - 59_999,
			CloseTime: ct,
			Open:      p,
			High:      p + 1,
			Low:       p - 1,
			Close:     p + 0.5,
			Volume:    10,
		})
	}
	return out
}

func TestBookApply(t *testing.T) {
	t.Run("rejects duplicates and out of order bars", func(t *testing.T) {
		book := NewBook(100)
		batch := bars(60_000, 6, 100)
		n, err := book.Apply("BTCUSDT", batch, testParams)
		require.NoError(t, err)
		assert.Equal(t, 6, n)

		n, err = book.Apply("BTCUSDT", append(batch[3:], bars(60_000*7, 1, 110)...), testParams)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		snap, ok := book.Snapshot("BTCUSDT")
		require.True(t, ok)
		assert.Len(t, snap.Candles, 7)
		assert.Equal(t, int64(7), snap.Seq)
		for i := 1; i < len(snap.Candles); i++ {
			assert.Greater(t, snap.Candles[i].CloseTime, snap.Candles[i-1].CloseTime)
		}
	})

	t.Run("indicators wait for ema period", func(t *testing.T) {
		book := NewBook(100)
		_, err := book.Apply("ETHUSDT", bars(60_000, 4, 100), testParams)
		require.NoError(t, err)
		snap, _ := book.Snapshot("ETHUSDT")
		assert.False(t, snap.Current.Ready)

		_, err = book.Apply("ETHUSDT", bars(60_000*5, 1, 104), testParams)
		require.NoError(t, err)
		snap, _ = book.Snapshot("ETHUSDT")
		assert.True(t, snap.Current.Ready)
		assert.False(t, snap.Previous.Ready)
		assert.Contains(t, []int{1, -1}, snap.Current.BandDir)
	})

	t.Run("previous values are stashed", func(t *testing.T) {
		book := NewBook(100)
		_, err := book.Apply("SOLUSDT", bars(60_000, 8, 100), testParams)
		require.NoError(t, err)
		first, _ := book.Snapshot("SOLUSDT")
		_, err = book.Apply("SOLUSDT", bars(60_000*9, 1, 120), testParams)
		require.NoError(t, err)
		second, _ := book.Snapshot("SOLUSDT")
		assert.Equal(t, first.Current, second.Previous)
		assert.NotEqual(t, second.Previous.EMA, second.Current.EMA)
	})

	t.Run("no recompute without new bars", func(t *testing.T) {
		book := NewBook(100)
		batch := bars(60_000, 8, 100)
		_, err := book.Apply("XRPUSDT", batch, testParams)
		require.NoError(t, err)
		before, _ := book.Snapshot("XRPUSDT")
		n, err := book.Apply("XRPUSDT", batch, testParams)
		require.NoError(t, err)
		assert.Zero(t, n)
		after, _ := book.Snapshot("XRPUSDT")
		assert.Equal(t, before.Previous, after.Previous)
		assert.Equal(t, before.Current, after.Current)
	})

	t.Run("buffer is bounded", func(t *testing.T) {
		book := NewBook(10)
		_, err := book.Apply("BNBUSDT", bars(60_000, 400, 100), testParams)
		require.NoError(t, err)
		snap, _ := book.Snapshot("BNBUSDT")
		assert.Len(t, snap.Candles, 10+SafetyMargin)
		assert.Equal(t, int64(400), snap.Seq)
	})

	t.Run("invalid params", func(t *testing.T) {
		book := NewBook(10)
		_, err := book.Apply("BTCUSDT", bars(60_000, 3, 100), IndicatorParams{})
		assert.ErrorIs(t, err, errkind.ErrInvalidParameter)
	})
}

func TestBookBreakoutState(t *testing.T) {
	book := NewBook(100)
	_, err := book.Apply("BTCUSDT", bars(60_000, 10, 100), testParams)
	require.NoError(t, err)

	snap, _ := book.Snapshot("BTCUSDT")
	assert.Equal(t, PhaseIdle, snap.Breakout.Phase)

	book.CommitBreakout("BTCUSDT", BreakoutState{Phase: PhaseWaitRetestLong, Level: 105, StartedAt: 8})
	assert.Equal(t, int64(2), book.BarsElapsed("BTCUSDT"))

	other := NewBook(100)
	_, err = other.Apply("BTCUSDT", bars(60_000, 4, 100), testParams)
	require.NoError(t, err)
	other.RestoreBreakout("BTCUSDT", PhaseWaitRetestLong, 105, 2)
	snap, _ = other.Snapshot("BTCUSDT")
	assert.Equal(t, int64(2), snap.Breakout.StartedAt)
	assert.Equal(t, 105.0, snap.Breakout.Level)

	other.RestoreBreakout("BTCUSDT", "bogus", 1, 1)
	snap, _ = other.Snapshot("BTCUSDT")
	assert.Equal(t, Idle(), snap.Breakout)
}
