package exit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
	"trendbot/internal/strategy"
)

func f(v float64) *float64 { return &v }

func TestUpdateTrailing(t *testing.T) {
	t.Run("seed bar never hits", func(t *testing.T) {
		out, err := UpdateTrailing(TrailInput{
			Side: Long, Mode: ModeATR,
			Candle:     market.Candle{Close: 105, Low: 95, High: 106},
			EntryPrice: 100, Params: Params{ATRMult: 2}, ATR: f(2.5),
		})
		require.NoError(t, err)
		assert.Equal(t, 100.0, out.Stop)
		assert.False(t, out.Hit)
	})

	t.Run("long ratchet is non decreasing", func(t *testing.T) {
		closes := []float64{105, 103, 108, 101, 110}
		var prev *float64
		last := 0.0
		for i, c := range closes {
			out, err := UpdateTrailing(TrailInput{
				Side: Long, Mode: ModePct, Prev: prev,
				Candle:     market.Candle{Close: c, Low: c + 5, High: c + 6},
				EntryPrice: 100, Params: Params{Pct: 0.01},
			})
			require.NoError(t, err)
			if i > 0 {
				assert.GreaterOrEqual(t, out.Stop, last)
			}
			last = out.Stop
			prev = f(out.Stop)
		}
		assert.Equal(t, 109.0, last)
	})

	t.Run("short ratchet is non increasing and hits on high", func(t *testing.T) {
		out, err := UpdateTrailing(TrailInput{
			Side: Short, Mode: ModeATR, Prev: f(104),
			Candle: market.Candle{Close: 100, Low: 99, High: 104.5},
			Params: Params{ATRMult: 2}, ATR: f(3),
		})
		require.NoError(t, err)
		assert.Equal(t, 104.0, out.Stop)
		assert.True(t, out.Hit)

		out, err = UpdateTrailing(TrailInput{
			Side: Short, Mode: ModeATR, Prev: f(104),
			Candle: market.Candle{Close: 95, Low: 94, High: 96},
			Params: Params{ATRMult: 2}, ATR: f(1),
		})
		require.NoError(t, err)
		assert.Equal(t, 97.0, out.Stop)
		assert.False(t, out.Hit)
	})

	t.Run("hit uses post ratchet stop", func(t *testing.T) {
		out, err := UpdateTrailing(TrailInput{
			Side: Long, Mode: ModeTrend, Prev: f(90),
			Candle:    market.Candle{Close: 100, Low: 97, High: 101},
			BandValue: f(98),
		})
		require.NoError(t, err)
		assert.Equal(t, 98.0, out.Stop)
		assert.True(t, out.Hit)
	})

	t.Run("missing inputs", func(t *testing.T) {
		_, err := UpdateTrailing(TrailInput{Side: Long, Mode: ModeATR, Candle: market.Candle{Close: 1}})
		assert.ErrorIs(t, err, errkind.ErrMissingInput)
		_, err = UpdateTrailing(TrailInput{Side: Long, Mode: ModeTrend, Candle: market.Candle{Close: 1}})
		assert.ErrorIs(t, err, errkind.ErrMissingInput)
		_, err = UpdateTrailing(TrailInput{Side: Long, Mode: "FOO"})
		assert.ErrorIs(t, err, errkind.ErrInvalidParameter)
	})
}

func TestParse(t *testing.T) {
	m, err := ParseMode("supertrend")
	require.NoError(t, err)
	assert.Equal(t, ModeTrend, m)
	_, err = ParseMode("chandelier")
	assert.ErrorIs(t, err, errkind.ErrInvalidParameter)

	s, err := ParseSide(" short ")
	require.NoError(t, err)
	assert.Equal(t, Short, s)
}

func TestCheck(t *testing.T) {
	ready := market.Indicators{EMA: 100, ATR: 1, BandValue: 97, BandDir: 1, Ready: true}
	bar := market.Candle{Open: 100, High: 102, Low: 99, Close: 101}

	t.Run("trend flip wins", func(t *testing.T) {
		ind := ready
		ind.BandDir = -1
		d, err := Check(Position{Side: Long, TrailingMode: ModeATR, EntryPrice: 100, TrailingStop: f(100.5)}, bar, ind, Params{ATRMult: 2})
		require.NoError(t, err)
		assert.Equal(t, ReasonTrendFlip, d.Reason)
		assert.Equal(t, 101.0, d.Price)
	})

	t.Run("trailing hit", func(t *testing.T) {
		d, err := Check(Position{Side: Long, TrailingMode: ModePct, EntryPrice: 100, TrailingStop: f(99.5)}, bar, ready, Params{Pct: 0.01})
		require.NoError(t, err)
		assert.Equal(t, ReasonTrailHit, d.Reason)
		assert.Equal(t, 100.0, d.TrailingStop)
	})

	t.Run("band stop ratchets for trend cross entries", func(t *testing.T) {
		ind := ready
		ind.BandValue = 99.5
		pos := Position{Side: Long, Strategy: strategy.NameTrendCross, TrailingMode: ModePct, EntryPrice: 100, TrailingStop: f(90), StopLoss: f(96)}
		d, err := Check(pos, bar, ind, Params{Pct: 0.5})
		require.NoError(t, err)
		assert.Equal(t, ReasonStopHit, d.Reason)
		require.NotNil(t, d.StopLoss)
		assert.Equal(t, 99.5, *d.StopLoss)
	})

	t.Run("no exit still reports updated stops", func(t *testing.T) {
		pos := Position{Side: Long, Strategy: strategy.NameTrendCross, TrailingMode: ModeATR, EntryPrice: 100, StopLoss: f(95)}
		d, err := Check(pos, bar, ready, Params{ATRMult: 2})
		require.NoError(t, err)
		assert.False(t, d.Exit())
		assert.Equal(t, 99.0, d.TrailingStop)
		assert.Equal(t, 97.0, *d.StopLoss)
	})

	t.Run("breakout entries keep their stop", func(t *testing.T) {
		pos := Position{Side: Long, Strategy: strategy.NameBreakoutRetest, TrailingMode: ModeATR, EntryPrice: 100}
		d, err := Check(pos, bar, ready, Params{ATRMult: 2})
		require.NoError(t, err)
		assert.Nil(t, d.StopLoss)
	})

	t.Run("not ready", func(t *testing.T) {
		_, err := Check(Position{Side: Long, TrailingMode: ModeATR}, bar, market.Indicators{}, Params{})
		assert.ErrorIs(t, err, errkind.ErrMissingInput)
	})
}
