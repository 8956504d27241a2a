package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := map[string]Symbol{
		"btcusdt":       {Base: "BTC", Quote: "USDT"},
		"ETH/USDT":      {Base: "ETH", Quote: "USDT"},
		"SOL_USDT":      {Base: "SOL", Quote: "USDT"},
		"BTC/USDT:USDT": {Base: "BTC", Quote: "USDT"},
		"":              {},
		"XYZ":           {},
	}
	for in, want := range cases {
		assert.Equal(t, want, Parse(in), in)
	}
}

func TestConverters(t *testing.T) {
	assert.Equal(t, "BTCUSDT", Binance.ToExchange("btc/usdt"))
	assert.Equal(t, "BTC/USDT", Binance.FromExchange("BTCUSDT"))
	assert.Equal(t, "BTC_USDT", Gate.ToExchange(Normalize("BTCUSDT")))
	assert.Equal(t, "BTC/USDT", Gate.FromExchange("btc_usdt"))
	assert.Equal(t, "BTCUSDT", Key("btc/usdt"))
	assert.Equal(t, "FOO", Key(" foo "))
	assert.True(t, IsValid("ETHUSDT"))
	assert.False(t, IsValid("ETH"))
}
