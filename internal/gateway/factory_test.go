package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trendbot/internal/config"
	"trendbot/internal/gateway/exchange"
)

func TestNewSourceFromConfig(t *testing.T) {
	for _, name := range []string{"binance", "gate"} {
		t.Run(name, func(t *testing.T) {
			src, err := NewSourceFromConfig(&config.Config{Exchange: config.ExchangeConfig{Name: name, HTTPTimeoutSeconds: 5}})
			require.NoError(t, err)
			assert.Equal(t, name, src.Name())
		})
	}

	t.Run("unknown source", func(t *testing.T) {
		_, err := NewSourceFromConfig(&config.Config{Exchange: config.ExchangeConfig{Name: "kraken"}})
		require.Error(t, err)
	})
}

func TestNewExchangeFromConfig(t *testing.T) {
	t.Run("paper", func(t *testing.T) {
		ex, err := NewExchangeFromConfig(&config.Config{Exchange: config.ExchangeConfig{Mode: config.ModePaper, PaperEquity: 500}})
		require.NoError(t, err)
		require.IsType(t, &exchange.Paper{}, ex)
		assert.Equal(t, "paper", ex.Name())
	})

	t.Run("testnet", func(t *testing.T) {
		ex, err := NewExchangeFromConfig(&config.Config{Exchange: config.ExchangeConfig{
			Mode: config.ModeTestnet, APIKey: "k", APISecret: "s",
		}})
		require.NoError(t, err)
		assert.Equal(t, "binance-testnet", ex.Name())
	})

	t.Run("live without confirmation", func(t *testing.T) {
		_, err := NewExchangeFromConfig(&config.Config{Exchange: config.ExchangeConfig{
			Mode: config.ModeLive, APIKey: "k", APISecret: "s",
		}})
		require.Error(t, err)
	})

	t.Run("testnet without keys", func(t *testing.T) {
		_, err := NewExchangeFromConfig(&config.Config{Exchange: config.ExchangeConfig{Mode: config.ModeTestnet}})
		require.Error(t, err)
	})
}
