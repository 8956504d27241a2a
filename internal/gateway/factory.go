// Package gateway builds the candle source and order sink selected by the
// exchange section of the config.
package gateway

import (
	"fmt"
	"time"

	"trendbot/internal/config"
	"trendbot/internal/gateway/binance"
	"trendbot/internal/gateway/exchange"
	"trendbot/internal/gateway/gate"
	"trendbot/internal/market"
)

func NewSourceFromConfig(cfg *config.Config) (market.Source, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	ex := cfg.Exchange
	timeout := time.Duration(ex.HTTPTimeoutSeconds) * time.Second
	switch ex.Name {
	case "", "binance":
		return binance.New(binance.Config{
			RESTBaseURL:  ex.RESTBaseURL,
			HTTPTimeout:  timeout,
			Testnet:      ex.Mode == config.ModeTestnet,
			ProxyEnabled: ex.Proxy.Enabled,
			RESTProxyURL: ex.Proxy.RESTURL,
		})
	case "gate":
		return gate.New(gate.Config{
			RESTBaseURL:  ex.RESTBaseURL,
			HTTPTimeout:  timeout,
			ProxyEnabled: ex.Proxy.Enabled,
			RESTProxyURL: ex.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("unsupported market source: %s", ex.Name)
	}
}

// NewExchangeFromConfig returns the paper executor unless the mode is
// testnet or live, which trade through Binance USDT-M futures.
func NewExchangeFromConfig(cfg *config.Config) (exchange.Exchange, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	ex := cfg.Exchange
	switch ex.Mode {
	case "", config.ModePaper:
		return exchange.NewPaper(ex.PaperEquity), nil
	case config.ModeTestnet, config.ModeLive:
		if ex.Mode == config.ModeLive && !ex.ConfirmLive {
			return nil, fmt.Errorf("live trading requires exchange.confirm_live")
		}
		return binance.NewExecutor(binance.Config{
			RESTBaseURL:  ex.RESTBaseURL,
			HTTPTimeout:  time.Duration(ex.HTTPTimeoutSeconds) * time.Second,
			Testnet:      ex.Mode == config.ModeTestnet,
			APIKey:       ex.APIKey,
			APISecret:    ex.APISecret,
			ProxyEnabled: ex.Proxy.Enabled,
			RESTProxyURL: ex.Proxy.RESTURL,
		})
	default:
		return nil, fmt.Errorf("unsupported exchange mode: %s", ex.Mode)
	}
}
