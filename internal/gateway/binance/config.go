package binance

import (
	"strings"
	"time"
)

const (
	defaultRESTBaseURL = "https://fapi.binance.com"
	testnetRESTBaseURL = "https://testnet.binancefuture.com"
)

type Config struct {
	RESTBaseURL string
	HTTPTimeout time.Duration
	Testnet     bool

	APIKey    string
	APISecret string

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = defaultRESTBaseURL
		if out.Testnet {
			out.RESTBaseURL = testnetRESTBaseURL
		}
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.APIKey = strings.TrimSpace(out.APIKey)
	out.APISecret = strings.TrimSpace(out.APISecret)
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}
