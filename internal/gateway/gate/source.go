package gate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"trendbot/internal/market"
	"trendbot/internal/pkg/errkind"
	symbolpkg "trendbot/internal/pkg/symbol"
	"trendbot/internal/scheduler"

	"github.com/antihax/optional"
	gateapi "github.com/gateio/gateapi-go/v7"
)

const (
	gateSettle          = "usdt"
	gateMaxHistoryLimit = 2000
	defaultGateREST     = "https://api.gateio.ws/api/v4"
)

var _ market.Source = (*Source)(nil)

// Config points the source at Gate's futures REST API.
type Config struct {
	RESTBaseURL  string
	HTTPTimeout  time.Duration
	ProxyEnabled bool
	RESTProxyURL string
}

func (c Config) normalized() Config {
	c.RESTBaseURL = strings.TrimSpace(c.RESTBaseURL)
	if c.RESTBaseURL == "" {
		c.RESTBaseURL = defaultGateREST
	}
	c.RESTProxyURL = strings.TrimSpace(c.RESTProxyURL)
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = 15 * time.Second
	}
	return c
}

// Source reads USDT-settled perpetual candles from Gate.io.
type Source struct {
	cfg  Config
	rest *gateapi.APIClient
}

func New(cfg Config) (*Source, error) {
	final := cfg.normalized()
	restClient, err := newRESTClient(final)
	if err != nil {
		return nil, err
	}
	return &Source{cfg: final, rest: restClient}, nil
}

func newRESTClient(cfg Config) (*gateapi.APIClient, error) {
	conf := gateapi.NewConfiguration()
	conf.BasePath = cfg.RESTBaseURL
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	if cfg.ProxyEnabled && cfg.RESTProxyURL != "" {
		proxyURL, err := url.Parse(cfg.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid gate REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	conf.HTTPClient = httpClient
	return gateapi.NewAPIClient(conf), nil
}

func (s *Source) Name() string { return "gate" }

// FetchHistory converts Gate candlesticks, which carry only an open time in
// seconds, into closed bars.
func (s *Source) FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	if limit > gateMaxHistoryLimit {
		limit = gateMaxHistoryLimit
	}
	normalized := symbolpkg.Normalize(symbol)
	if normalized == "" {
		return nil, fmt.Errorf("symbol is required: %w", errkind.ErrInvalidParameter)
	}
	contract := symbolpkg.Gate.ToExchange(normalized)

	interval = strings.ToLower(strings.TrimSpace(interval))
	dur, ok := scheduler.ParseIntervalDuration(interval)
	if !ok {
		return nil, fmt.Errorf("interval %q: %w", interval, errkind.ErrInvalidParameter)
	}
	opts := &gateapi.ListFuturesCandlesticksOpts{
		Limit:    optional.NewInt32(int32(limit)),
		Interval: optional.NewString(interval),
	}
	kls, _, err := s.rest.FuturesApi.ListFuturesCandlesticks(ctx, gateSettle, contract, opts)
	if err != nil {
		return nil, fmt.Errorf("gate candlesticks %s %s: %v: %w", contract, interval, err, errkind.ErrMarketDataGap)
	}
	out := make([]market.Candle, 0, len(kls))
	for _, kl := range kls {
		openTime := int64(kl.T * 1000)
		out = append(out, market.Candle{
			OpenTime:  openTime,
			CloseTime: openTime + dur.Milliseconds() - 1,
			Open:      parseFloat(kl.O),
			High:      parseFloat(kl.H),
			Low:       parseFloat(kl.L),
			Close:     parseFloat(kl.C),
			Volume:    parseFloat(kl.Sum),
		})
	}
	return scheduler.DropInProgress(out, dur), nil
}

func parseFloat(v string) float64 {
	f, _ := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return f
}
