package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"trendbot/internal/gateway/exchange"
	"trendbot/internal/logger"
	symbolpkg "trendbot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/shopspring/decimal"
)

var _ exchange.Exchange = (*Executor)(nil)

// Executor places USDT-M futures market orders. Leverage is set once per
// symbol before its first order.
type Executor struct {
	cfg    Config
	client *futures.Client

	mu       sync.Mutex
	leverage map[string]int
}

func NewExecutor(cfg Config) (*Executor, error) {
	final := cfg.withDefaults()
	if final.APIKey == "" || final.APISecret == "" {
		return nil, fmt.Errorf("binance executor: api key and secret are required")
	}
	client, err := newClient(final)
	if err != nil {
		return nil, err
	}
	return &Executor{cfg: final, client: client, leverage: make(map[string]int)}, nil
}

func (e *Executor) Name() string {
	if e.cfg.Testnet {
		return "binance-testnet"
	}
	return "binance"
}

func (e *Executor) PlaceMarket(ctx context.Context, req exchange.OrderRequest) (*exchange.Fill, error) {
	sym := symbolpkg.Binance.ToExchange(req.Symbol)
	qty := formatQty(req.Qty, req.QtyDecimals)
	if qty == "" {
		return nil, fmt.Errorf("binance order %s: qty %.8f rounds to zero at %d decimals", sym, req.Qty, req.QtyDecimals)
	}
	if err := e.ensureLeverage(ctx, sym, req.Leverage); err != nil {
		return nil, err
	}
	svc := e.client.NewCreateOrderService().
		Symbol(sym).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.ClientOrderID != "" {
		svc = svc.NewClientOrderID(req.ClientOrderID)
	}
	if req.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance order %s %s %s: %w", sym, req.Side, qty, err)
	}
	price := parseFloat(resp.AvgPrice)
	if price <= 0 {
		logger.Warnf("binance order %d returned no avg price, using reference %.8f", resp.OrderID, req.RefPrice)
		price = req.RefPrice
	}
	filled := parseFloat(resp.ExecutedQuantity)
	if filled <= 0 {
		filled = parseFloat(qty)
	}
	return &exchange.Fill{
		OrderID:       fmt.Sprintf("%d", resp.OrderID),
		ClientOrderID: resp.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           filled,
		Price:         price,
		FilledAt:      time.Now(),
	}, nil
}

func (e *Executor) ensureLeverage(ctx context.Context, sym string, leverage float64) error {
	lev := int(leverage)
	if lev <= 0 {
		return nil
	}
	e.mu.Lock()
	current, ok := e.leverage[sym]
	e.mu.Unlock()
	if ok && current == lev {
		return nil
	}
	if _, err := e.client.NewChangeLeverageService().Symbol(sym).Leverage(lev).Do(ctx); err != nil {
		return fmt.Errorf("binance set leverage %s x%d: %w", sym, lev, err)
	}
	e.mu.Lock()
	e.leverage[sym] = lev
	e.mu.Unlock()
	return nil
}

// Equity sums the USDT wallet balance.
func (e *Executor) Equity(ctx context.Context) (float64, error) {
	balances, err := e.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance balance: %w", err)
	}
	for _, b := range balances {
		if b != nil && strings.EqualFold(b.Asset, "USDT") {
			return parseFloat(b.Balance), nil
		}
	}
	return 0, nil
}

// formatQty truncates to decimals and returns "" when nothing is left.
func formatQty(qty float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	d := decimal.NewFromFloat(qty).Truncate(int32(decimals))
	if !d.IsPositive() {
		return ""
	}
	return d.StringFixed(int32(decimals))
}
