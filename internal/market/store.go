package market

import (
	"context"
)

// KlineStore archives closed bars so market state can be rebuilt on restart.
type KlineStore interface {
	Load(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Put(ctx context.Context, symbol, interval string, klines []Candle) error
}
