package market

import "context"

// Source fetches recent klines for one symbol. Results are ascending by close
// time and may overlap with bars already seen; the market state filters them.
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
}
