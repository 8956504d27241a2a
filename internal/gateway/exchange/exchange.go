// Package exchange defines the order sink the engine trades through. Enter
// and exit fills come back synchronously; a returned error means nothing was
// filled.
package exchange

import "context"

type Exchange interface {
	Name() string

	// PlaceMarket sends a market order and waits for its fill.
	PlaceMarket(ctx context.Context, req OrderRequest) (*Fill, error)

	// Equity reports the account equity in the quote currency.
	Equity(ctx context.Context) (float64, error)
}
