package exchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Paper fills every order at its reference price. Equity is fixed.
type Paper struct {
	equity float64
	now    func() time.Time

	mu     sync.Mutex
	orders []Fill
}

func NewPaper(equity float64) *Paper {
	return &Paper{equity: equity, now: time.Now}
}

// SetClock replaces the fill timestamp source, for replays.
func (p *Paper) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

func (p *Paper) Name() string { return "paper" }

func (p *Paper) PlaceMarket(ctx context.Context, req OrderRequest) (*Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Qty <= 0 || req.RefPrice <= 0 {
		return nil, fmt.Errorf("paper order %s qty=%.8f price=%.8f: invalid", req.Symbol, req.Qty, req.RefPrice)
	}
	fill := Fill{
		OrderID:       "paper-" + uuid.NewString(),
		ClientOrderID: req.ClientOrderID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Qty:           req.Qty,
		Price:         req.RefPrice,
		FilledAt:      p.now(),
	}
	p.mu.Lock()
	p.orders = append(p.orders, fill)
	p.mu.Unlock()
	return &fill, nil
}

func (p *Paper) Equity(context.Context) (float64, error) { return p.equity, nil }

// Orders returns every fill so far.
func (p *Paper) Orders() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.orders...)
}
