package market

import (
	"context"
	"time"

	"trendbot/internal/logger"
)

// Preheater rebuilds per-symbol state from the kline archive at startup.
// Rehydrated bars update indicators only; no strategy sees them.
type Preheater struct {
	Store KlineStore
	Book  *Book
	Max   int
}

func NewPreheater(s KlineStore, book *Book, max int) *Preheater {
	return &Preheater{Store: s, Book: book, Max: max}
}

// Preheat loads up to Max archived bars for each symbol.
func (p *Preheater) Preheat(ctx context.Context, interval string, targets map[string]IndicatorParams) {
	if p == nil || p.Store == nil || p.Book == nil {
		return
	}
	for sym, params := range targets {
		batch, err := p.Store.Load(ctx, sym, interval, p.Max)
		if err != nil {
			logger.Warnf("preheat: load %s %s failed: %v", sym, interval, err)
			continue
		}
		if len(batch) == 0 {
			logger.Debugf("preheat: %s %s archive empty", sym, interval)
			continue
		}
		accepted, err := p.Book.Apply(sym, batch, params)
		if err != nil {
			logger.Warnf("preheat: apply %s failed: %v", sym, err)
			continue
		}
		last := batch[len(batch)-1]
		logger.Infof("preheat: %s %s bars=%d accepted=%d last_close=%s", sym, interval, len(batch), accepted,
			time.UnixMilli(last.CloseTime).UTC().Format(time.RFC3339))
	}
}
