// Package risk admits or rejects new entries and owns the aggregate loss
// counters shared by every symbol.
package risk

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrRejected is returned by Allow when a new position must not be opened.
var ErrRejected = errors.New("risk: entry rejected")

// Limits are the gate thresholds.
type Limits struct {
	MaxOpenPositions int
	MaxDailyLoss     float64
	MaxLeverage      float64
	// Cooldown blocks entries for this long after any losing close. Zero disables it.
	Cooldown time.Duration
}

// Gate is safe for concurrent use; the daily loss counter is keyed by UTC
// date and resets lazily when the date changes.
type Gate struct {
	mu        sync.Mutex
	limits    Limits
	dayKey    string
	dailyLoss float64
	lastLoss  time.Time
	now       func() time.Time
}

func NewGate(limits Limits) *Gate {
	return &Gate{limits: limits, now: time.Now}
}

// SetClock replaces the time source used for day rollover and cooldowns.
func (g *Gate) SetClock(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if now != nil {
		g.now = now
	}
}

func dayKey(t time.Time) string { return t.UTC().Format("2006-01-02") }

// Allow checks the open position count, the accumulated daily loss, the
// leverage sanity bound and the optional post-loss cooldown.
func (g *Gate) Allow(openCount int, equity float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if openCount >= g.limits.MaxOpenPositions {
		return fmt.Errorf("%w: open positions %d >= %d", ErrRejected, openCount, g.limits.MaxOpenPositions)
	}
	if loss := g.lossFor(now); loss >= g.limits.MaxDailyLoss {
		return fmt.Errorf("%w: daily loss %.4f >= %.4f", ErrRejected, loss, g.limits.MaxDailyLoss)
	}
	if equity*g.limits.MaxLeverage <= 0 {
		return fmt.Errorf("%w: equity %.4f x leverage %.2f <= 0", ErrRejected, equity, g.limits.MaxLeverage)
	}
	if g.limits.Cooldown > 0 && !g.lastLoss.IsZero() {
		if until := g.lastLoss.Add(g.limits.Cooldown); now.Before(until) {
			return fmt.Errorf("%w: cooling down until %s", ErrRejected, until.UTC().Format(time.RFC3339))
		}
	}
	return nil
}

func (g *Gate) lossFor(now time.Time) float64 {
	if g.dayKey != dayKey(now) {
		return 0
	}
	return g.dailyLoss
}

// RecordClose feeds a realized net PnL into the counters. Only losses count.
func (g *Gate) RecordClose(net float64, at time.Time) {
	if net >= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	key := dayKey(at)
	if key != g.dayKey {
		g.dayKey = key
		g.dailyLoss = 0
	}
	g.dailyLoss += -net
	if at.After(g.lastLoss) {
		g.lastLoss = at
	}
}

// Seed replaces the counters, typically from today's closed positions at startup.
func (g *Gate) Seed(loss float64, lastLoss time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dayKey = dayKey(g.now())
	g.dailyLoss = loss
	g.lastLoss = lastLoss
}

// DailyLoss returns today's accumulated realized loss.
func (g *Gate) DailyLoss() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lossFor(g.now())
}
