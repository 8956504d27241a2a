// Package circuit guards flaky upstream calls with a consecutive-failure
// breaker per key.
package circuit

import (
	"sync"
	"time"

	"trendbot/internal/logger"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

// Breaker opens after threshold consecutive failures and lets one probe
// through once cooloff has elapsed since the last failure.
type Breaker struct {
	mu          sync.Mutex
	name        string
	state       State
	failures    int
	threshold   int
	cooloff     time.Duration
	lastFailure time.Time
	now         func() time.Time
	onChange    func(name string, from, to State)
}

func NewBreaker(name string, threshold int, cooloff time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{name: name, threshold: threshold, cooloff: cooloff, now: time.Now}
}

func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.lastFailure) >= b.cooloff {
			b.transition(StateHalfOpen)
			return true
		}
		return false
	default:
		return true
	}
}

func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	if b.state != StateClosed {
		b.transition(StateClosed)
	}
}

func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		if b.failures >= b.threshold {
			b.transition(StateOpen)
		}
	case StateHalfOpen:
		b.transition(StateOpen)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onChange != nil {
		b.onChange(b.name, from, to)
		return
	}
	logger.Warnf("circuit %s: %s -> %s (failures=%d/%d, cooloff=%s)", b.name, from, to, b.failures, b.threshold, b.cooloff)
}

// Set hands out one breaker per key, created on first use.
type Set struct {
	mu        sync.Mutex
	threshold int
	cooloff   time.Duration
	breakers  map[string]*Breaker
	onChange  func(name string, from, to State)
	now       func() time.Time
}

func NewSet(threshold int, cooloff time.Duration) *Set {
	return &Set{threshold: threshold, cooloff: cooloff, breakers: make(map[string]*Breaker), now: time.Now}
}

// OnStateChange registers a callback invoked synchronously on every transition.
func (s *Set) OnStateChange(fn func(name string, from, to State)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

func (s *Set) Get(key string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.breakers[key]
	if !ok {
		b = NewBreaker(key, s.threshold, s.cooloff)
		b.onChange = s.onChange
		b.now = s.now
		s.breakers[key] = b
	}
	return b
}
