// Package scheduler drives the decision loop and holds kline interval helpers.
package scheduler

import (
	"context"
	"time"

	"trendbot/internal/logger"
)

// Poller runs a task at a fixed interval. A tick that overruns delays the
// next one; ticks never overlap. With Align set, the first run waits for the
// next Align boundary plus Offset.
type Poller struct {
	Interval       time.Duration
	Align          time.Duration
	Offset         time.Duration
	RunImmediately bool

	nowFn func() time.Time
}

func NewPoller(interval time.Duration) *Poller {
	return &Poller{Interval: interval, RunImmediately: true, nowFn: time.Now}
}

// Run blocks until ctx is done.
func (s *Poller) Run(ctx context.Context, task func(context.Context)) {
	if s == nil || task == nil {
		return
	}
	if s.Interval <= 0 {
		logger.Warnf("scheduler: invalid interval=%s, exit", s.Interval)
		return
	}
	if s.Offset < 0 {
		s.Offset = 0
	}
	if s.nowFn == nil {
		s.nowFn = time.Now
	}
	startAt := s.nowFn().UTC()
	logger.Infof("scheduler: started interval=%s align=%s offset=%s at=%s",
		s.Interval, s.Align, s.Offset, startAt.Format(time.RFC3339))

	if s.RunImmediately {
		task(ctx)
	} else if s.Align > 0 {
		if !sleep(ctx, s.firstWait(startAt)) {
			return
		}
		task(ctx)
	}

	ticks := 0
	for {
		if !sleep(ctx, s.Interval) {
			logger.Infof("scheduler: ctx done after %d ticks, uptime=%s", ticks, s.nowFn().Sub(startAt).Truncate(time.Second))
			return
		}
		task(ctx)
		ticks++
	}
}

func (s *Poller) firstWait(now time.Time) time.Duration {
	now = now.UTC()
	return now.Truncate(s.Align).Add(s.Align).Add(s.Offset).Sub(now)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
