package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"trendbot/internal/config"
	cfgloader "trendbot/internal/config/loader"
	"trendbot/internal/engine"
	"trendbot/internal/logger"
	"trendbot/internal/scheduler"
	livehttp "trendbot/internal/transport/http/live"
)

// App wires the decision loop, the status server and the watchlist watcher.
type App struct {
	cfg         *config.Config
	coordinator *engine.Coordinator
	poller      *scheduler.Poller
	http        *livehttp.Server
	watchlist   *cfgloader.WatchlistLoader
	closers     []func() error
	Summary     *StartupSummary
}

// NewApp builds the application without starting it.
func NewApp(ctx context.Context, cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return NewAppBuilder(cfg, opts...).Build(ctx)
}

// Run blocks until ctx is cancelled or a component fails, then releases the
// stores.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.coordinator == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.close()
	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.watchlist != nil {
		a.watchlist.Subscribe(func(snap cfgloader.Snapshot) {
			active := snap.Active()
			names := make([]string, 0, len(active))
			for _, e := range active {
				names = append(names, e.Symbol)
			}
			logger.Infof("app: watchlist reloaded, active symbols: %s", formatList(names))
		})
		a.watchlist.Watch()
	}

	group, ctx := errgroup.WithContext(ctx)
	if a.http != nil {
		group.Go(func() error {
			if err := a.http.Start(ctx); err != nil {
				return fmt.Errorf("status http server error: %w", err)
			}
			return nil
		})
	}
	group.Go(func() error {
		a.poller.Run(ctx, a.coordinator.Tick)
		return nil
	})
	err := group.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Coordinator exposes the engine, mainly for tests.
func (a *App) Coordinator() *engine.Coordinator {
	if a == nil {
		return nil
	}
	return a.coordinator
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warnf("app: close: %v", err)
		}
	}
	a.closers = nil
}
