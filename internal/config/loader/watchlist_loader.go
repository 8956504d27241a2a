// Package loader reads the watchlist file and keeps it current while the
// process runs.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"trendbot/internal/config"
	"trendbot/internal/logger"
)

// FileConfig is the watchlist file layout.
type FileConfig struct {
	Symbols []config.SymbolConfig `mapstructure:"symbols"`
}

// Snapshot is an immutable view of the watchlist. Entries keep file order.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Entries  []config.SymbolConfig
}

// Active returns the enabled entries.
func (s Snapshot) Active() []config.SymbolConfig {
	out := make([]config.SymbolConfig, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Active() {
			out = append(out, e)
		}
	}
	return out
}

// ChangeListener is called after a successful reload.
type ChangeListener func(Snapshot)

// WatchlistLoader loads the watchlist and reloads it on file change. A
// reload that fails to parse or validate keeps the previous snapshot.
type WatchlistLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewWatchlistLoader reads path once. Call Watch to follow changes.
func NewWatchlistLoader(path string) (*WatchlistLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("watchlist loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	l := &WatchlistLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Watch starts following the file through fsnotify.
func (l *WatchlistLoader) Watch() {
	l.v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("watchlist reload failed (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	l.v.WatchConfig()
}

// Snapshot returns the current watchlist.
func (l *WatchlistLoader) Snapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Active returns the enabled entries of the current snapshot.
func (l *WatchlistLoader) Active() []config.SymbolConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot.Active()
}

// Subscribe registers fn for future reloads.
func (l *WatchlistLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	l.mu.Unlock()
}

func (l *WatchlistLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("watchlist listener panic: %v", r)
				}
			}()
			fn(snap)
		}()
	}
}

func (l *WatchlistLoader) reload() error {
	var file FileConfig
	if err := l.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse watchlist: %w", err)
	}
	entries, err := Normalize(file.Symbols)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = Snapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Entries:  entries,
	}
	l.mu.Unlock()
	logger.Infof("watchlist: loaded %d symbols from %s", len(entries), filepath.Base(l.path))
	return nil
}

// Normalize fills defaults, validates active entries and rejects duplicates.
func Normalize(in []config.SymbolConfig) ([]config.SymbolConfig, error) {
	out := make([]config.SymbolConfig, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		e := raw.Normalize()
		if _, dup := seen[e.Symbol]; dup {
			return nil, fmt.Errorf("watchlist: duplicate symbol %s", e.Symbol)
		}
		seen[e.Symbol] = struct{}{}
		if e.Active() {
			if err := e.Validate(); err != nil {
				return nil, err
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := src
	dst.Entries = append([]config.SymbolConfig(nil), src.Entries...)
	return dst
}
