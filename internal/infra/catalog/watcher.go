package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"mcpscene/internal/domain"
)

const defaultReloadDebounce = 200 * time.Millisecond

// ApplyFunc receives every catalog that reloads cleanly.
type ApplyFunc func(ctx context.Context, catalog domain.Catalog)

type WatcherOptions struct {
	Loader   *Loader
	Path     string
	Apply    ApplyFunc
	Debounce time.Duration
	Logger   *zap.Logger
}

// Watcher reloads the catalog file when it changes on disk.
type Watcher struct {
	loader   *Loader
	path     string
	apply    ApplyFunc
	debounce time.Duration
	logger   *zap.Logger
}

func NewWatcher(opts WatcherOptions) *Watcher {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := opts.Loader
	if loader == nil {
		loader = NewLoader(logger)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultReloadDebounce
	}
	return &Watcher{
		loader:   loader,
		path:     filepath.Clean(opts.Path),
		apply:    opts.Apply,
		debounce: debounce,
		logger:   logger.Named("catalog_watcher"),
	}
}

// Run blocks until ctx is done. The parent directory is watched so editors
// that replace the file by rename are still seen.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	var timer *time.Timer
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path || event.Op == fsnotify.Chmod {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
		case <-timerChan(timer):
			timer = nil
			w.reload(ctx)
		}
	}
}

func (w *Watcher) reload(ctx context.Context) {
	catalog, err := w.loader.Load(ctx, w.path)
	if err != nil {
		w.logger.Warn("config reload failed", zap.String("path", w.path), zap.Error(err))
		return
	}
	if w.apply != nil {
		w.apply(ctx, catalog)
	}
}

func timerChan(timer *time.Timer) <-chan time.Time {
	if timer == nil {
		return nil
	}
	return timer.C
}
