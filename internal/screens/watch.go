package screens

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
)

const reloadDelay = 250 * time.Millisecond

// CatalogWatcher reloads a catalog file when it changes on disk. A file that
// fails to parse is logged and the previous catalog stays in use.
type CatalogWatcher struct {
	path     string
	manager  *Manager
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	debounce *listsync.Debouncer
	done     chan struct{}
}

// WatchCatalog starts watching path until ctx is done. The parent directory
// is watched so editors that replace the file are picked up too.
func WatchCatalog(ctx context.Context, path string, manager *Manager, logger *slog.Logger) (*CatalogWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("screens: watch catalog: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("screens: watch catalog: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("screens: watch catalog: %w", err)
	}
	w := &CatalogWatcher{
		path:     abs,
		manager:  manager,
		logger:   logger,
		watcher:  watcher,
		debounce: listsync.NewDebouncer(nil, reloadDelay),
		done:     make(chan struct{}),
	}
	go w.run(ctx)
	return w, nil
}

// Done is closed once the watcher has stopped.
func (w *CatalogWatcher) Done() <-chan struct{} {
	return w.done
}

func (w *CatalogWatcher) run(ctx context.Context) {
	defer close(w.done)
	defer func() { _ = w.watcher.Close() }()
	defer w.debounce.Cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			w.debounce.Debounce(w.reload)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("screen catalog watcher", slog.Any("error", err))
		}
	}
}

func (w *CatalogWatcher) reload() {
	catalog, err := LoadCatalog(w.path)
	if err != nil {
		w.logger.Error("reload screen catalog", slog.String("path", w.path), slog.Any("error", err))
		return
	}
	w.manager.SetCatalog(catalog)
	w.logger.Info("screen catalog reloaded",
		slog.String("path", w.path),
		slog.Int("screens", len(catalog.Screens)))
}
