package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher keeps a catalog in sync with one directory: written or created
// files are reloaded, removed or renamed files are dropped. Events for the
// same file are debounced so a burst of writes triggers a single reload once
// the file has been quiet for the debounce interval.
type Watcher struct {
	// Loaded, when set before Run, is told about every successful reload.
	Loaded func(name string)

	catalog  *Catalog
	dir      string
	debounce time.Duration
	fw       *fsnotify.Watcher
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher starts watching dir. Call Run to process events.
func NewWatcher(c *Catalog, dir string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	if err := fw.Add(abs); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", abs, err)
	}
	if debounce <= 0 {
		debounce = 100 * time.Millisecond
	}
	return &Watcher{
		catalog:  c,
		dir:      abs,
		debounce: debounce,
		fw:       fw,
		logger:   slog.Default().With("component", "catalog-watcher"),
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Run processes filesystem events until ctx is cancelled, then releases the
// underlying watcher.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching document directory", "dir", w.dir, "debounce", w.debounce)
	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	path := event.Name
	if !w.catalog.Accepts(path) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	w.schedule(path)
}

// schedule (re)starts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(w.debounce, func() { w.fire(path, t) })
	w.pending[path] = t
}

// fire runs when t expires. A timer that already fired but lost the race
// with a newer schedule for the same path does nothing; the newer timer
// owns the reload.
func (w *Watcher) fire(path string, t *time.Timer) {
	w.mu.Lock()
	current := w.pending[path] == t
	if current {
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if current {
		w.sync(path)
	}
}

// sync reloads path if it still exists as a regular file and removes its
// document otherwise. Checking the file rather than the event kind handles
// editors that save through a rename.
func (w *Watcher) sync(path string) {
	name := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		if w.catalog.Remove(name) {
			w.logger.Info("document file gone", "path", path)
		}
		return
	}
	if _, err := w.catalog.LoadFile(path); err != nil {
		w.logger.Error("failed to reload document", "path", path, "error", err)
		return
	}
	w.logger.Debug("document reloaded", "path", path)
	if w.Loaded != nil {
		w.Loaded(name)
	}
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	if err := w.fw.Close(); err != nil {
		w.logger.Warn("closing watcher", "error", err)
	}
}
