package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DirWatcher watches a local source directory and fires a debounced
// callback when its contents change, so a source-fetch stage can
// re-trigger itself without the user pressing run again.
type DirWatcher struct {
	watcher  *fsnotify.Watcher
	onChange func(path string)
	mu       sync.Mutex
	watched  map[string]bool
	debounce time.Duration
	pending  map[string]*time.Timer
}

// WatcherConfig holds watcher configuration
type WatcherConfig struct {
	DebounceDelay time.Duration // delay before firing onChange (default: 1s)
	OnChange      func(path string)
}

// NewDirWatcher creates a directory watcher
func NewDirWatcher(cfg *WatcherConfig) (*DirWatcher, error) {
	if cfg == nil {
		cfg = &WatcherConfig{}
	}
	if cfg.DebounceDelay == 0 {
		cfg.DebounceDelay = time.Second
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &DirWatcher{
		watcher:  watcher,
		onChange: cfg.OnChange,
		watched:  make(map[string]bool),
		debounce: cfg.DebounceDelay,
		pending:  make(map[string]*time.Timer),
	}, nil
}

// Watch adds a directory to the watch list
func (w *DirWatcher) Watch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	if w.watched[abs] {
		return nil
	}
	if err := w.watcher.Add(abs); err != nil {
		return fmt.Errorf("failed to watch %s: %w", abs, err)
	}
	w.watched[abs] = true
	return nil
}

// Start consumes filesystem events until the context is canceled
func (w *DirWatcher) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.handleEvent(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			slog.Warn("Watcher error", "error", err)
		}
	}
}

// handleEvent debounces change events per path
func (w *DirWatcher) handleEvent(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.pending[path]; exists {
		timer.Stop()
	}

	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if w.onChange != nil {
			w.onChange(path)
		}
	})
}

// Close stops the watcher and cancels pending timers
func (w *DirWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, timer := range w.pending {
		timer.Stop()
	}
	w.pending = make(map[string]*time.Timer)

	return w.watcher.Close()
}
