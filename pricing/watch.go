package pricing

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after a write before it
// re-reads the file.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a pricing file when it changes on disk and hands every
// successfully parsed table to a callback. A table that fails to parse is
// logged and the callback is not invoked, so the last good table stays in
// effect.
type Watcher struct {
	path     string
	onChange func(*Policy)
	logger   *slog.Logger
	debounce time.Duration

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the logger.
func WithWatcherLogger(logger *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logger }
}

// WithDebounce sets the delay between a change event and the reload.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, onChange func(*Policy), opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("pricing: create watcher: %w", err)
	}
	w := &Watcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		logger:   slog.Default(),
		debounce: DefaultDebounce,
		watcher:  fw,
		stopChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start watches the directory holding the file, which also catches editors
// that replace the file with a rename.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("pricing: watch %s: %w", dir, err)
	}

	w.wg.Add(1)
	go w.loop()

	w.logger.Info("watching pricing file", "path", w.path)
	return nil
}

// Stop ends the watch loop and waits for it to exit. It is safe to call more
// than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		_ = w.watcher.Close() //nolint:errcheck // shutting down
	})
	w.wg.Wait()
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("pricing watcher error", "path", w.path, "error", err)

		case <-w.stopChan:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	p, err := LoadFile(w.path)
	if err != nil {
		w.logger.Warn("pricing file reload failed, keeping previous table",
			"path", w.path,
			"error", err,
		)
		return
	}
	w.logger.Info("pricing file reloaded", "path", w.path, "rules", p.Len())
	w.onChange(p)
}
