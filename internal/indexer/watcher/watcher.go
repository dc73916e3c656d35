// Package watcher indexes paper records dropped into a directory.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultDebounce = 400 * time.Millisecond

// IndexFunc indexes the record file at path.
type IndexFunc func(ctx context.Context, path string) error

// Watcher calls IndexFunc once per created or rewritten .json file, after
// the file has been quiet for the debounce interval.
type Watcher struct {
	dir      string
	debounce time.Duration
	index    IndexFunc
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

func New(dir string, index IndexFunc, opts ...Option) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		debounce: DefaultDebounce,
		index:    index,
		logger:   slog.Default().With("component", "watcher", "dir", dir),
		pending:  make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Debounced files still waiting when ctx
// ends are not indexed.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fs watcher: %w", err)
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watching %s: %w", w.dir, err)
	}
	w.logger.Info("watching for documents", "debounce", w.debounce)

	defer w.stop()
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("watcher stopping", "reason", ctx.Err())
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("fs watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if !strings.EqualFold(filepath.Ext(ev.Name), ".json") {
		return
	}
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		w.schedule(ctx, ev.Name)
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(ev.Name)
	}
}

func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.scheduleLocked(ctx, path)
}

// scheduleLocked (re)arms the timer for path. A callback that already fired
// only clears the pending entry while it still holds its own timer.
func (w *Watcher) scheduleLocked(ctx context.Context, path string) {
	if t, ok := w.pending[path]; ok && t.Stop() {
		w.wg.Done()
	}
	w.wg.Add(1)
	var timer *time.Timer
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if err := w.index(ctx, path); err != nil {
			w.logger.Error("indexing dropped file failed", "file", path, "error", err)
			return
		}
		w.logger.Debug("dropped file indexed", "file", path)
	})
	w.pending[path] = timer
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
}

// stop cancels queued files and waits for running callbacks.
func (w *Watcher) stop() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}
