// Package watch implements the optional live-reindex trigger: an
// fsnotify-based recursive directory watcher that debounces bursts of
// file system events into a single "repository changed" signal, so a
// caller can re-run the indexer without reacting to every individual
// write.
package watch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// alwaysIgnoredDirs are never descended into, regardless of the
// indexing exclude patterns — walking into them would add thousands of
// inotify watches for no benefit.
var alwaysIgnoredDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	".semindex":    true,
}

// Watcher watches a repository root recursively and emits a debounced
// signal on Events() whenever files change underneath it.
type Watcher struct {
	fsw    *fsnotify.Watcher
	window time.Duration

	events chan struct{}
	errors chan error

	mu       sync.Mutex
	timer    *time.Timer
	pending  bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Watcher with the given debounce window. A zero window
// uses a 300ms default.
func New(debounceWindow time.Duration) (*Watcher, error) {
	if debounceWindow <= 0 {
		debounceWindow = 300 * time.Millisecond
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	return &Watcher{
		fsw:    fsw,
		window: debounceWindow,
		events: make(chan struct{}, 1),
		errors: make(chan error, 8),
		stopCh: make(chan struct{}),
	}, nil
}

// Events returns the channel a debounced "something changed" signal is
// sent on. The channel is buffered to depth 1; a pending signal is not
// duplicated if the consumer hasn't drained it yet.
func (w *Watcher) Events() <-chan struct{} { return w.events }

// Errors returns the channel non-fatal watch errors are sent on.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Start adds root and every subdirectory (skipping alwaysIgnoredDirs) to
// the watch list, then runs the event loop until ctx is cancelled or
// Close is called.
func (w *Watcher) Start(ctx context.Context, root string) error {
	if err := w.addRecursive(root); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			w.Close()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

// Close stops the watcher. Safe to call more than once.
func (w *Watcher) Close() error {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
	})
	return w.fsw.Close()
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && alwaysIgnoredDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// handle debounces ev: a burst of events within window collapses to one
// signal on events.
func (w *Watcher) handle(ev fsnotify.Event) {
	// A newly created directory needs its own watch to see events inside it.
	if ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if !alwaysIgnoredDirs[filepath.Base(ev.Name)] {
				_ = w.fsw.Add(ev.Name)
			}
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.window, w.signal)
}

func (w *Watcher) signal() {
	select {
	case w.events <- struct{}{}:
	default:
	}
}
