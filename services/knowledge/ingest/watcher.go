// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// ChangeHandler is called once per debounced burst of changes.
type ChangeHandler func(ctx context.Context, path string)

// Watcher reports changes to a single file.
//
// # Description
//
// The parent directory is watched rather than the file, so that editors
// which save by writing a temp file and renaming it over the original are
// still seen. Create and write events for the file restart a debounce
// timer; when it expires the handler runs. Removals are logged and
// otherwise ignored.
//
// # Thread Safety
//
// Start and Stop are safe for concurrent use. The handler is called from a
// single goroutine, never concurrently with itself.
type Watcher struct {
	path     string
	handler  ChangeHandler
	debounce time.Duration
	logger   *slog.Logger

	watcher  *fsnotify.Watcher
	done     chan struct{}
	exited   chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	started bool
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithDebounce sets the quiet period. Non-positive values are ignored.
func WithDebounce(d time.Duration) WatchOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithWatchLogger sets the watcher's logger.
func WithWatchLogger(logger *slog.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, handler ChangeHandler, opts ...WatchOption) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		path:     abs,
		handler:  handler,
		debounce: DefaultDebounce,
		logger:   slog.Default(),
		watcher:  fw,
		done:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Path returns the absolute path being watched.
func (w *Watcher) Path() string {
	return w.path
}

// Start begins watching. It returns once the watch is registered; events
// are processed until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}

	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(w.path), err)
	}
	w.started = true
	go w.loop(ctx)
	w.logger.Info("watching records file", "path", w.path, "debounce", w.debounce)
	return nil
}

// Stop stops watching and waits for a running handler to return.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()

		w.mu.Lock()
		started := w.started
		w.mu.Unlock()
		if started {
			<-w.exited
		}
	})
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.exited)

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			switch {
			case event.Has(fsnotify.Create), event.Has(fsnotify.Write):
				if timer == nil {
					timer = time.NewTimer(w.debounce)
					timerC = timer.C
				} else {
					timer.Reset(w.debounce)
				}
			case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
				w.logger.Debug("records file moved away", "path", w.path, "op", event.Op.String())
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", "path", w.path, "error", err)

		case <-timerC:
			timer, timerC = nil, nil
			if w.handler != nil {
				w.handler(ctx, w.path)
			}
		}
	}
}
