// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repository

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst of events invalidates.
const DefaultDebounce = 250 * time.Millisecond

// Invalidator drops a cached copy of the document.
type Invalidator interface {
	InvalidateCache()
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets the debounce window. Non-positive values are ignored.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithOnInvalidate registers a callback run after each invalidation.
func WithOnInvalidate(fn func()) WatcherOption {
	return func(w *Watcher) {
		w.onInvalidate = fn
	}
}

// Watcher invalidates a repository's cached document when the file changes.
//
// Description:
//
//	Watches the document's parent directory, since editors and atomic saves
//	replace the file rather than writing it in place. Write, create, rename
//	and remove events on the document's name are coalesced over the
//	debounce window, then the target is invalidated once. The watcher never
//	reloads; the next read through the service notices the new mtime.
//
// Thread Safety:
//
//	Start and Stop may be called from any goroutine. Stop is idempotent.
type Watcher struct {
	dir          string
	name         string
	target       Invalidator
	debounce     time.Duration
	onInvalidate func()

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	timer    *time.Timer
	watching bool
}

// NewWatcher creates a watcher for the document at path.
//
// Inputs:
//   - path: Document location. Its directory must exist when Start is called.
//   - target: Receives InvalidateCache calls.
//   - opts: Optional settings.
//
// Outputs:
//   - *Watcher: The watcher, not yet started.
//   - error: Non-nil if the OS watcher cannot be created.
func NewWatcher(path string, target Invalidator, opts ...WatcherOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		dir:      filepath.Dir(path),
		name:     filepath.Base(path),
		target:   target,
		debounce: DefaultDebounce,
		watcher:  fw,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return nil
	}
	w.watching = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.dir); err != nil {
		w.mu.Lock()
		w.watching = false
		w.mu.Unlock()
		return err
	}
	slog.Info("watching analysis document", "dir", w.dir, "file", w.name)
	go w.processEvents(ctx)
	return nil
}

// Stop releases the OS watcher and cancels any pending invalidation.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.watcher.Close()
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
			w.timer = nil
		}
		w.watching = false
		w.mu.Unlock()
	})
}

// IsWatching reports whether Start succeeded and Stop has not been called.
func (w *Watcher) IsWatching() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.watching
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != w.name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.schedule()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("analysis document watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.watching {
		return
	}
	if w.timer != nil {
		w.timer.Reset(w.debounce)
		return
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	w.timer = nil
	active := w.watching
	w.mu.Unlock()
	if !active {
		return
	}

	w.target.InvalidateCache()
	slog.Debug("analysis document changed, cache invalidated", "file", w.name)
	if w.onInvalidate != nil {
		w.onInvalidate()
	}
}
