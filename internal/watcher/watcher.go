// Package watcher reports changes to a dynamic set of files.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	"github.com/winchesHe/devproxy/internal/loader"
	"github.com/winchesHe/devproxy/pkg/metrics"
)

type Op string

const (
	OpChange Op = "change"
	OpAdd    Op = "add"
	OpRemove Op = "remove"
)

// Event is one change to a tracked file.
type Event struct {
	Op   Op
	Path string
}

// Watcher tracks a set of files and emits an Event whenever one of them is
// written, created or removed.
//
// Subscriptions are made on the parent directories of the tracked files so
// that a file replaced by rename, as many editors save, keeps being watched.
// A file whose directory does not exist yet is anchored on its nearest
// existing ancestor and moves down as the missing directories appear.
type Watcher struct {
	fs     *fsnotify.Watcher
	logger *logrus.Logger
	events chan Event
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	tracked    loader.DependencySet
	anchors    map[string]string // tracked file -> watched directory
	dirs       map[string]int    // tracked files per watched directory
	subscribed map[string]bool

	closeOnce sync.Once
}

func New(deps loader.DependencySet, logger *logrus.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fs:         fsw,
		logger:     logger,
		events:     make(chan Event, 64),
		done:       make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
		tracked:    loader.NewDependencySet(),
		anchors:    make(map[string]string),
		dirs:       make(map[string]int),
		subscribed: make(map[string]bool),
	}

	w.mu.Lock()
	for _, p := range deps.Paths() {
		w.track(p)
	}
	w.mu.Unlock()

	go w.loop()
	return w, nil
}

// Events returns the channel of file events. It is closed by Close.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Tracked returns a copy of the tracked file set.
func (w *Watcher) Tracked() loader.DependencySet {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tracked.Clone()
}

// Reconcile moves the tracked set from old to next: files only in next start
// being watched, tracked files missing from next are dropped, and directories
// left without tracked files are unsubscribed.
func (w *Watcher) Reconcile(old, next loader.DependencySet) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if old.Equal(next) && w.tracked.Equal(next) {
		return
	}

	for _, p := range w.tracked.Paths() {
		if !next.Has(p) {
			w.untrack(p)
		}
	}
	for _, p := range next.Paths() {
		if !w.tracked.Has(p) {
			w.track(p)
		}
	}

	w.logger.WithFields(logrus.Fields{
		"files":       len(w.tracked),
		"directories": len(w.subscribed),
	}).Debug("Reconciled watched files")
}

// Close stops watching and closes the event channel.
func (w *Watcher) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		close(w.done)
		err = w.fs.Close()
	})
	return err
}

func (w *Watcher) track(path string) {
	w.tracked.Add(path)
	metrics.WatchedFiles.Set(float64(len(w.tracked)))

	dir := nearestDir(filepath.Dir(path))
	w.anchors[path] = dir
	w.hold(dir)
}

func (w *Watcher) untrack(path string) {
	delete(w.tracked, path)
	metrics.WatchedFiles.Set(float64(len(w.tracked)))

	dir := w.anchors[path]
	delete(w.anchors, path)
	w.release(dir)
}

// hold adds a reference to dir, subscribing it on the first one.
func (w *Watcher) hold(dir string) {
	w.dirs[dir]++
	if w.subscribed[dir] {
		return
	}
	if err := w.fs.Add(dir); err != nil {
		w.logger.WithError(err).WithField("dir", dir).Warn("Failed to watch config directory, retrying")
		go w.resubscribe(dir)
		return
	}
	w.subscribed[dir] = true
}

// release drops a reference to dir, unsubscribing it on the last one.
func (w *Watcher) release(dir string) {
	w.dirs[dir]--
	if w.dirs[dir] > 0 {
		return
	}
	delete(w.dirs, dir)
	if !w.subscribed[dir] {
		return
	}
	delete(w.subscribed, dir)
	if err := w.fs.Remove(dir); err != nil {
		w.logger.WithError(err).WithField("dir", dir).Debug("Failed to unwatch config directory")
	}
}

// resubscribe retries a failed directory subscription in the background, so
// callers of track never wait on it.
func (w *Watcher) resubscribe(dir string) {
	err := retry.Do(
		func() error {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.dirs[dir] == 0 || w.subscribed[dir] {
				return nil
			}
			if err := w.fs.Add(dir); err != nil {
				return err
			}
			w.subscribed[dir] = true
			return nil
		},
		retry.Context(w.ctx),
		retry.Attempts(5),
		retry.Delay(100*time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil && w.ctx.Err() == nil {
		w.logger.WithError(err).WithField("dir", dir).Error("Giving up watching config directory")
	}
}

// reanchor moves every tracked file to the nearest existing ancestor of its
// directory and returns the files that became reachable in their own
// directory and already exist.
func (w *Watcher) reanchor() []string {
	var appeared []string
	for _, path := range w.tracked.Paths() {
		moved := false
		// Directories may appear or vanish before a new subscription lands,
		// so look again after every move.
		for {
			current := w.anchors[path]
			dir := nearestDir(filepath.Dir(path))
			if dir == current {
				break
			}
			w.anchors[path] = dir
			w.hold(dir)
			w.release(current)
			moved = true
		}

		if moved && w.anchors[path] == filepath.Dir(path) {
			if _, err := os.Stat(path); err == nil {
				appeared = append(appeared, path)
			}
		}
	}
	return appeared
}

// nearestDir returns dir if it exists, or its closest existing ancestor.
func nearestDir(dir string) string {
	for {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func (w *Watcher) loop() {
	defer close(w.events)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			for _, e := range w.translate(ev) {
				select {
				case w.events <- e:
				case <-w.done:
					return
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Warn("File watch error")
		}
	}
}

func (w *Watcher) translate(ev fsnotify.Event) []Event {
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.tracked.Has(path) {
		return w.directoryChanged(ev, path)
	}

	switch {
	case ev.Has(fsnotify.Create):
		return []Event{{Op: OpAdd, Path: path}}
	case ev.Has(fsnotify.Write):
		return []Event{{Op: OpChange, Path: path}}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		return []Event{{Op: OpRemove, Path: path}}
	}
	return nil
}

// directoryChanged re-anchors tracked files when a directory on the way to
// one of them is created or removed.
func (w *Watcher) directoryChanged(ev fsnotify.Event, path string) []Event {
	switch {
	case ev.Has(fsnotify.Create):
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			return nil
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		if _, ok := w.dirs[path]; !ok {
			return nil
		}
		// The kernel drops the watch with the directory.
		delete(w.subscribed, path)
	default:
		return nil
	}

	var out []Event
	for _, p := range w.reanchor() {
		out = append(out, Event{Op: OpAdd, Path: p})
	}
	return out
}
