// Package watch runs a handler on dump files as they appear or change in a
// directory tree.
//
// Events for one file are debounced: a burst of writes yields a single
// handler call once the file has been quiet for the debounce interval.
// Handlers run one at a time on the Run goroutine.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// Watcher watches a directory tree.
type Watcher struct {
	handle   Handler
	match    func(rel string) bool
	debounce time.Duration
	existing bool
	logger   *zap.Logger
	ready    chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets the quiet period before a file is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// WithMatcher limits handling to files whose slash-separated path relative
// to the watched directory satisfies match.
func WithMatcher(match func(rel string) bool) Option {
	return func(w *Watcher) { w.match = match }
}

// WithExisting also handles matching files already present when Run starts.
func WithExisting() Option {
	return func(w *Watcher) { w.existing = true }
}

// New returns a Watcher calling h.
func New(h Handler, opts ...Option) *Watcher {
	w := &Watcher{
		handle:   h,
		match:    func(string) bool { return true },
		debounce: 500 * time.Millisecond,
		logger:   zap.NewNop(),
		ready:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Ready is closed once Run has registered its initial watches.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// Run watches dir until ctx is cancelled. Handler errors are logged and do
// not stop the watcher. Run returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context, dir string) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init: %w", err)
	}
	defer fsw.Close()

	if err := w.addRecursive(fsw, dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	w.logger.Info("watching", zap.String("dir", dir), zap.Duration("debounce", w.debounce))
	close(w.ready)

	if w.existing {
		for _, path := range w.existingFiles(dir) {
			w.run(ctx, path)
		}
	}

	settled := make(chan string, 64)
	timers := make(map[string]*time.Timer)
	defer func() {
		for _, t := range timers {
			t.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(fsw, ev.Name); err != nil {
						w.logger.Warn("watch new directory", zap.String("dir", ev.Name), zap.Error(err))
					}
					continue
				}
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.wanted(dir, ev.Name) {
				continue
			}
			name := ev.Name
			if t, ok := timers[name]; ok {
				t.Stop()
			}
			timers[name] = time.AfterFunc(w.debounce, func() {
				select {
				case settled <- name:
				case <-ctx.Done():
				}
			})

		case name := <-settled:
			delete(timers, name)
			if info, err := os.Stat(name); err != nil || info.IsDir() {
				continue
			}
			w.run(ctx, name)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) run(ctx context.Context, path string) {
	w.logger.Debug("handling file", zap.String("path", path))
	if err := w.handle(ctx, path); err != nil {
		w.logger.Error("handle file", zap.String("path", path), zap.Error(err))
	}
}

// wanted reports whether a file event should be handled. Hidden files,
// including report temp files, never are.
func (w *Watcher) wanted(root, path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return w.match(filepath.ToSlash(rel))
}

// addRecursive watches dir and its subdirectories, skipping hidden ones.
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}

func (w *Watcher) existingFiles(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if w.wanted(dir, path) {
			out = append(out, path)
		}
		return nil
	})
	return out
}
