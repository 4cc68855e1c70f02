// Package watcher keeps the index in sync with the corpus: filesystem
// events on Markdown files are debounced into incremental builds.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opencontext/opencontext/internal/ocerrors"
)

// DefaultDebounce coalesces bursts of events (editors often write a
// file several times in quick succession).
const DefaultDebounce = 500 * time.Millisecond

// BuildFunc runs one incremental index build. The watcher calls it
// after each quiet period; a rejected concurrent build is retried on
// the next burst.
type BuildFunc func(ctx context.Context) error

// Watcher observes a corpus root recursively for Markdown changes.
type Watcher struct {
	root     string
	debounce time.Duration
	build    BuildFunc
	logger   *slog.Logger

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	trigger chan struct{}
}

// New creates a watcher for a corpus root.
func New(root string, debounce time.Duration, build BuildFunc, logger *slog.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		root:     root,
		debounce: debounce,
		build:    build,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// Run watches until the context is cancelled. Blocking; callers run it
// in its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to start filesystem watcher", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addRecursive(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching corpus", slog.String("root", w.root))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(fsw, event)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", slog.String("error", err.Error()))

		case <-w.trigger:
			w.runBuild(ctx)
		}
	}
}

// handleEvent filters noise and schedules a debounced build.
func (w *Watcher) handleEvent(fsw *fsnotify.Watcher, event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") {
		return
	}

	// New directories need their own watch for recursion.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addRecursive(fsw, event.Name); err != nil {
				w.logger.Warn("failed to watch new directory",
					slog.String("path", event.Name), slog.String("error", err.Error()))
			}
			return
		}
	}

	if !strings.HasSuffix(strings.ToLower(name), ".md") {
		return
	}
	if !event.Op.Has(fsnotify.Create | fsnotify.Write | fsnotify.Remove | fsnotify.Rename) {
		return
	}

	w.logger.Debug("corpus change", slog.String("path", event.Name), slog.String("op", event.Op.String()))
	w.schedule()
}

// schedule arms (or re-arms) the debounce timer; the build fires after
// a quiet period.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) runBuild(ctx context.Context) {
	w.mu.Lock()
	if !w.pending {
		w.mu.Unlock()
		return
	}
	w.pending = false
	w.mu.Unlock()

	if err := w.build(ctx); err != nil {
		if ocerrors.IsKind(err, ocerrors.KindConcurrentBuildRejected) {
			// A manual build is running; changes are picked up later.
			w.logger.Debug("auto-sync skipped, build in progress")
			w.schedule()
			return
		}
		w.logger.Error("auto-sync build failed", slog.String("error", err.Error()))
	}
}

// addRecursive watches a directory tree, skipping hidden directories
// (the .oc data dir in particular).
func (w *Watcher) addRecursive(fsw *fsnotify.Watcher, root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		return ocerrors.Wrap(ocerrors.KindIO, "failed to watch corpus tree", err)
	}
	return nil
}
