// Package watch reruns a build when project sources change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	ferrors "git.home.luguber.info/inful/assetforge/internal/foundation/errors"
	"git.home.luguber.info/inful/assetforge/internal/logfields"
)

// DefaultDebounce is the quiet window after the last change before a rebuild starts.
const DefaultDebounce = 300 * time.Millisecond

// RebuildFunc runs one build. Errors are logged and do not stop the watcher.
type RebuildFunc func(ctx context.Context) error

// Watcher monitors directories (recursively) and single files. A burst of changes
// results in one rebuild; rebuilds never overlap.
type Watcher struct {
	dirs     []string
	files    map[string]struct{}
	ignore   []string
	debounce time.Duration
	rebuild  RebuildFunc

	watcher *fsnotify.Watcher
	trigger chan struct{}
	ready   chan struct{}
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithIgnore excludes directory trees, typically the build directory.
func WithIgnore(dirs ...string) Option {
	return func(w *Watcher) {
		for _, d := range dirs {
			if abs, err := filepath.Abs(d); err == nil {
				w.ignore = append(w.ignore, abs)
			}
		}
	}
}

// New creates a watcher over paths. Directories are watched with their subtrees, files
// through their parent directory. Paths that do not exist are skipped when Run starts.
func New(paths []string, rebuild RebuildFunc, opts ...Option) (*Watcher, error) {
	if rebuild == nil {
		return nil, ferrors.ValidationError("rebuild function is required").Build()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to create file watcher").Fatal().Build()
	}

	w := &Watcher{
		files:    make(map[string]struct{}),
		debounce: DefaultDebounce,
		rebuild:  rebuild,
		watcher:  fw,
		trigger:  make(chan struct{}, 1),
		ready:    make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = fw.Close()
			return nil, ferrors.WrapError(err, ferrors.CategoryConfig, "resolve watch path").
				WithContext("path", p).
				Build()
		}
		info, err := os.Stat(abs)
		switch {
		case err != nil:
			slog.Debug("Watch path does not exist; skipping", logfields.Path(abs))
		case info.IsDir():
			w.dirs = append(w.dirs, abs)
		default:
			w.files[abs] = struct{}{}
		}
	}
	return w, nil
}

// Ready is closed once every path is registered.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() {
		if err := w.watcher.Close(); err != nil {
			slog.Error("Error closing file watcher", logfields.Error(err))
		}
	}()

	for _, d := range w.dirs {
		if err := w.addTree(d); err != nil {
			return err
		}
	}
	for f := range w.files {
		if err := w.watcher.Add(filepath.Dir(f)); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch directory").
				Fatal().
				WithContext("path", filepath.Dir(f)).
				Build()
		}
	}
	slog.Info("Watching for changes", logfields.Count(len(w.dirs)+len(w.files)))
	close(w.ready)

	go w.watchLoop(ctx)
	return w.rebuildLoop(ctx)
}

// addTree registers root and every directory below it that is not ignored.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return ferrors.WrapError(err, ferrors.CategoryFileSystem, "failed to watch directory").
				Fatal().
				WithContext("path", path).
				Build()
		}
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, ig := range w.ignore {
		if within(path, ig) {
			return true
		}
	}
	return false
}

// relevant reports whether a change to path should cause a rebuild.
func (w *Watcher) relevant(path string) bool {
	if w.ignored(path) {
		return false
	}
	if _, ok := w.files[path]; ok {
		return true
	}
	for _, d := range w.dirs {
		if within(path, d) {
			return true
		}
	}
	return false
}

func within(path, dir string) bool {
	return path == dir || strings.HasPrefix(path, dir+string(filepath.Separator))
}

func (w *Watcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op == fsnotify.Chmod || !w.relevant(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addTree(event.Name); err != nil {
						slog.Warn("Could not watch new directory", logfields.Path(event.Name), logfields.Error(err))
					}
				}
			}
			slog.Debug("Change detected", logfields.Path(event.Name), slog.String("op", event.Op.String()))
			w.triggerRebuild()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("File watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) triggerRebuild() {
	select {
	case w.trigger <- struct{}{}:
	default:
		// rebuild already pending
	}
}

// rebuildLoop debounces triggers and runs rebuilds one at a time. Changes that arrive
// during a rebuild schedule exactly one follow-up.
func (w *Watcher) rebuildLoop(ctx context.Context) error {
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.trigger:
			timer.Reset(w.debounce)
		case <-timer.C:
			start := time.Now()
			slog.Info("Rebuilding")
			if err := w.rebuild(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				slog.Error("Rebuild failed", logfields.Error(err))
				continue
			}
			slog.Info("Rebuild finished", logfields.Duration(time.Since(start)))
		}
	}
}
