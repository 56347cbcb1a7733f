// Package watch implements the engine's continuous-run mode: a debounced
// fsnotify watcher that re-triggers affected-test analysis whenever
// tracked source files change.
//
// Grounded on the teacher's internal/indexing/watcher.go and
// debounced_rebuilder.go: recursive directory watch via fsnotify plus a
// timer-reset debouncer that batches rapid-fire events into one
// callback — trimmed here to the single onChange callback this engine
// needs instead of the teacher's create/write/remove-specific callbacks.
package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"

	"github.com/standardbeagle/testimpact/internal/diag"
)

// Watcher monitors root for changes to files matching include and not
// matching exclude, invoking onChange with the debounced batch of
// changed paths.
type Watcher struct {
	fsw      *fsnotify.Watcher
	root     string
	include  []string
	exclude  []string
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	onChange func(paths []string)
}

// New builds a Watcher rooted at root. debounce controls how long the
// watcher waits after the last event in a burst before calling onChange.
func New(root string, include, exclude []string, debounce time.Duration, onChange func(paths []string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fsw:      fsw,
		root:     root,
		include:  include,
		exclude:  exclude,
		debounce: debounce,
		pending:  make(map[string]struct{}),
		onChange: onChange,
	}, nil
}

// Run adds watches for every directory under root and processes events
// until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addWatches(); err != nil {
		return err
	}
	defer w.fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			diag.Log("watch", "fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) addWatches() error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil || !info.IsDir() {
			return nil
		}
		if w.matches(path) && isExcludedDir(path, w.exclude) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	info, err := os.Stat(event.Name)
	if err == nil && info.IsDir() {
		if event.Op&fsnotify.Create != 0 {
			_ = w.fsw.Add(event.Name)
		}
		return
	}
	if !w.matches(event.Name) {
		return
	}
	w.schedule(event.Name)
}

func (w *Watcher) matches(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		rel = path
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return false
		}
	}
	if len(w.include) == 0 {
		return true
	}
	for _, pattern := range w.include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func isExcludedDir(path string, exclude []string) bool {
	base := filepath.Base(path)
	for _, pattern := range exclude {
		if ok, _ := doublestar.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(paths) > 0 && w.onChange != nil {
		w.onChange(paths)
	}
}
