package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Event represents a change to a file that matches the watch pattern.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors a directory for archives matching a doublestar pattern.
// Patterns containing "**" also watch every subdirectory, including ones
// created later.
type Watcher struct {
	fsw       *fsnotify.Watcher
	Events    chan Event
	root      string
	pattern   string
	recursive bool
	dirs      []string
	logger    *slog.Logger
}

// New creates a Watcher for pattern relative to root.
func New(root, pattern string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:       fsw,
		Events:    make(chan Event, 256),
		root:      abs,
		pattern:   pattern,
		recursive: strings.Contains(pattern, "**"),
		logger:    logger,
	}
	if err := w.addTree(abs); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// Start begins listening for file events. It blocks until the context is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev fsnotify.Event) {
	if w.recursive && ev.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := w.addTree(ev.Name); err != nil {
				w.logger.Warn("cannot watch new directory", "dir", ev.Name, "error", err)
			}
			return
		}
	}
	if !w.Match(ev.Name) {
		return
	}
	// Forward relevant events (write, create, remove, rename).
	switch {
	case ev.Op&fsnotify.Write != 0,
		ev.Op&fsnotify.Create != 0,
		ev.Op&fsnotify.Remove != 0,
		ev.Op&fsnotify.Rename != 0:
		select {
		case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
		case <-ctx.Done():
		}
	}
}

// Match reports whether path, absolute or relative to the working
// directory, falls under the watch pattern.
func (w *Watcher) Match(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	ok, err := doublestar.Match(w.pattern, filepath.ToSlash(rel))
	return err == nil && ok
}

// Root returns the absolute directory being watched.
func (w *Watcher) Root() string {
	return w.root
}

// Dirs returns the directories registered with the OS watcher. Call it
// before Start; recursive watchers append to it while running.
func (w *Watcher) Dirs() []string {
	return w.dirs
}

// addTree watches dir, and every directory below it for recursive patterns.
func (w *Watcher) addTree(dir string) error {
	if !w.recursive {
		return w.add(dir)
	}
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return w.add(p)
	})
}

func (w *Watcher) add(dir string) error {
	if err := w.fsw.Add(dir); err != nil {
		return err
	}
	w.dirs = append(w.dirs, dir)
	return nil
}
