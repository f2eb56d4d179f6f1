// Package watcher re-runs an evaluation when the files of a loaded module
// graph change.
//
// Raw file system events are filtered to module files, coalesced over a
// quiet period and handed to a reload function as one batch. The reload
// returns the files of the new graph, so imports added or removed by an
// edit are picked up without restarting.
package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dshills/stratum/internal/loader"
)

// DefaultDebounce is the quiet period before a reload.
const DefaultDebounce = 150 * time.Millisecond

// ErrWatcherClosed is returned when using a closed source.
var ErrWatcherClosed = errors.New("watcher is closed")

// Op is a set of file operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
)

// Has reports whether op includes o.
func (op Op) Has(o Op) bool {
	return op&o == o
}

// String lists the operations in op.
func (op Op) String() string {
	names := []struct {
		op   Op
		name string
	}{
		{OpCreate, "create"},
		{OpWrite, "write"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
	}
	s := ""
	for _, n := range names {
		if op.Has(n.op) {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "none"
	}
	return s
}

// Event is a change to one file.
type Event struct {
	Path string
	Op   Op
	Time time.Time
}

// Source produces raw file events for watched directories.
type Source interface {
	Add(dir string) error
	Remove(dir string) error
	Events() <-chan Event
	Errors() <-chan error
	Close() error
}

// ReloadFunc re-evaluates after the files in changed were modified. It
// returns the module files of the new graph. On error the watched set is
// left as it was.
type ReloadFunc func(ctx context.Context, changed []string) (files []string, err error)

// Watcher drives reloads from a Source.
type Watcher struct {
	source   Source
	reload   ReloadFunc
	debounce time.Duration
	logger   *slog.Logger

	mu    sync.Mutex
	files map[string]bool
	dirs  map[string]bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithDebounce sets the quiet period.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher over files. Their parent directories are added to
// source; the watcher owns source and closes it when Run returns.
func New(source Source, files []string, reload ReloadFunc, opts ...Option) (*Watcher, error) {
	w := &Watcher{
		source:   source,
		reload:   reload,
		debounce: DefaultDebounce,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.track(files); err != nil {
		return nil, err
	}
	return w, nil
}

// Files returns the watched module files in sorted order.
func (w *Watcher) Files() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]string, 0, len(w.files))
	for f := range w.files {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Run delivers batches to the reload function until ctx is done. Reload
// errors are logged and watching continues.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.source.Close()

	deb := NewDebouncer(w.debounce)
	defer deb.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.source.Events():
			if !ok {
				return ErrWatcherClosed
			}
			if w.relevant(ev.Path) {
				w.logger.Debug("file changed", "path", ev.Path, "op", ev.Op.String())
				deb.Add(ev)
			}

		case err, ok := <-w.source.Errors():
			if !ok {
				return ErrWatcherClosed
			}
			w.logger.Warn("watch error", "error", err)

		case batch := <-deb.Batches():
			w.handle(ctx, batch)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, batch Batch) {
	w.logger.Info("reloading", "changed", len(batch.Paths))
	files, err := w.reload(ctx, batch.Paths)
	if err != nil {
		w.logger.Error("reload failed", "error", err)
		return
	}
	if err := w.track(files); err != nil {
		w.logger.Warn("updating watch set", "error", err)
	}
}

// relevant reports whether path is a watched file or a new module file in
// a watched directory.
func (w *Watcher) relevant(path string) bool {
	path = filepath.Clean(path)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.files[path] {
		return true
	}
	return w.dirs[filepath.Dir(path)] && loader.FormatFor(path) != loader.FormatUnknown
}

// track replaces the watched file set and syncs directories with source.
func (w *Watcher) track(files []string) error {
	nextFiles := make(map[string]bool, len(files))
	nextDirs := make(map[string]bool)
	for _, f := range files {
		f = filepath.Clean(f)
		nextFiles[f] = true
		nextDirs[filepath.Dir(f)] = true
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var errs []error
	for d := range nextDirs {
		if !w.dirs[d] {
			if err := w.source.Add(d); err != nil {
				errs = append(errs, err)
				delete(nextDirs, d)
			}
		}
	}
	for d := range w.dirs {
		if !nextDirs[d] {
			if err := w.source.Remove(d); err != nil {
				errs = append(errs, err)
			}
		}
	}
	w.files = nextFiles
	w.dirs = nextDirs
	return errors.Join(errs...)
}
