// Package watcher watches inbox directories with fsnotify and hands settled files to a handler.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Handler is called once per settled file.
type Handler func(ctx context.Context, path string)

// Watcher watches flat inbox directories. Files are handed over after they have not
// changed for the debounce interval; subdirectories are ignored.
type Watcher struct {
	mu         sync.Mutex
	dirs       []string
	extensions []string
	handle     Handler
	debounce   time.Duration
	fsw        *fsnotify.Watcher
	pending    map[string]*time.Timer
	ctx        context.Context
	done       chan struct{}
	started    bool
	stopOnce   sync.Once
	logger     *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for watcher events.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a file must stay unchanged before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher for dirs. extensions filters file names (empty accepts all).
func New(dirs, extensions []string, handle Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dirs:       cleanDirs(dirs),
		extensions: extensions,
		handle:     handle,
		debounce:   defaultDebounce,
		pending:    make(map[string]*time.Timer),
		ctx:        context.Background(),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func cleanDirs(dirs []string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		if abs, err := filepath.Abs(d); err == nil {
			out = append(out, abs)
		}
	}
	return out
}

// Start begins watching. Missing directories are created. It returns immediately; the
// watcher runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range w.dirs {
		if err := watchDir(fsw, dir); err != nil {
			_ = fsw.Close()
			return err
		}
	}
	w.fsw = fsw
	w.ctx = ctx
	w.started = true
	w.logger.Info("watching inbox", zap.Strings("directories", w.dirs), zap.Strings("extensions", w.extensions))
	go w.run(ctx, fsw.Events, fsw.Errors)
	return nil
}

func watchDir(fsw *fsnotify.Watcher, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return fsw.Add(dir)
}

func (w *Watcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-errs:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	if !w.watched(path) || !matchExtension(path, w.extensions) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		if info, err := os.Stat(path); err == nil && info.Mode().IsRegular() {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		w.cancel(path)
	}
}

// watched reports whether path sits directly inside one of the directories.
func (w *Watcher) watched(path string) bool {
	parent := filepath.Dir(filepath.Clean(path))
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range w.dirs {
		if d == parent {
			return true
		}
	}
	return false
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		ctx, started := w.ctx, w.started
		w.mu.Unlock()
		if !started {
			return
		}
		w.logger.Debug("handling settled file", zap.String("path", path))
		w.handle(ctx, path)
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.pending[path]; ok {
		t.Stop()
		delete(w.pending, path)
	}
}

// AddDirectory starts watching dir and, when syncExisting is set, hands over the files
// already in it.
func (w *Watcher) AddDirectory(dir string, syncExisting bool) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	for _, d := range w.dirs {
		if d == abs {
			w.mu.Unlock()
			return nil
		}
	}
	if w.fsw != nil {
		if err := watchDir(w.fsw, abs); err != nil {
			w.mu.Unlock()
			return err
		}
	}
	w.dirs = append(w.dirs, abs)
	w.mu.Unlock()

	w.logger.Info("inbox directory added", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if syncExisting {
		go w.syncDir(abs)
	}
	return nil
}

// RemoveDirectory stops watching dir. Documents already ingested stay stored.
func (w *Watcher) RemoveDirectory(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, d := range w.dirs {
		if d != abs {
			continue
		}
		if w.fsw != nil {
			_ = w.fsw.Remove(abs)
		}
		w.dirs = append(w.dirs[:i], w.dirs[i+1:]...)
		w.logger.Info("inbox directory removed", zap.String("path", abs))
		return nil
	}
	return nil
}

// Directories returns a copy of the watched directories.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.dirs...)
}

// SyncExisting hands over every matching file already present, in name order.
func (w *Watcher) SyncExisting() {
	for _, dir := range w.Directories() {
		w.syncDir(dir)
	}
}

func (w *Watcher) syncDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn("cannot read inbox directory", zap.String("path", dir), zap.Error(err))
		return
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && matchExtension(e.Name(), w.extensions) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()
	for _, name := range names {
		w.handle(ctx, filepath.Join(dir, name))
	}
}

// Stop stops watching and drops pending files.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	_ = w.fsw.Close()
	w.fsw = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
