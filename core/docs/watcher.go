package docs

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 500 * time.Millisecond

// Watcher keeps the index synchronized with edits to the docs source
// tree. Create/write events reindex the file after a short debounce;
// removes drop it from the index.
type Watcher struct {
	index  *Index
	logger *slog.Logger
	fsw    *fsnotify.Watcher
	done   chan struct{}

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher starts watching the index's source directory and all of
// its subdirectories.
func NewWatcher(index *Index, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		index:   index,
		logger:  logger,
		fsw:     fsw,
		done:    make(chan struct{}),
		pending: make(map[string]*time.Timer),
	}

	root := index.config.SourceDir
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("docs watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if event.Op.Has(fsnotify.Create) {
		// New subdirectories need their own watch.
		if isDir(event.Name) {
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.Warn("watch new dir", "path", event.Name, "error", err)
			}
			return
		}
	}

	if !strings.HasSuffix(event.Name, ".md") {
		return
	}

	switch {
	case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
		if err := w.index.RemoveFile(event.Name); err != nil && err != ErrIndexClosed {
			w.logger.Warn("deindex doc", "path", event.Name, "error", err)
		}
	case event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create):
		w.scheduleReindex(event.Name)
	}
}

// scheduleReindex coalesces rapid write bursts for the same file into a
// single reindex after the debounce window.
func (w *Watcher) scheduleReindex(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Stop()
	}
	w.pending[path] = time.AfterFunc(watchDebounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if err := w.index.IndexFile(path); err != nil {
			if err != ErrIndexClosed {
				w.logger.Warn("reindex doc", "path", path, "error", err)
			}
			return
		}
		w.logger.Debug("doc reindexed", "path", path)
	})
}

// Close stops watching and cancels any pending reindexes.
func (w *Watcher) Close() error {
	close(w.done)

	w.mu.Lock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()

	return w.fsw.Close()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
