package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Watcher reloads the manager's config when the file changes on disk.
type Watcher struct {
	manager *Manager
	fsw     *fsnotify.Watcher
	done    chan struct{}
	logger  *slog.Logger
}

// NewWatcher starts watching the manager's config file directory.
// Watching the directory rather than the file survives editors that
// replace the file on save.
func NewWatcher(manager *Manager, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(filepath.Dir(manager.Path())); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		manager: manager,
		fsw:     fsw,
		done:    make(chan struct{}),
		logger:  logger,
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	var timer *time.Timer

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !w.isConfigEvent(event) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)

		case <-w.done:
			return
		}
	}
}

func (w *Watcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.manager.Path()) {
		return false
	}
	return event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) || event.Op.Has(fsnotify.Rename)
}

func (w *Watcher) reload() {
	if err := w.manager.Reload(); err != nil {
		w.logger.Warn("config reload failed", "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.manager.Path())
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.fsw.Close()
}
