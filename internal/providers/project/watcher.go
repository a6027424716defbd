package project

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

const watchDebounce = 500 * time.Millisecond

// ChangeCallback is invoked, debounced, when a watched project root changes.
type ChangeCallback func(projectID, path string)

// Watcher monitors project root directories so the UI can re-detect a
// project when its manifest files change. Only the root itself is watched;
// toolchain markers live there.
type Watcher struct {
	callback ChangeCallback
	logger   *logging.Logger

	mu      sync.Mutex
	watches map[string]*rootWatch // projectID -> watch
}

type rootWatch struct {
	projectID string
	path      string
	fsWatcher *fsnotify.Watcher
	cancel    chan struct{}
}

// NewWatcher creates a watcher delivering change notifications to callback.
func NewWatcher(callback ChangeCallback, logger *logging.Logger) *Watcher {
	return &Watcher{
		callback: callback,
		logger:   logger.Named("watcher"),
		watches:  make(map[string]*rootWatch),
	}
}

// Watch starts watching a project root. Watching an already-watched project
// replaces the previous watch (the path may have changed).
func (w *Watcher) Watch(projectID, path string) error {
	fsW, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsW.Add(path); err != nil {
		fsW.Close()
		return err
	}

	rw := &rootWatch{
		projectID: projectID,
		path:      path,
		fsWatcher: fsW,
		cancel:    make(chan struct{}),
	}

	w.mu.Lock()
	prev := w.watches[projectID]
	w.watches[projectID] = rw
	w.mu.Unlock()

	if prev != nil {
		close(prev.cancel)
		prev.fsWatcher.Close()
	}

	go w.watchLoop(rw)

	w.logger.Debug("Watching project root",
		zap.String("project_id", projectID), zap.String("path", path))
	return nil
}

// Unwatch stops watching a project. Unknown ids are no-ops.
func (w *Watcher) Unwatch(projectID string) {
	w.mu.Lock()
	rw, ok := w.watches[projectID]
	if ok {
		delete(w.watches, projectID)
	}
	w.mu.Unlock()

	if ok {
		close(rw.cancel)
		rw.fsWatcher.Close()
	}
}

// Shutdown stops every watch.
func (w *Watcher) Shutdown() {
	w.mu.Lock()
	ids := make([]string, 0, len(w.watches))
	for pid := range w.watches {
		ids = append(ids, pid)
	}
	w.mu.Unlock()

	for _, pid := range ids {
		w.Unwatch(pid)
	}
}

// watchLoop forwards fsnotify events, debounced, to the callback.
func (w *Watcher) watchLoop(rw *rootWatch) {
	var timer *time.Timer

	for {
		select {
		case <-rw.cancel:
			if timer != nil {
				timer.Stop()
			}
			return

		case _, ok := <-rw.fsWatcher.Events:
			if !ok {
				return
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				if w.callback != nil {
					w.callback(rw.projectID, rw.path)
				}
			})

		case err, ok := <-rw.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Debug("Watch error",
				zap.String("project_id", rw.projectID), zap.Error(err))
		}
	}
}
