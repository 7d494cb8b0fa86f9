package infra

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// StateWatcher signals when the state file changes on disk so the daemon
// can react to CLI commands before its next tick. It watches the parent
// directory because the file is replaced by rename.
type StateWatcher struct {
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	path    string
	notify  chan struct{}
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	logger  *zap.Logger
}

// NewStateWatcher creates a watcher for the file at path.
func NewStateWatcher(path string, logger *zap.Logger) (*StateWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &StateWatcher{
		watcher: watcher,
		path:    filepath.Clean(path),
		notify:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		logger:  logger,
	}, nil
}

// Changes delivers at most one pending notification; bursts coalesce.
func (w *StateWatcher) Changes() <-chan struct{} {
	return w.notify
}

// Start begins watching. It is non-blocking.
func (w *StateWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		w.notRunning()
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		w.notRunning()
		return err
	}
	w.logger.Debug("watching state file", zap.String("path", w.path))

	go w.run(ctx)
	return nil
}

// notRunning undoes Start's claim when it fails before the goroutine runs,
// so Stop only closes the fsnotify watcher.
func (w *StateWatcher) notRunning() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
}

// Stop stops the watcher and waits for its goroutine.
func (w *StateWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		w.logger.Error("error closing state watcher", zap.Error(err))
	}
}

func (w *StateWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.notify <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("state watcher error", zap.Error(err))
		}
	}
}
