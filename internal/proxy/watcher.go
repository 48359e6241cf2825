package proxy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
)

// Watcher reloads the pool whenever the proxy list file changes.
type Watcher struct {
	path   string
	pool   *Pool
	log    infralogger.Logger
	reload chan struct{}
}

// NewWatcher creates a Watcher for path. Call Run to start it.
func NewWatcher(path string, pool *Pool, log infralogger.Logger) *Watcher {
	if log == nil {
		log = infralogger.NewNop()
	}
	return &Watcher{path: path, pool: pool, log: log, reload: make(chan struct{}, 1)}
}

// Reloaded signals after every successful reload. Tests wait on it.
func (w *Watcher) Reloaded() <-chan struct{} { return w.reload }

// Run watches the file's directory, so editors that replace the file by
// rename are picked up. It blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create proxy watcher: %w", err)
	}
	defer fw.Close()

	if err = fw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch %s: %w", w.path, err)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			w.Reload()
		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("Proxy watcher error", infralogger.Error(watchErr))
		}
	}
}

// Reload re-reads the file and swaps the pool contents. A file that fails to
// parse leaves the pool unchanged.
func (w *Watcher) Reload() {
	endpoints, err := LoadFile(w.path)
	if err != nil {
		w.log.Error("Failed to reload proxy list", infralogger.String("path", w.path), infralogger.Error(err))
		return
	}
	w.pool.Replace(endpoints)
	w.log.Info("Proxy list reloaded", infralogger.Int("count", len(endpoints)))

	select {
	case w.reload <- struct{}{}:
	default:
	}
}
