package corpus

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates cached documents when their files change on disk.
// Parent directories are watched rather than files so editors that replace
// files by rename are still seen.
type Watcher struct {
	cache  *Cache
	fsw    *fsnotify.Watcher
	logger *zap.Logger
}

// NewWatcher registers the directories of every manifest document.
func NewWatcher(c *Cache, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	dirs := make(map[string]bool)
	for _, d := range c.Manifest().Documents {
		dirs[filepath.Dir(c.Manifest().AbsPath(d))] = true
	}
	for dir := range dirs {
		if err := fsw.Add(dir); err != nil {
			fsw.Close()
			return nil, fmt.Errorf("watching %s: %w", dir, err)
		}
	}

	return &Watcher{cache: c, fsw: fsw, logger: logger.Named("corpus.watcher")}, nil
}

// Run processes events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if w.cache.InvalidatePath(ev.Name) {
				w.logger.Info("corpus document changed", zap.String("path", ev.Name), zap.String("op", ev.Op.String()))
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

// Close stops watching and releases the underlying handles.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
