package graphcache

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/feinschmecker/internal/checksum"
)

// ChangeCallback is called after an external change to the graph file
// invalidated the cache.
type ChangeCallback func(path string)

// Watch observes the directory of path and invalidates the cache when the
// file is replaced with content that differs from the loaded graph. Writes
// made through the loaded store itself are recognized by checksum and
// ignored. It blocks until ctx is cancelled.
func (c *Cache) Watch(ctx context.Context, path string, cb ChangeCallback) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(filepath.Dir(abs)); err != nil {
		return err
	}
	c.logger.Info("watcher: started", slog.String("path", abs))

	var debounce *time.Timer
	var fire <-chan time.Time
	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(200 * time.Millisecond)
			fire = debounce.C
		} else {
			debounce.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			c.logger.Info("watcher: stopped")
			return nil

		case <-fire:
			if c.changed(abs) {
				c.Invalidate()
				c.logger.Info("watcher: graph file changed", slog.String("path", abs))
				if cb != nil {
					cb(abs)
				}
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 {
				schedule()
			}

		case werr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			c.logger.Error("watcher: error", slog.String("error", werr.Error()))
		}
	}
}

// changed reports whether the file at abs differs from the loaded graph.
func (c *Cache) changed(abs string) bool {
	store, _, ok := c.Loaded()
	if !ok || store.Path() != abs {
		return false
	}
	sum, err := checksum.File(abs)
	if err != nil {
		return false
	}
	return sum != store.Checksum()
}
