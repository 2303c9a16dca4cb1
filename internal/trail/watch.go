package trailrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// WatchEvent represents a filesystem event type.
type WatchEvent string

// Watch event types.
const (
	EventCreate WatchEvent = "create"
	EventModify WatchEvent = "modify"
	EventDelete WatchEvent = "delete"
	EventRename WatchEvent = "rename"
	EventChmod  WatchEvent = "chmod"
)

// WatchMessage describes one filesystem event that survived the same
// exclusion and include rules a walk applies.
type WatchMessage struct {
	Path  string     // Full path to the file
	Name  string     // Base name of the file
	Event WatchEvent // Event type
	Size  int64      // Size in bytes (0 for deleted files)
	Time  time.Time  // Modification time
	IsDir bool       // Whether the entry is a directory
}

// WatchResult carries either a message or a non-fatal watch error.
type WatchResult struct {
	Message WatchMessage
	Error   error
}

// WatchHandler processes watch events. Returning an error does not stop the
// watch; it is logged and watching continues.
type WatchHandler func(ctx context.Context, result WatchResult) error

// Watch monitors the tree under root for filesystem changes, filtering
// events through the project's ignore rules and the include pattern exactly
// as Walk does. Newly created directories are added to the watch unless
// excluded. Watch blocks until ctx is done; watcher errors are handed to
// the handler as event errors, never returned.
func (r *Runner) Watch(ctx context.Context, root string, handler WatchHandler) error {
	if ctx == nil {
		ctx = context.Background()
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving watch root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}

	base := ProjectRoot(abs)
	ignore := newIgnoreSet(r.includePattern(), r.logger)
	loadAncestorIgnores(ignore, base, abs)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(abs); err != nil {
		return fmt.Errorf("watching %s: %w", abs, err)
	}

	// Register every non-excluded subdirectory up front.
	walkErr := filepath.WalkDir(abs, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			r.logger.Warn("skipping unwatchable path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() || path == abs {
			return nil
		}
		rel, ok := relParts(base, path)
		if !ok {
			return nil
		}
		if vcsMetaDirs[d.Name()] || ignore.Excluded(rel, true) {
			return filepath.SkipDir
		}
		ignore.AddDir(rel, path)
		if err := watcher.Add(path); err != nil {
			r.logger.Warn("cannot watch directory", zap.String("path", path), zap.Error(err))
		}
		return nil
	})
	if walkErr != nil {
		return fmt.Errorf("registering watch tree: %w", walkErr)
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			r.handleWatchEvent(ctx, watcher, ignore, base, event, handler)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if herr := handler(ctx, WatchResult{Error: fmt.Errorf("watcher error: %w", err)}); herr != nil {
				r.logger.Warn("watch handler failed", zap.Error(herr))
			}

		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Runner) handleWatchEvent(ctx context.Context, watcher *fsnotify.Watcher, ignore *IgnoreSet, base string, event fsnotify.Event, handler WatchHandler) {
	eventType, ok := classifyEvent(event)
	if !ok {
		return
	}

	rel, ok := relParts(base, event.Name)
	if !ok {
		return
	}
	name := filepath.Base(event.Name)

	var info os.FileInfo
	if eventType != EventDelete && eventType != EventRename {
		var err error
		info, err = os.Stat(event.Name)
		if err != nil {
			// The entry vanished between the event and the stat.
			return
		}
	}

	if info != nil && info.IsDir() {
		if vcsMetaDirs[name] || ignore.Excluded(rel, true) {
			return
		}
		if event.Has(fsnotify.Create) {
			ignore.AddDir(rel, event.Name)
			if err := watcher.Add(event.Name); err != nil {
				r.logger.Warn("cannot watch new directory", zap.String("path", event.Name), zap.Error(err))
			}
		}
		return
	}

	if name == IgnoreFileName {
		return
	}
	if ignore.Excluded(rel, false) {
		return
	}
	if !ignore.Included(strings.Join(rel, "/")) {
		return
	}

	msg := WatchMessage{
		Path:  event.Name,
		Name:  name,
		Event: eventType,
		Time:  time.Now(),
	}
	if info != nil {
		msg.Size = info.Size()
		msg.Time = info.ModTime()
	}

	if err := handler(ctx, WatchResult{Message: msg}); err != nil {
		r.logger.Warn("watch handler failed", zap.String("path", event.Name), zap.Error(err))
	}
}

func classifyEvent(event fsnotify.Event) (WatchEvent, bool) {
	switch {
	case event.Has(fsnotify.Create):
		return EventCreate, true
	case event.Has(fsnotify.Write):
		return EventModify, true
	case event.Has(fsnotify.Remove):
		return EventDelete, true
	case event.Has(fsnotify.Rename):
		return EventRename, true
	case event.Has(fsnotify.Chmod):
		return EventChmod, true
	}
	return "", false
}
