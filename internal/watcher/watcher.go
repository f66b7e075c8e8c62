// Package watcher reports source and configuration changes to the rebuild
// loop using fsnotify.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/scriptsmith/internal/logging"
)

// FileWatcher watches directory trees and individual files. Every accepted
// event is handed to the handlers as it arrives; coalescing is the
// consumer's job.
type FileWatcher struct {
	watcher  *fsnotify.Watcher
	logger   logging.Logger
	filters  []FileFilter
	handlers []ChangeHandler
	roots    []string
	files    map[string]struct{}
	mutex    sync.RWMutex

	stopOnce sync.Once
	done     chan struct{}
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type    EventType
	Path    string
	ModTime time.Time
	Size    int64
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	default:
		return "unknown"
	}
}

// FileFilter reports whether a path should produce events.
type FileFilter func(path string) bool

// ChangeHandler handles one file change. It runs on the watch loop, so it
// must not block.
type ChangeHandler func(ctx context.Context, event ChangeEvent) error

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger logging.Logger) (*FileWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		watcher: w,
		logger:  logger.WithComponent("watcher"),
		files:   make(map[string]struct{}),
		done:    make(chan struct{}),
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// AddHandler adds a change handler
func (fw *FileWatcher) AddHandler(handler ChangeHandler) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.handlers = append(fw.handlers, handler)
}

// AddFile watches a single file. Its parent directory is watched so that
// editors that save by renaming a temporary file are still seen, but only
// events for the file itself are reported.
func (fw *FileWatcher) AddFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	fw.mutex.Lock()
	fw.files[abs] = struct{}{}
	fw.mutex.Unlock()

	return fw.watcher.Add(filepath.Dir(abs))
}

// AddRecursive watches root and every directory below it, skipping
// directories whose name starts with a dot.
func (fw *FileWatcher) AddRecursive(root string) error {
	abs, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	fw.mutex.Lock()
	fw.roots = append(fw.roots, abs)
	fw.mutex.Unlock()

	return fw.addTree(abs)
}

func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && isHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := fw.watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

// Start runs the watch loop until ctx is done or Stop is called.
func (fw *FileWatcher) Start(ctx context.Context) error {
	go fw.watchLoop(ctx)
	return nil
}

// Stop closes the watcher. The watch loop exits once fsnotify closes its
// channels; Done reports when that has happened.
func (fw *FileWatcher) Stop() error {
	var err error
	fw.stopOnce.Do(func() {
		err = fw.watcher.Close()
	})
	return err
}

// Done is closed when the watch loop has exited.
func (fw *FileWatcher) Done() <-chan struct{} {
	return fw.done
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	defer close(fw.done)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	var eventType EventType
	switch {
	case event.Has(fsnotify.Create):
		eventType = EventTypeCreated
	case event.Has(fsnotify.Write):
		eventType = EventTypeModified
	default:
		// Removals, renames and permission changes never trigger a rebuild.
		return
	}

	path := filepath.Clean(event.Name)
	if !fw.accept(path) {
		return
	}

	info, err := os.Stat(path)
	var modTime time.Time
	var size int64
	if err == nil {
		if info.IsDir() {
			if eventType == EventTypeCreated && fw.inRoot(path) {
				if err := fw.addTree(path); err != nil {
					fw.logger.Warn(ctx, err, "cannot watch new directory", "path", path)
				}
			}
			return
		}
		modTime = info.ModTime()
		size = info.Size()
	}

	changeEvent := ChangeEvent{
		Type:    eventType,
		Path:    path,
		ModTime: modTime,
		Size:    size,
	}

	fw.mutex.RLock()
	handlers := fw.handlers
	fw.mutex.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, changeEvent); err != nil {
			fw.logger.Warn(ctx, err, "file watcher handler error", "path", path)
		}
	}
}

// accept reports whether path is a watched file, or lies inside a watched
// tree and passes every filter.
func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()

	if _, ok := fw.files[path]; ok {
		return true
	}
	if !fw.inRootLocked(path) {
		return false
	}
	for _, filter := range fw.filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func (fw *FileWatcher) inRoot(path string) bool {
	fw.mutex.RLock()
	defer fw.mutex.RUnlock()
	return fw.inRootLocked(path)
}

func (fw *FileWatcher) inRootLocked(path string) bool {
	for _, root := range fw.roots {
		if within(path, root) {
			return true
		}
	}
	return false
}

// NoDotfileFilter rejects paths below root that have any segment starting
// with a dot. Paths outside root are accepted.
func NoDotfileFilter(root string) FileFilter {
	root, _ = filepath.Abs(root)
	return func(path string) bool {
		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
			return true
		}
		for _, segment := range strings.Split(rel, string(filepath.Separator)) {
			if isHidden(segment) {
				return false
			}
		}
		return true
	}
}

// ExcludeDirFilter rejects everything at or below dir.
func ExcludeDirFilter(dir string) FileFilter {
	dir, _ = filepath.Abs(dir)
	return func(path string) bool {
		return !within(path, dir)
	}
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
