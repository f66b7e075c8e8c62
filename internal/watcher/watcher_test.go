package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptsmith/internal/logging"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *eventRecorder) handle(_ context.Context, e ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Path)
	}
	return out
}

func (r *eventRecorder) seen(path string) bool {
	for _, p := range r.paths() {
		if p == path {
			return true
		}
	}
	return false
}

// startWatcher watches root recursively with the default project filters.
func startWatcher(t *testing.T, root string, extra func(*FileWatcher)) *eventRecorder {
	t.Helper()
	fw, err := NewFileWatcher(logging.NewNop())
	require.NoError(t, err)

	rec := &eventRecorder{}
	fw.AddHandler(rec.handle)
	fw.AddFilter(NoDotfileFilter(root))
	require.NoError(t, fw.AddRecursive(root))
	if extra != nil {
		extra(fw)
	}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	t.Cleanup(func() {
		cancel()
		require.NoError(t, fw.Stop())
		<-fw.Done()
	})
	return rec
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestEventTypeString(t *testing.T) {
	assert.Equal(t, "created", EventTypeCreated.String())
	assert.Equal(t, "modified", EventTypeModified.String())
	assert.Equal(t, "unknown", EventType(42).String())
}

func TestFileWatcher_ReportsWrites(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "index.js")
	writeFile(t, file, "console.log(1);")

	rec := startWatcher(t, root, nil)
	writeFile(t, file, "console.log(2);")

	require.Eventually(t, func() bool { return rec.seen(file) }, 5*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_ReportsNestedAndNewDirectories(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "lib", "util.js")
	writeFile(t, nested, "export {};")

	rec := startWatcher(t, root, nil)

	writeFile(t, nested, "export const a = 1;")
	require.Eventually(t, func() bool { return rec.seen(nested) }, 5*time.Second, 10*time.Millisecond)

	newDir := filepath.Join(root, "features")
	require.NoError(t, os.Mkdir(newDir, 0o755))
	// Give the watch loop a moment to add the directory.
	time.Sleep(100 * time.Millisecond)

	added := filepath.Join(newDir, "feature.js")
	writeFile(t, added, "export {};")
	require.Eventually(t, func() bool { return rec.seen(added) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen(newDir), "directories are not reported")
}

func TestFileWatcher_IgnoresDotfilesAndExcludedDirs(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist")
	require.NoError(t, os.MkdirAll(out, 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".cache"), 0o755))

	rec := startWatcher(t, root, func(fw *FileWatcher) {
		fw.AddFilter(ExcludeDirFilter(out))
	})

	writeFile(t, filepath.Join(root, ".index.js.swp"), "x")
	writeFile(t, filepath.Join(root, ".cache", "entry.js"), "x")
	writeFile(t, filepath.Join(out, "test.user.js"), "x")

	marker := filepath.Join(root, "index.js")
	writeFile(t, marker, "x")
	require.Eventually(t, func() bool { return rec.seen(marker) }, 5*time.Second, 10*time.Millisecond)

	for _, p := range rec.paths() {
		assert.Equal(t, marker, p)
	}
}

func TestFileWatcher_RemovalDoesNotTrigger(t *testing.T) {
	root := t.TempDir()
	doomed := filepath.Join(root, "old.js")
	writeFile(t, doomed, "x")

	rec := startWatcher(t, root, nil)
	require.NoError(t, os.Remove(doomed))

	marker := filepath.Join(root, "marker.js")
	writeFile(t, marker, "x")
	require.Eventually(t, func() bool { return rec.seen(marker) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen(doomed))
}

func TestFileWatcher_WatchesSingleFile(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	cfg := filepath.Join(root, "scriptsmith.yml")
	writeFile(t, cfg, "entry: src/index.js\n")

	rec := startWatcher(t, src, func(fw *FileWatcher) {
		require.NoError(t, fw.AddFile(cfg))
	})

	// A sibling of the config file is not reported.
	writeFile(t, filepath.Join(root, "README.md"), "x")
	writeFile(t, cfg, "entry: src/main.js\n")

	require.Eventually(t, func() bool { return rec.seen(cfg) }, 5*time.Second, 10*time.Millisecond)
	assert.False(t, rec.seen(filepath.Join(root, "README.md")))
}

func TestFileWatcher_HandlerErrorDoesNotStopLoop(t *testing.T) {
	root := t.TempDir()
	fw, err := NewFileWatcher(logging.NewNop())
	require.NoError(t, err)

	var mu sync.Mutex
	calls := 0
	fw.AddHandler(func(context.Context, ChangeEvent) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return assert.AnError
	})
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		_ = fw.Stop()
		<-fw.Done()
	}()
	require.NoError(t, fw.Start(ctx))

	writeFile(t, filepath.Join(root, "a.js"), "x")
	writeFile(t, filepath.Join(root, "b.js"), "x")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_StopEndsLoop(t *testing.T) {
	fw, err := NewFileWatcher(logging.NewNop())
	require.NoError(t, err)
	require.NoError(t, fw.AddRecursive(t.TempDir()))
	require.NoError(t, fw.Start(context.Background()))

	require.NoError(t, fw.Stop())
	require.NoError(t, fw.Stop())

	select {
	case <-fw.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("watch loop did not exit after Stop")
	}
}

func TestNoDotfileFilter(t *testing.T) {
	root := t.TempDir()
	filter := NoDotfileFilter(root)

	tests := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "index.js"), true},
		{filepath.Join(root, "lib", "a.js"), true},
		{filepath.Join(root, ".env"), false},
		{filepath.Join(root, ".git", "HEAD"), false},
		{filepath.Join(root, "lib", ".hidden", "a.js"), false},
		{filepath.Join(root, "lib", "a.js.swp"), true},
		{root, true},
		{filepath.Join(filepath.Dir(root), ".outside"), true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, filter(tt.path), tt.path)
	}
}

func TestExcludeDirFilter(t *testing.T) {
	root := t.TempDir()
	out := filepath.Join(root, "dist")
	filter := ExcludeDirFilter(out)

	assert.False(t, filter(out))
	assert.False(t, filter(filepath.Join(out, "a.user.js")))
	assert.True(t, filter(filepath.Join(root, "distribution", "a.js")))
	assert.True(t, filter(filepath.Join(root, "src", "a.js")))
}
