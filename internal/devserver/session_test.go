package devserver

import (
	"context"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptsmith/internal/build"
	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/livereload"
	"github.com/conneroisu/scriptsmith/internal/logging"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// writeProject creates a project directory with a config file and an entry
// point and returns a loader for it.
func writeProject(t *testing.T, entry string) (dir string, load func() (*config.Config, error)) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte(entry), 0o644))

	port := freePort(t)
	live := freePort(t)
	cfg := &config.Config{
		Entry: "src/index.js",
		Build: config.BuildConfig{SourceDir: "src", OutDir: "dist", Target: "es2020"},
		Server: config.ServerConfig{
			Host:     "127.0.0.1",
			Port:     port,
			LivePort: live,
		},
	}
	cfg.Metadata.Name = "Test"
	cfg.Metadata.Match = []string{"https://example.com/*"}

	path := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, config.Save(path, cfg))
	return dir, config.NewLoader(path).Load
}

// entryBundler returns the entry file unchanged, standing in for esbuild.
func entryBundler() build.BundlerFunc {
	return func(_ context.Context, req build.BundleRequest) (*build.Bundle, error) {
		data, err := os.ReadFile(req.Entry)
		if err != nil {
			return nil, err
		}
		return &build.Bundle{Code: data}, nil
	}
}

type runningSession struct {
	session *Session
	cancel  context.CancelFunc
	done    chan error
}

func startSession(t *testing.T, load func() (*config.Config, error)) *runningSession {
	t.Helper()
	s := New(Options{Loader: load, Bundler: entryBundler(), Logger: logging.NewNop()})
	ctx, cancel := context.WithCancel(context.Background())
	rs := &runningSession{session: s, cancel: cancel, done: make(chan error, 1)}
	go func() { rs.done <- s.Run(ctx) }()

	select {
	case <-s.Ready():
	case err := <-rs.done:
		t.Fatalf("session stopped early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("session did not become ready")
	}

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-rs.done:
			assert.NoError(t, err)
		case <-time.After(15 * time.Second):
			t.Error("session did not stop")
		}
	})
	return rs
}

func TestSession_FirstBuildAndReload(t *testing.T) {
	dir, load := writeProject(t, "console.log(1);\n")
	rs := startSession(t, load)

	artifactAddr, liveAddr := rs.session.Addrs()

	resp, err := http.Get("http://" + artifactAddr + "/test.user.js")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/javascript", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "console.log(1);", livereload.ExtractReloadCode(string(body)))
	assert.True(t, strings.Contains(string(body), "ws://127.0.0.1:"))

	var mu sync.Mutex
	var received []string
	client := livereload.NewClient(livereload.ClientOptions{
		URL: "ws://" + liveAddr + "/",
		Executor: livereload.ExecutorFunc(func(_ context.Context, code string) error {
			mu.Lock()
			received = append(received, code)
			mu.Unlock()
			return nil
		}),
	})
	clientDone := make(chan error, 1)
	go func() { clientDone <- client.Run(context.Background()) }()
	defer func() {
		client.Close()
		<-clientDone
	}()
	require.Eventually(t, func() bool { return rs.session.Hub().ClientCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("console.log(2);\n"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) > 0 && received[len(received)-1] == "console.log(2);"
	}, 10*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool { return rs.session.Coordinator().State().String() == "idle" }, 5*time.Second, 10*time.Millisecond)
	stats := rs.session.Coordinator().Stats()
	assert.GreaterOrEqual(t, stats.Builds, int64(1))
	assert.Equal(t, stats.Builds, stats.Broadcasts)
	assert.Zero(t, stats.Failures)
}

func TestSession_ConfigChangeRebuilds(t *testing.T) {
	dir, load := writeProject(t, "console.log(1);\n")
	rs := startSession(t, load)
	artifactAddr, _ := rs.session.Addrs()

	cfgPath := filepath.Join(dir, config.DefaultFileName)
	cfg, err := load()
	require.NoError(t, err)
	cfg.Metadata.Version = "2.0.0"
	require.NoError(t, config.Save(cfgPath, cfg))

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + artifactAddr + "/")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return strings.Contains(string(body), "2.0.0")
	}, 10*time.Second, 20*time.Millisecond)
}

func TestSession_BrokenConfigMidRunIsAbsorbed(t *testing.T) {
	dir, load := writeProject(t, "console.log(1);\n")
	rs := startSession(t, load)

	cfgPath := filepath.Join(dir, config.DefaultFileName)
	require.NoError(t, os.WriteFile(cfgPath, []byte("metadata: [unterminated\n"), 0o644))

	require.Eventually(t, func() bool {
		return rs.session.Coordinator().Stats().Failures > 0
	}, 10*time.Second, 20*time.Millisecond)

	select {
	case err := <-rs.done:
		t.Fatalf("session stopped on a mid-run config error: %v", err)
	default:
	}
	assert.True(t, errors.IsConfigError(rs.session.Coordinator().Stats().LastError))
}

func TestSession_InitialBuildFailureIsFatal(t *testing.T) {
	_, load := writeProject(t, "console.log(1);\n")
	failing := build.BundlerFunc(func(context.Context, build.BundleRequest) (*build.Bundle, error) {
		return nil, errors.NewBuildError(errors.ErrCodeBuildFailed, "bundling src/index.js", nil)
	})

	s := New(Options{Loader: load, Bundler: failing, Logger: logging.NewNop()})
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsBuildError(err))
	assert.Nil(t, s.Hub())
}

func TestSession_InitialConfigFailureIsFatal(t *testing.T) {
	s := New(Options{
		Loader: config.NewLoader(filepath.Join(t.TempDir(), "missing.yml")).Load,
		Logger: logging.NewNop(),
	})
	err := s.Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestSession_PortInUse(t *testing.T) {
	_, load := writeProject(t, "console.log(1);\n")
	cfg, err := load()
	require.NoError(t, err)

	ln, err := net.Listen("tcp", cfg.ServeAddr())
	require.NoError(t, err)
	defer ln.Close()

	s := New(Options{Loader: load, Bundler: entryBundler(), Logger: logging.NewNop()})
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	err = s.Run(ctx)
	require.Error(t, err)

	var se *errors.ScriptsmithError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrCodeListen, se.Code)
}

func TestSession_OutDirChangeMidRunIsRejected(t *testing.T) {
	dir, load := writeProject(t, "console.log(1);\n")
	rs := startSession(t, load)
	artifactAddr, _ := rs.session.Addrs()

	cfgPath := filepath.Join(dir, config.DefaultFileName)
	cfg, err := load()
	require.NoError(t, err)
	cfg.Build.OutDir = "build"
	cfg.Build.SourceDir = "src"
	cfg.Entry = "src/index.js"
	require.NoError(t, config.Save(cfgPath, cfg))

	require.Eventually(t, func() bool {
		return rs.session.Coordinator().Stats().Failures > 0
	}, 10*time.Second, 20*time.Millisecond)

	lastErr := rs.session.Coordinator().Stats().LastError
	assert.True(t, errors.IsConfigError(lastErr))
	assert.ErrorContains(t, lastErr, "build.out_dir")
	assert.NoFileExists(t, filepath.Join(dir, "build", "test.user.js"))

	// Later source edits keep failing rather than writing somewhere unserved.
	before := rs.session.Coordinator().Stats().Failures
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("console.log(2);\n"), 0o644))
	require.Eventually(t, func() bool {
		return rs.session.Coordinator().Stats().Failures > before
	}, 10*time.Second, 20*time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dir, "build", "test.user.js"))

	resp, err := http.Get("http://" + artifactAddr + "/test.user.js")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "console.log(1);", livereload.ExtractReloadCode(string(body)))
}

func TestPinnedLoader(t *testing.T) {
	_, load := writeProject(t, "console.log(1);\n")
	initial, err := load()
	require.NoError(t, err)

	for _, tc := range []struct {
		name   string
		mutate func(*config.Config)
		field  string
	}{
		{"unchanged", func(*config.Config) {}, ""},
		{"metadata only", func(c *config.Config) { c.Metadata.Version = "9.9.9" }, ""},
		{"file name", func(c *config.Config) { c.Build.FileName = "other.user.js" }, "artifact path"},
		{"source dir", func(c *config.Config) { c.Build.SourceDir += "2" }, "build.source_dir"},
		{"port", func(c *config.Config) { c.Server.Port++ }, "server address"},
		{"live port", func(c *config.Config) { c.Server.LivePort++ }, "live-reload address"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			pinned := pinnedLoader(func() (*config.Config, error) {
				cfg, err := load()
				if err == nil {
					tc.mutate(cfg)
				}
				return cfg, err
			}, initial)

			cfg, err := pinned()
			if tc.field == "" {
				require.NoError(t, err)
				assert.NotNil(t, cfg)
				return
			}
			assert.Nil(t, cfg)
			assert.True(t, errors.IsConfigError(err))
			assert.ErrorContains(t, err, tc.field)
		})
	}
}
