package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/metadata"
)

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "metadata:\n  name: My Test Script\n  match:\n    - https://example.com/*\n")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "src", "index.js"), cfg.Entry)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Build.SourceDir)
	assert.Equal(t, filepath.Join(dir, "dist"), cfg.Build.OutDir)
	assert.Equal(t, "my-test-script.user.js", cfg.Build.FileName)
	assert.Equal(t, filepath.Join(dir, "dist", "my-test-script.user.js"), cfg.ArtifactPath())
	assert.Equal(t, "es2020", cfg.Build.Target)
	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultPort+1, cfg.Server.LivePort)
	assert.Equal(t, "0.1.0", cfg.Metadata.Version)
	assert.Equal(t, []string{"https://example.com/*"}, cfg.Metadata.Match)
	assert.Equal(t, path, cfg.Path)
}

func TestLoadExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `entry: app/main.ts
build:
  source_dir: app
  out_dir: build
  file_name: custom.user.js
  minify: true
  target: es2017
server:
  host: 127.0.0.1
  port: 9000
  live_port: 9100
metadata:
  name: Explicit
  version: 2.0.0
  grant: [GM_setValue, GM_getValue]
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "app", "main.ts"), cfg.Entry)
	assert.Equal(t, filepath.Join(dir, "build", "custom.user.js"), cfg.ArtifactPath())
	assert.True(t, cfg.Build.Minify)
	assert.Equal(t, "es2017", cfg.Build.Target)
	assert.Equal(t, "127.0.0.1:9000", cfg.ServeAddr())
	assert.Equal(t, "127.0.0.1:9100", cfg.LiveAddr())
	assert.Equal(t, "2.0.0", cfg.Metadata.Version)
	assert.Equal(t, []string{"GM_setValue", "GM_getValue"}, cfg.Metadata.Grant)
}

func TestLoadOverridesAndEnvironment(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "metadata:\n  name: Test\nserver:\n  port: 8000\n")

	t.Setenv("SCRIPTSMITH_SERVER_HOST", "0.0.0.0")

	loader := NewLoader(path)
	loader.Overrides["server.port"] = "9001"

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, 9002, cfg.Server.LivePort)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
}

func TestLoadRereadsFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "metadata:\n  name: First\n")
	loader := NewLoader(path)

	cfg, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "First", cfg.Metadata.Name)

	writeConfig(t, dir, "metadata:\n  name: Second\n  version: 0.2.0\n")

	cfg, err = loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "Second", cfg.Metadata.Name)
	assert.Equal(t, "0.2.0", cfg.Metadata.Version)
}

func TestLoadErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yml")).Load()
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
		assert.ErrorIs(t, err, &errors.ScriptsmithError{Type: errors.ErrorTypeConfig, Code: errors.ErrCodeConfigNotFound})
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "metadata: [unclosed\n")
		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, &errors.ScriptsmithError{Type: errors.ErrorTypeConfig, Code: errors.ErrCodeConfigInvalid})
	})

	t.Run("missing metadata name", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "entry: src/index.js\n")
		_, err := NewLoader(path).Load()
		require.Error(t, err)
		assert.True(t, errors.IsConfigError(err))
		assert.Contains(t, err.Error(), "metadata.name is required")
	})

	t.Run("bad port type", func(t *testing.T) {
		path := writeConfig(t, t.TempDir(), "metadata:\n  name: x\nserver:\n  port: not-a-port\n")
		_, err := NewLoader(path).Load()
		assert.Error(t, err)
	})
}

func TestValidateWithDetails(t *testing.T) {
	base := func() *Config {
		return &Config{
			Entry: "/p/src/index.js",
			Build: BuildConfig{SourceDir: "/p/src", OutDir: "/p/dist", FileName: "x.user.js", Target: "es2020"},
			Server: ServerConfig{
				Host: "localhost", Port: 8787, LivePort: 8788,
			},
			Metadata: metadata.Metadata{Name: "X", Match: []string{"https://example.com/*"}},
		}
	}

	t.Run("valid", func(t *testing.T) {
		result := ValidateWithDetails(base())
		assert.False(t, result.HasErrors())
		assert.Empty(t, result.Warnings)
		assert.NoError(t, Validate(base()))
	})

	testCases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"out dir inside source", func(c *Config) { c.Build.OutDir = "/p/src/dist" }, "build.out_dir"},
		{"file name with separator", func(c *Config) { c.Build.FileName = "../x.js" }, "build.file_name"},
		{"unknown target", func(c *Config) { c.Build.Target = "es3" }, "build.target"},
		{"same ports", func(c *Config) { c.Server.LivePort = 8787 }, "server.live_port"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "server.port"},
		{"host injection", func(c *Config) { c.Server.Host = "localhost;rm" }, "server.host"},
		{"missing entry", func(c *Config) { c.Entry = "" }, "entry"},
		{"missing name", func(c *Config) { c.Metadata.Name = "" }, "metadata"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			result := ValidateWithDetails(cfg)
			require.True(t, result.HasErrors())

			fields := make([]string, 0, len(result.Errors))
			for _, e := range result.Errors {
				fields = append(fields, e.Field)
			}
			assert.Contains(t, fields, tc.field)
			assert.Contains(t, result.String(), tc.field)
		})
	}

	t.Run("warns without match patterns", func(t *testing.T) {
		cfg := base()
		cfg.Metadata.Match = nil
		result := ValidateWithDetails(cfg)
		assert.False(t, result.HasErrors())
		require.Len(t, result.Warnings, 1)
		assert.Equal(t, "metadata.match", result.Warnings[0].Field)
	})
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "my-test-script", Slug("My Test Script"))
	assert.Equal(t, "a-b", Slug("  A -- B!! "))
	assert.Equal(t, "script", Slug("!!!"))
	assert.Equal(t, "v2", Slug("v2"))
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, Save(path, &Config{
		Entry:    "src/index.js",
		Build:    BuildConfig{SourceDir: "src", OutDir: "dist"},
		Server:   ServerConfig{Host: "localhost", Port: 8787},
		Metadata: metadata.Metadata{Name: "Saved", Match: []string{"https://example.com/*"}},
	}))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "Saved", cfg.Metadata.Name)
	assert.Equal(t, "saved.user.js", cfg.Build.FileName)
	assert.Equal(t, filepath.Join(dir, "src", "index.js"), cfg.Entry)
}
