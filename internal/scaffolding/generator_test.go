package scaffolding

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
)

func newTestGenerator() *ProjectGenerator {
	g := NewProjectGenerator()
	g.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return g
}

func TestGenerate_WritesLoadableProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "dark-mode_toggle")

	result, err := newTestGenerator().Generate(GenerateOptions{
		Dir:    dir,
		Author: "jo",
		Match:  []string{"https://news.ycombinator.com/*"},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, config.DefaultFileName), result.ConfigPath)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "src", "index.js"),
		filepath.Join(dir, ".gitignore"),
		filepath.Join(dir, "README.md"),
	}, result.Files)

	cfg, err := config.NewLoader(result.ConfigPath).Load()
	require.NoError(t, err)
	assert.Equal(t, "Dark Mode Toggle", cfg.Metadata.Name)
	assert.Equal(t, []string{"https://news.ycombinator.com/*"}, cfg.Metadata.Match)
	assert.Equal(t, filepath.Join(dir, "src", "index.js"), cfg.Entry)
	assert.Equal(t, config.DefaultPort+1, cfg.Server.LivePort)
	assert.Equal(t, "dark-mode-toggle.user.js", filepath.Base(cfg.ArtifactPath()))

	entry, err := os.ReadFile(filepath.Join(dir, "src", "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(entry), "// Dark Mode Toggle")
	assert.Contains(t, string(entry), "window.__scriptsmithCleanup")

	readme, err := os.ReadFile(filepath.Join(dir, "README.md"))
	require.NoError(t, err)
	assert.Contains(t, string(readme), "Created 2024-03-01 by jo.")
	assert.Contains(t, string(readme), "dist/dark-mode-toggle.user.js")

	ignore, err := os.ReadFile(filepath.Join(dir, ".gitignore"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ignore), "dist/\n"))
}

func TestGenerate_RefusesExistingConfig(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator()

	_, err := g.Generate(GenerateOptions{Dir: dir, Name: "First"})
	require.NoError(t, err)

	_, err = g.Generate(GenerateOptions{Dir: dir, Name: "Second"})
	require.Error(t, err)
	var se *errors.ScriptsmithError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, errors.ErrCodeScaffoldExists, se.Code)

	cfg, err := config.NewLoader(filepath.Join(dir, config.DefaultFileName)).Load()
	require.NoError(t, err)
	assert.Equal(t, "First", cfg.Metadata.Name)
}

func TestGenerate_ForceKeepsNothingStale(t *testing.T) {
	dir := t.TempDir()
	g := newTestGenerator()

	_, err := g.Generate(GenerateOptions{Dir: dir, Name: "First"})
	require.NoError(t, err)
	result, err := g.Generate(GenerateOptions{Dir: dir, Name: "Second", Force: true})
	require.NoError(t, err)
	assert.Len(t, result.Files, 3)

	entry, err := os.ReadFile(filepath.Join(dir, "src", "index.js"))
	require.NoError(t, err)
	assert.Contains(t, string(entry), "// Second")
}

func TestGenerate_KeepsExistingSources(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "src", "index.js"), []byte("mine"), 0o644))

	result, err := newTestGenerator().Generate(GenerateOptions{Dir: dir, Name: "Existing"})
	require.NoError(t, err)
	assert.NotContains(t, result.Files, filepath.Join(dir, "src", "index.js"))

	entry, err := os.ReadFile(filepath.Join(dir, "src", "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(entry))
}

func TestGenerate_RejectsMultilineName(t *testing.T) {
	_, err := newTestGenerator().Generate(GenerateOptions{Dir: t.TempDir(), Name: "a\nb"})
	require.Error(t, err)
	assert.True(t, errors.IsConfigError(err))
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		dir  string
		want string
	}{
		{"my-script", "My Script"},
		{"/tmp/work/cool_thing.v2", "Cool Thing V2"},
		{"already Titled", "Already Titled"},
		{"---", "My Script"},
	}
	for _, tt := range tests {
		t.Run(tt.dir, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.dir))
		})
	}
}

func TestPrompter_Interactive(t *testing.T) {
	in := strings.NewReader("Better Feeds\n\nsam\nhttps://a.example/* https://b.example/*\n")
	var out strings.Builder

	opts, err := NewPrompter(in, &out).Interactive(GenerateOptions{Dir: "feeds", Namespace: "https://sam.dev"})
	require.NoError(t, err)

	assert.Equal(t, "Better Feeds", opts.Name)
	assert.Equal(t, "https://sam.dev", opts.Namespace)
	assert.Equal(t, "sam", opts.Author)
	assert.Equal(t, []string{"https://a.example/*", "https://b.example/*"}, opts.Match)
	assert.Contains(t, out.String(), "Script name [Feeds]: ")
}

func TestPrompter_EOFUsesDefaults(t *testing.T) {
	var out strings.Builder
	opts, err := NewPrompter(strings.NewReader(""), &out).Interactive(GenerateOptions{Dir: "x-y"})
	require.NoError(t, err)
	assert.Equal(t, "X Y", opts.Name)
	assert.Equal(t, []string{DefaultMatch}, opts.Match)
}
