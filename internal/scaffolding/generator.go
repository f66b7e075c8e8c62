// Package scaffolding creates new scriptsmith projects: a configuration file,
// an entry script and a few supporting files.
package scaffolding

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/metadata"
)

// DefaultMatch is offered when the user does not name a site.
const DefaultMatch = "https://example.com/*"

// ProjectGenerator writes project files from its templates.
type ProjectGenerator struct {
	templates map[string]ProjectTemplate
	now       func() time.Time
}

// GenerateOptions holds options for project generation
type GenerateOptions struct {
	Dir       string
	Name      string
	Namespace string
	Author    string
	Match     []string
	Force     bool
}

// Result lists what Generate wrote.
type Result struct {
	ConfigPath string
	Files      []string
}

// NewProjectGenerator creates a generator with the built-in templates.
func NewProjectGenerator() *ProjectGenerator {
	return &ProjectGenerator{
		templates: GetBuiltinTemplates(),
		now:       time.Now,
	}
}

// Generate writes the configuration and template files into opts.Dir. An
// existing configuration is only replaced with Force; other existing files
// are left alone.
func (g *ProjectGenerator) Generate(opts GenerateOptions) (*Result, error) {
	opts = g.withDefaults(opts)

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.WrapIO(err, errors.ErrCodeConfigWrite, "failed to create project directory").WithFile(opts.Dir)
	}

	configPath := filepath.Join(opts.Dir, config.DefaultFileName)
	if _, err := os.Stat(configPath); err == nil && !opts.Force {
		return nil, errors.NewValidationError(errors.ErrCodeScaffoldExists,
			"a configuration already exists; pass --force to overwrite it").WithFile(configPath)
	}

	cfg := &config.Config{
		Entry: "src/index.js",
		Build: config.BuildConfig{
			SourceDir: "src",
			OutDir:    "dist",
			Target:    "es2020",
		},
		Server: config.ServerConfig{
			Host: "localhost",
			Port: config.DefaultPort,
		},
		Metadata: metadata.Metadata{
			Name:      opts.Name,
			Namespace: opts.Namespace,
			Version:   "0.1.0",
			Author:    opts.Author,
			Match:     opts.Match,
			Grant:     []string{"none"},
		},
	}
	if err := cfg.Metadata.Validate(); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeMissingMetadata, "invalid script metadata")
	}
	if err := config.Save(configPath, cfg); err != nil {
		return nil, err
	}

	ctx := TemplateContext{
		Name:      opts.Name,
		Slug:      config.Slug(opts.Name),
		Namespace: opts.Namespace,
		Author:    opts.Author,
		Match:     opts.Match,
		Date:      g.now().Format("2006-01-02"),
		SourceDir: cfg.Build.SourceDir,
		OutDir:    cfg.Build.OutDir,
	}

	result := &Result{ConfigPath: configPath}
	for _, name := range g.templateNames() {
		written, err := g.generateFile(opts.Dir, g.templates[name], ctx, opts.Force)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		if written != "" {
			result.Files = append(result.Files, written)
		}
	}
	return result, nil
}

func (g *ProjectGenerator) withDefaults(opts GenerateOptions) GenerateOptions {
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if strings.TrimSpace(opts.Name) == "" {
		opts.Name = DisplayName(opts.Dir)
	}
	if len(opts.Match) == 0 {
		opts.Match = []string{DefaultMatch}
	}
	return opts
}

func (g *ProjectGenerator) templateNames() []string {
	names := make([]string, 0, len(g.templates))
	for name := range g.templates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AddCustomTemplate adds or replaces a template
func (g *ProjectGenerator) AddCustomTemplate(name string, tmpl ProjectTemplate) {
	g.templates[name] = tmpl
}

// generateFile renders tmpl into dir and returns the written path, or "" if
// the file already existed and force is not set.
func (g *ProjectGenerator) generateFile(dir string, tmpl ProjectTemplate, ctx TemplateContext, force bool) (string, error) {
	rel, err := render("path", tmpl.Path, ctx)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, filepath.FromSlash(rel))

	if _, err := os.Stat(target); err == nil && !force {
		return "", nil
	}

	content, err := render("content", tmpl.Content, ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
		return "", errors.WrapIO(err, errors.ErrCodeConfigWrite, "failed to write file").WithFile(target)
	}
	return target, nil
}

func render(name, text string, ctx TemplateContext) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}
	var b strings.Builder
	if err := tmpl.Execute(&b, ctx); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return b.String(), nil
}

// DisplayName turns a directory like "my-cool_script" into "My Cool Script".
func DisplayName(dir string) string {
	base := filepath.Base(dir)
	if abs, err := filepath.Abs(dir); err == nil {
		base = filepath.Base(abs)
	}
	words := strings.FieldsFunc(base, func(r rune) bool {
		return r == '-' || r == '_' || r == '.' || r == ' '
	})
	if len(words) == 0 {
		return "My Script"
	}
	return cases.Title(language.English).String(strings.Join(words, " "))
}

// Prompter asks questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints the question with its default and returns the trimmed answer,
// or def for an empty answer or end of input.
func (p *Prompter) Ask(question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", question)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Interactive fills the name, namespace, author and match patterns of opts
// from the user's answers, using the current values as defaults.
func (p *Prompter) Interactive(opts GenerateOptions) (GenerateOptions, error) {
	if opts.Name == "" {
		opts.Name = DisplayName(opts.Dir)
	}
	match := DefaultMatch
	if len(opts.Match) > 0 {
		match = strings.Join(opts.Match, " ")
	}

	var err error
	if opts.Name, err = p.Ask("Script name", opts.Name); err != nil {
		return opts, err
	}
	if opts.Namespace, err = p.Ask("Namespace", opts.Namespace); err != nil {
		return opts, err
	}
	if opts.Author, err = p.Ask("Author", opts.Author); err != nil {
		return opts, err
	}
	if match, err = p.Ask("Match patterns (space separated)", match); err != nil {
		return opts, err
	}
	opts.Match = strings.Fields(match)
	return opts, nil
}
