// Package config provides configuration management for scriptsmith projects
// using Viper for loading from YAML files and SCRIPTSMITH_ environment
// variables.
//
// A configuration is never cached: the rebuild loop asks its Loader for a
// fresh Config before every build so that edits to the configuration file
// (new @match patterns, a bumped @version) land in the next artifact.
package config

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/metadata"
)

const (
	// DefaultFileName is looked up in the working directory when no path is given.
	DefaultFileName = "scriptsmith.yml"
	// EnvPrefix prefixes environment overrides, e.g. SCRIPTSMITH_SERVER_PORT.
	EnvPrefix = "SCRIPTSMITH"

	DefaultPort = 8787
)

type Config struct {
	Entry    string            `mapstructure:"entry" yaml:"entry"`
	Build    BuildConfig       `mapstructure:"build" yaml:"build"`
	Server   ServerConfig      `mapstructure:"server" yaml:"server"`
	Metadata metadata.Metadata `mapstructure:"metadata" yaml:"metadata"`

	// Path is the absolute path of the file this configuration came from.
	Path string `mapstructure:"-" yaml:"-"`
}

type BuildConfig struct {
	SourceDir string `mapstructure:"source_dir" yaml:"source_dir"`
	OutDir    string `mapstructure:"out_dir" yaml:"out_dir"`
	FileName  string `mapstructure:"file_name" yaml:"file_name,omitempty"`
	Target    string `mapstructure:"target" yaml:"target,omitempty"`
	Minify    bool   `mapstructure:"minify" yaml:"minify,omitempty"`
}

type ServerConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	LivePort int    `mapstructure:"live_port" yaml:"live_port,omitempty"`
}

// ArtifactPath is where the single build output is written.
func (c *Config) ArtifactPath() string {
	return filepath.Join(c.Build.OutDir, c.Build.FileName)
}

// ServeAddr is the listen address of the artifact endpoint.
func (c *Config) ServeAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// LiveAddr is the listen address of the live-reload channel.
func (c *Config) LiveAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.LivePort)
}

// Loader reads a Config from one file. Overrides (usually CLI flags) are
// applied on top of the file and the environment on every load.
type Loader struct {
	Path      string
	Overrides map[string]interface{}
}

// NewLoader creates a loader for the given file, falling back to DefaultFileName.
func NewLoader(path string) *Loader {
	if path == "" {
		path = DefaultFileName
	}
	return &Loader{Path: path, Overrides: make(map[string]interface{})}
}

// Load reads, defaults, resolves and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	absPath, err := filepath.Abs(l.Path)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot resolve configuration path", err).WithFile(l.Path)
	}

	// A private viper instance per load keeps reloads independent of each other.
	v := viper.New()
	v.SetConfigFile(absPath)
	if ext := filepath.Ext(absPath); ext == "" {
		v.SetConfigType("yaml")
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		code := errors.ErrCodeConfigInvalid
		if stderrors.Is(err, fs.ErrNotExist) {
			code = errors.ErrCodeConfigNotFound
		}
		return nil, errors.NewConfigError(code, "cannot read configuration", err).WithFile(l.Path)
	}

	for key, value := range l.Overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot decode configuration", err).WithFile(l.Path)
	}

	cfg.Path = absPath
	cfg.applyDefaults()
	cfg.resolvePaths(filepath.Dir(absPath))

	if err := Validate(&cfg); err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid configuration").WithFile(l.Path)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("entry", "src/index.js")
	v.SetDefault("build.source_dir", "src")
	v.SetDefault("build.out_dir", "dist")
	v.SetDefault("build.file_name", "")
	v.SetDefault("build.target", "es2020")
	v.SetDefault("build.minify", false)
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.live_port", 0)
	v.SetDefault("metadata.version", "0.1.0")
}

func (c *Config) applyDefaults() {
	if c.Build.FileName == "" {
		c.Build.FileName = Slug(c.Metadata.Name) + ".user.js"
	}
	if c.Server.LivePort == 0 && c.Server.Port != 0 {
		c.Server.LivePort = c.Server.Port + 1
	}
}

func (c *Config) resolvePaths(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Entry = abs(c.Entry)
	c.Build.SourceDir = abs(c.Build.SourceDir)
	c.Build.OutDir = abs(c.Build.OutDir)
}

// Slug turns a script name into a file-name friendly identifier.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "script"
	}
	return slug
}

// Save writes cfg as YAML. Paths are written as they are held in cfg.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapIO(err, errors.ErrCodeConfigWrite, "cannot write configuration").WithFile(path)
	}
	return nil
}
