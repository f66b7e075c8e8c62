// Package build turns a project configuration into the single userscript
// artifact: metadata header, optional live-reload client, bundled code.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/conneroisu/scriptsmith/internal/clientruntime"
	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
	"github.com/conneroisu/scriptsmith/internal/logging"
	"github.com/conneroisu/scriptsmith/internal/metadata"
)

// Options select between development and production artifacts.
type Options struct {
	// Dev embeds the live-reload client pointed at the configured live port.
	Dev bool
}

// Result describes a written artifact.
type Result struct {
	Path     string
	Size     int64
	Hash     uint64
	Duration time.Duration
	Warnings []string
}

// ArtifactBuilder produces the artifact on disk.
type ArtifactBuilder struct {
	bundler Bundler
	logger  logging.Logger
	metrics *BuildMetrics
}

// NewArtifactBuilder creates a builder around the given bundler.
func NewArtifactBuilder(bundler Bundler, logger logging.Logger) *ArtifactBuilder {
	return &ArtifactBuilder{
		bundler: bundler,
		logger:  logger.WithComponent("build"),
		metrics: NewBuildMetrics(),
	}
}

// Metrics returns a snapshot of the builder's counters.
func (b *ArtifactBuilder) Metrics() BuildMetrics {
	return b.metrics.GetSnapshot()
}

// Build bundles cfg.Entry and writes header, runtime and code to cfg.ArtifactPath().
func (b *ArtifactBuilder) Build(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	start := time.Now()

	result, err := b.build(ctx, cfg, opts)
	if err != nil {
		b.metrics.RecordFailure(time.Since(start))
		return nil, err
	}

	result.Duration = time.Since(start)
	b.metrics.RecordSuccess(result)

	for _, w := range result.Warnings {
		b.logger.Warn(ctx, nil, "bundler warning", "warning", w)
	}
	b.logger.Debug(ctx, "artifact written",
		"path", result.Path,
		"bytes", result.Size,
		"duration", result.Duration.String(),
		"dev", opts.Dev,
	)
	return result, nil
}

func (b *ArtifactBuilder) build(ctx context.Context, cfg *config.Config, opts Options) (*Result, error) {
	header, err := metadata.Generate(cfg.Metadata)
	if err != nil {
		return nil, errors.NewConfigError(errors.ErrCodeMissingMetadata, "cannot generate metadata header", err)
	}

	var runtime string
	if opts.Dev {
		runtime, err = clientruntime.Render(clientruntime.Params{Host: cfg.Server.Host, Port: cfg.Server.LivePort})
		if err != nil {
			return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "cannot render live-reload client", err)
		}
	}

	workDir := ""
	if cfg.Path != "" {
		workDir = filepath.Dir(cfg.Path)
	}
	bundle, err := b.bundler.Bundle(ctx, BundleRequest{
		Entry:   cfg.Entry,
		Target:  cfg.Build.Target,
		Minify:  cfg.Build.Minify && !opts.Dev,
		WorkDir: workDir,
	})
	if err != nil {
		return nil, err
	}

	artifact := Assemble(header, runtime, bundle.Code)
	path := cfg.ArtifactPath()
	if err := writeArtifact(path, artifact); err != nil {
		return nil, err
	}

	return &Result{
		Path:     path,
		Size:     int64(len(artifact)),
		Hash:     ContentHash(artifact),
		Warnings: bundle.Warnings,
	}, nil
}

// Assemble joins header, runtime block (may be empty) and code in artifact
// order, one section per line group.
func Assemble(header, runtime string, code []byte) []byte {
	var buf bytes.Buffer
	buf.Grow(len(header) + len(runtime) + len(code) + 2)
	writeLine(&buf, header)
	if runtime != "" {
		writeLine(&buf, runtime)
	}
	buf.Write(code)
	return buf.Bytes()
}

func writeLine(buf *bytes.Buffer, s string) {
	buf.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		buf.WriteByte('\n')
	}
}

// writeArtifact replaces the artifact via a temp file and rename so readers
// see either the old or the new file.
func writeArtifact(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.WrapIO(err, errors.ErrCodeArtifactWrite, "cannot create output directory").WithFile(dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeArtifactWrite, "cannot create temporary artifact").WithFile(path)
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr != nil || cerr != nil {
		_ = os.Remove(tmpName)
		if werr == nil {
			werr = cerr
		}
		return errors.WrapIO(werr, errors.ErrCodeArtifactWrite, "cannot write artifact").WithFile(path)
	}

	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapIO(err, errors.ErrCodeArtifactWrite, "cannot set artifact permissions").WithFile(path)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return errors.WrapIO(err, errors.ErrCodeArtifactWrite, fmt.Sprintf("cannot move artifact into %s", dir)).WithFile(path)
	}
	return nil
}
