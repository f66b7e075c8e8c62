package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/scriptsmith/internal/errors"
)

// Bundler compiles an entry point and everything it imports into one
// self-contained script body.
type Bundler interface {
	Bundle(ctx context.Context, req BundleRequest) (*Bundle, error)
}

// BundleRequest describes one bundling job.
type BundleRequest struct {
	Entry   string
	Target  string
	Minify  bool
	WorkDir string
}

// Bundle is the compiled script body without header or runtime.
type Bundle struct {
	Code     []byte
	Warnings []string
}

// BundlerFunc adapts a function to the Bundler interface.
type BundlerFunc func(ctx context.Context, req BundleRequest) (*Bundle, error)

// Bundle implements Bundler.
func (f BundlerFunc) Bundle(ctx context.Context, req BundleRequest) (*Bundle, error) {
	return f(ctx, req)
}

// EsbuildBundler bundles in-process with esbuild, always as an IIFE so the
// script's top-level bindings stay out of the page's global scope.
type EsbuildBundler struct{}

// NewEsbuildBundler creates the default bundler.
func NewEsbuildBundler() *EsbuildBundler {
	return &EsbuildBundler{}
}

// Bundle implements Bundler. esbuild has no cancellation hook, so ctx is
// only checked before the build starts.
func (b *EsbuildBundler) Bundle(ctx context.Context, req BundleRequest) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	target, err := parseTarget(req.Target)
	if err != nil {
		return nil, err
	}

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{req.Entry},
		AbsWorkingDir:     req.WorkDir,
		Bundle:            true,
		Write:             false,
		Format:            api.FormatIIFE,
		Platform:          api.PlatformBrowser,
		Target:            target,
		Charset:           api.CharsetUTF8,
		MinifyWhitespace:  req.Minify,
		MinifyIdentifiers: req.Minify,
		MinifySyntax:      req.Minify,
		LogLevel:          api.LogLevelSilent,
	})

	if len(result.Errors) > 0 {
		return nil, errors.NewBuildError(errors.ErrCodeBuildFailed, "bundling "+req.Entry, convertMessages(result.Errors, errors.ErrorSeverityError))
	}
	if len(result.OutputFiles) == 0 {
		return nil, errors.NewBuildError(errors.ErrCodeBuildFailed, "bundler produced no output for "+req.Entry, nil)
	}

	warnings := make([]string, 0, len(result.Warnings))
	for _, w := range convertMessages(result.Warnings, errors.ErrorSeverityWarning) {
		warnings = append(warnings, w.Error())
	}

	return &Bundle{Code: result.OutputFiles[0].Contents, Warnings: warnings}, nil
}

func convertMessages(msgs []api.Message, severity errors.ErrorSeverity) errors.BuildErrors {
	out := make(errors.BuildErrors, 0, len(msgs))
	for _, msg := range msgs {
		be := errors.BuildError{Message: msg.Text, Severity: severity}
		if msg.Location != nil {
			be.File = msg.Location.File
			be.Line = msg.Location.Line
			be.Column = msg.Location.Column + 1
		}
		out = append(out, be)
	}
	return out
}

func parseTarget(target string) (api.Target, error) {
	switch strings.ToLower(target) {
	case "", "es2020":
		return api.ES2020, nil
	case "es2015":
		return api.ES2015, nil
	case "es2016":
		return api.ES2016, nil
	case "es2017":
		return api.ES2017, nil
	case "es2018":
		return api.ES2018, nil
	case "es2019":
		return api.ES2019, nil
	case "es2021":
		return api.ES2021, nil
	case "es2022":
		return api.ES2022, nil
	case "esnext":
		return api.ESNext, nil
	default:
		return api.DefaultTarget, fmt.Errorf("unsupported target %q", target)
	}
}
