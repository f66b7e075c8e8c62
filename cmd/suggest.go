package cmd

import (
	stderrors "errors"

	"github.com/conneroisu/scriptsmith/internal/config"
	"github.com/conneroisu/scriptsmith/internal/errors"
)

// withSuggestions wraps err in an EnhancedError whose suggestions match its
// kind. Errors of unknown kind are returned unchanged.
func withSuggestions(err error, loader *config.Loader) error {
	if err == nil {
		return nil
	}

	var se *errors.ScriptsmithError
	if !stderrors.As(err, &se) {
		return err
	}

	switch {
	case errors.IsConfigError(err):
		return errors.NewEnhancedError("Failed to load configuration", err,
			errors.ConfigurationError(err.Error(), loader.Path))
	case errors.IsBuildError(err):
		entry := "src/index.js"
		if cfg, loadErr := loader.Load(); loadErr == nil {
			entry = cfg.Entry
		}
		return errors.NewEnhancedError("Build failed", err,
			errors.BuildFailureError(err.Error(), entry))
	case se.Code == errors.ErrCodeListen:
		port := config.DefaultPort
		if cfg, loadErr := loader.Load(); loadErr == nil {
			port = cfg.Server.Port
		}
		return errors.NewEnhancedError("Failed to start server", err,
			errors.ServerStartError(err, port))
	}
	return err
}
