// Package errors defines the structured error types shared by scriptsmith
// packages: typed errors with codes and causes, bundler diagnostics, and
// user-facing errors that carry fix suggestions.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeBuild      ErrorType = "build"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// ScriptsmithError is a structured error type with context.
type ScriptsmithError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *ScriptsmithError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *ScriptsmithError) Unwrap() error {
	return e.Cause
}

// Is matches another ScriptsmithError with the same type and code.
func (e *ScriptsmithError) Is(target error) bool {
	var t *ScriptsmithError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithContext adds context information to the error.
func (e *ScriptsmithError) WithContext(key string, value interface{}) *ScriptsmithError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithFile records the file the error refers to.
func (e *ScriptsmithError) WithFile(path string) *ScriptsmithError {
	e.FilePath = path
	return e
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *ScriptsmithError {
	return &ScriptsmithError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBuildError creates a build error.
func NewBuildError(code, message string, cause error) *ScriptsmithError {
	return &ScriptsmithError{
		Type:        ErrorTypeBuild,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *ScriptsmithError {
	return &ScriptsmithError{
		Type:    ErrorTypeIO,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string, cause error) *ScriptsmithError {
	return &ScriptsmithError{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *ScriptsmithError {
	return &ScriptsmithError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var se *ScriptsmithError
	if errors.As(err, &se) {
		return se.Recoverable
	}
	return false
}

// IsConfigError checks if an error is configuration-related.
func IsConfigError(err error) bool {
	return hasType(err, ErrorTypeConfig)
}

// IsBuildError checks if an error is build-related.
func IsBuildError(err error) bool {
	return hasType(err, ErrorTypeBuild)
}

func hasType(err error, t ErrorType) bool {
	var se *ScriptsmithError
	if errors.As(err, &se) {
		return se.Type == t
	}
	return false
}

// Common error codes.
const (
	ErrCodeConfigNotFound  = "ERR_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_CONFIG_INVALID"
	ErrCodeConfigWrite     = "ERR_CONFIG_WRITE"
	ErrCodeMissingMetadata = "ERR_MISSING_METADATA"
	ErrCodeBuildFailed     = "ERR_BUILD_FAILED"
	ErrCodeArtifactWrite   = "ERR_ARTIFACT_WRITE"
	ErrCodeArtifactRead    = "ERR_ARTIFACT_READ"
	ErrCodeListen          = "ERR_LISTEN"
	ErrCodeScaffoldExists  = "ERR_SCAFFOLD_EXISTS"
)
