package errors

import (
	"fmt"
	"strings"
)

// BuildError is one diagnostic reported by the bundler.
type BuildError struct {
	File     string
	Line     int
	Column   int
	Message  string
	Severity ErrorSeverity
}

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	ErrorSeverityInfo ErrorSeverity = iota
	ErrorSeverityWarning
	ErrorSeverityError
)

// String returns the string representation of the severity
func (s ErrorSeverity) String() string {
	switch s {
	case ErrorSeverityInfo:
		return "info"
	case ErrorSeverityWarning:
		return "warning"
	case ErrorSeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Error implements the error interface
func (be *BuildError) Error() string {
	if be.File == "" {
		return fmt.Sprintf("%s: %s", be.Severity, be.Message)
	}
	return fmt.Sprintf("%s:%d:%d: %s: %s", be.File, be.Line, be.Column, be.Severity, be.Message)
}

// BuildErrors is the set of diagnostics from one failed bundle.
type BuildErrors []BuildError

// Error joins every diagnostic on its own line.
func (be BuildErrors) Error() string {
	switch len(be) {
	case 0:
		return "build failed"
	case 1:
		return be[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d build errors:", len(be))
	for i := range be {
		b.WriteString("\n  ")
		b.WriteString(be[i].Error())
	}
	return b.String()
}
