package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a ScriptsmithError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *ScriptsmithError {
	if err == nil {
		return nil
	}

	var se *ScriptsmithError
	if errors.As(err, &se) {
		return &ScriptsmithError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       se,
			Context:     se.Context,
			FilePath:    se.FilePath,
			Recoverable: se.Recoverable,
		}
	}

	return &ScriptsmithError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeValidation || errType == ErrorTypeBuild,
	}
}

// WrapBuild wraps an error as a build error
func WrapBuild(err error, code, message string) *ScriptsmithError {
	return Wrap(err, ErrorTypeBuild, code, message)
}

// WrapIO wraps an error as an I/O error
func WrapIO(err error, code, message string) *ScriptsmithError {
	se := Wrap(err, ErrorTypeIO, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// WrapConfig wraps an error as a configuration error
func WrapConfig(err error, code, message string) *ScriptsmithError {
	se := Wrap(err, ErrorTypeConfig, code, message)
	if se != nil {
		se.Recoverable = false
	}
	return se
}

// FormatError formats an error for user display, expanding suggestions when present.
func FormatError(err error) string {
	if err == nil {
		return ""
	}

	var enhanced *EnhancedError
	if errors.As(err, &enhanced) {
		out := enhanced.Error()
		if enhanced.OriginalError != nil {
			out += "Cause: " + enhanced.OriginalError.Error() + "\n"
		}
		return out
	}
	return err.Error()
}
