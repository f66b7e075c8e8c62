package errors

import (
	"fmt"
	"strings"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify the configuration file exists and has valid YAML syntax",
			Command:     "cat " + configPath,
		},
	}

	if strings.Contains(configError, "no such file") || strings.Contains(configError, "not found") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Create a project",
			Description: "Scaffold a configuration file and an entry script",
			Command:     "scriptsmith init",
		})
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "metadata.name") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Name the script",
			Description: "Every userscript header needs an @name",
			Example:     "metadata:\n  name: My Script",
		})
	}

	return suggestions
}

// BuildFailureError generates suggestions for bundler failures
func BuildFailureError(buildOutput string, entry string) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the entry point",
			Description: fmt.Sprintf("The bundle starts from %s", entry),
			Command:     "ls -la " + entry,
		},
	}

	if strings.Contains(buildOutput, "Could not resolve") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix the import path",
			Description: "An import could not be resolved relative to the importing file",
		})
	}

	if strings.Contains(buildOutput, "Expected") || strings.Contains(buildOutput, "Unexpected") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix the syntax error",
			Description: "The bundler could not parse one of the source files",
		})
	}

	return suggestions
}

// ServerStartError generates suggestions for listener failures
func ServerStartError(err error, port int) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Use a different port",
			Description: "The live-reload channel uses the next port up unless server.live_port is set",
			Command:     fmt.Sprintf("scriptsmith dev --port %d", port+2),
		},
	}

	if strings.Contains(err.Error(), "address already in use") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Find the process holding the port",
			Description: "Another dev server may still be running",
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	title := e.Title
	if e.OriginalError != nil {
		title += ": " + e.OriginalError.Error()
	}
	return FormatSuggestions(title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
