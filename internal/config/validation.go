package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	write := func(title string, issues []ValidationError) {
		if len(issues) == 0 {
			return
		}
		builder.WriteString(title + ":\n")
		for _, issue := range issues {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", issue.Field, issue.Message))
			for _, suggestion := range issue.Suggestions {
				builder.WriteString(fmt.Sprintf("    - %s\n", suggestion))
			}
		}
	}

	write("Validation errors", vr.Errors)
	write("Validation warnings", vr.Warnings)
	return builder.String()
}

// Validate returns the first validation error, if any.
func Validate(cfg *Config) error {
	result := ValidateWithDetails(cfg)
	if result.HasErrors() {
		return &result.Errors[0]
	}
	return nil
}

// ValidateWithDetails performs comprehensive validation with detailed feedback
func ValidateWithDetails(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	if err := cfg.Metadata.Validate(); err != nil {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "metadata",
			Value:       cfg.Metadata.Name,
			Message:     err.Error(),
			Suggestions: []string{"Set metadata.name to the script's display name"},
		})
	}

	if strings.TrimSpace(cfg.Entry) == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "entry",
			Message:     "entry point is required",
			Suggestions: []string{"Point entry at the script's main module, e.g. src/index.js"},
		})
	}

	validateBuild(&cfg.Build, result)
	validateServer(&cfg.Server, result)

	if len(cfg.Metadata.Match) == 0 && len(cfg.Metadata.Include) == 0 {
		result.Warnings = append(result.Warnings, ValidationError{
			Field:       "metadata.match",
			Message:     "no @match or @include patterns; the script will not run on any page",
			Suggestions: []string{"Add a pattern such as https://example.com/*"},
		})
	}

	return result
}

func validateBuild(build *BuildConfig, result *ValidationResult) {
	if build.FileName != "" && (strings.ContainsAny(build.FileName, `/\`) || build.FileName == "." || build.FileName == "..") {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "build.file_name",
			Value:   build.FileName,
			Message: "must be a bare file name",
		})
	}

	if build.OutDir == "" {
		result.Errors = append(result.Errors, ValidationError{
			Field:   "build.out_dir",
			Message: "output directory is required",
		})
	}

	if build.SourceDir != "" && build.OutDir != "" && within(build.OutDir, build.SourceDir) {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "build.out_dir",
			Value:       build.OutDir,
			Message:     "output directory is inside the watched source directory",
			Suggestions: []string{"Write the artifact next to the sources, e.g. out_dir: dist"},
		})
	}

	if _, ok := targets[strings.ToLower(build.Target)]; build.Target != "" && !ok {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "build.target",
			Value:       build.Target,
			Message:     "unsupported language target",
			Suggestions: []string{"Use one of es2015 … es2022 or esnext"},
		})
	}
}

func validateServer(server *ServerConfig, result *ValidationResult) {
	// 0 lets the OS pick a port, which tests rely on.
	for field, port := range map[string]int{"server.port": server.Port, "server.live_port": server.LivePort} {
		if port < 0 || port > 65535 {
			result.Errors = append(result.Errors, ValidationError{
				Field:   field,
				Value:   port,
				Message: fmt.Sprintf("port %d is not in valid range 0-65535", port),
			})
		}
	}

	if server.Port != 0 && server.Port == server.LivePort {
		result.Errors = append(result.Errors, ValidationError{
			Field:       "server.live_port",
			Value:       server.LivePort,
			Message:     "live-reload port must differ from the serving port",
			Suggestions: []string{fmt.Sprintf("Leave live_port unset to use %d", server.Port+1)},
		})
	}

	if server.Host != "" {
		dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\", "/"}
		for _, char := range dangerousChars {
			if strings.Contains(server.Host, char) {
				result.Errors = append(result.Errors, ValidationError{
					Field:   "server.host",
					Value:   server.Host,
					Message: fmt.Sprintf("host contains invalid character: %s", char),
				})
				return
			}
		}
	}
}

// targets are the language targets the bundler accepts.
var targets = map[string]struct{}{
	"es2015": {}, "es2016": {}, "es2017": {}, "es2018": {}, "es2019": {},
	"es2020": {}, "es2021": {}, "es2022": {}, "esnext": {},
}

func within(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
