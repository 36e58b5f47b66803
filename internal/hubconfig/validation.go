package hubconfig

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidationError carries the field and message for one schema violation.
type ValidationError struct {
	Server  string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("mcpServers.%s.%s: %s", e.Server, e.Field, e.Message)
}

// ValidationErrors collects every violation found while validating a full
// configuration, so a caller sees all problems at once rather than the
// first one.
type ValidationErrors []ValidationError

func (es ValidationErrors) Error() string {
	if len(es) == 0 {
		return "no validation errors"
	}
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.Error()
	}
	return fmt.Sprintf("invalid configuration: %s", strings.Join(parts, "; "))
}

func (es ValidationErrors) HasErrors() bool { return len(es) > 0 }

// validate checks one server entry's shape per §3, inferring and setting
// its Kind. It never mutates other fields.
func validate(name string, cfg *ServerConfig) ValidationErrors {
	var errs ValidationErrors

	hasCommand := cfg.Command != ""
	hasURL := cfg.URL != ""

	switch {
	case hasCommand && hasURL:
		errs = append(errs, ValidationError{name, "command/url", "exactly one of command or url must be set, both were given"})
		return errs
	case !hasCommand && !hasURL:
		errs = append(errs, ValidationError{name, "command/url", "exactly one of command or url must be set, neither was given"})
		return errs
	case hasCommand:
		cfg.Kind = KindStdio
	default:
		cfg.Kind = KindRemote
	}

	if cfg.Kind == KindRemote && len(cfg.Headers) == 0 {
		// headers are optional; nothing to validate here beyond kind checks
	}

	if cfg.Dev != nil {
		if cfg.Kind != KindStdio {
			errs = append(errs, ValidationError{name, "dev", "dev mode is only valid for stdio servers"})
		} else if cfg.Dev.Cwd != "" && !filepath.IsAbs(cfg.Dev.Cwd) {
			errs = append(errs, ValidationError{name, "dev.cwd", "must be an absolute path"})
		}
	}

	if strings.TrimSpace(name) == "" {
		errs = append(errs, ValidationError{name, "name", "must not be empty"})
	}

	return errs
}
