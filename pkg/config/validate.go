package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "honeyaml.path").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateHoneyaml(&cfg.Honeyaml)...)
	errs = append(errs, validateInterception(&cfg.Interception)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)
	errs = append(errs, validateEvidence(&cfg.Evidence)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateHoneyaml(cfg *HoneyamlConfig) []FieldError {
	var errs []FieldError

	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "honeyaml.path", Message: "honeyaml path is required"})
	} else if !filepath.IsAbs(cfg.Path) {
		errs = append(errs, FieldError{
			Field:   "honeyaml.path",
			Message: fmt.Sprintf("honeyaml path %q must be absolute", cfg.Path),
		})
	}

	if cfg.PollInterval < 100*time.Millisecond {
		errs = append(errs, FieldError{
			Field:   "honeyaml.poll_interval",
			Message: fmt.Sprintf("poll interval %v must be at least 100ms", cfg.PollInterval),
		})
	}

	if cfg.ReloadTimeout <= 0 {
		errs = append(errs, FieldError{Field: "honeyaml.reload_timeout", Message: "reload timeout must be positive"})
	}

	return errs
}

func validateInterception(cfg *InterceptionConfig) []FieldError {
	var errs []FieldError

	if len(cfg.DeceivedPorts) == 0 {
		errs = append(errs, FieldError{Field: "interception.deceived_ports", Message: "at least one port is required"})
	}
	for i, p := range cfg.DeceivedPorts {
		if p < 1 || p > 65535 {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("interception.deceived_ports[%d]", i),
				Message: fmt.Sprintf("port %d out of range 1-65535", p),
			})
		}
	}

	if len(cfg.Technologies) == 0 {
		errs = append(errs, FieldError{Field: "interception.technologies", Message: "at least one technology is required"})
	}
	for i, tech := range cfg.Technologies {
		if strings.TrimSpace(tech) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("interception.technologies[%d]", i),
				Message: "technology must not be empty",
			})
		}
	}

	for i, v := range cfg.HTTPVersions {
		if !strings.HasPrefix(v, "HTTP/") {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("interception.http_versions[%d]", i),
				Message: fmt.Sprintf("invalid HTTP version token %q", v),
			})
		}
	}

	if cfg.MaxDescriptor < 1 || cfg.MaxDescriptor > 1<<20 {
		errs = append(errs, FieldError{
			Field:   "interception.max_descriptor",
			Message: fmt.Sprintf("max descriptor %d out of range 1-%d", cfg.MaxDescriptor, 1<<20),
		})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json' or 'text'", cfg.Logging.Format),
		})
	}

	if cfg.Logging.File == "" {
		errs = append(errs, FieldError{Field: "telemetry.logging.file", Message: "log file is required"})
	}

	if cfg.Metrics.Enabled {
		if !strings.HasSuffix(cfg.Metrics.TextfilePath, ".prom") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.textfile_path",
				Message: fmt.Sprintf("textfile path %q must end in .prom", cfg.Metrics.TextfilePath),
			})
		}
		if cfg.Metrics.FlushInterval < time.Second {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.flush_interval",
				Message: "flush interval must be at least 1s",
			})
		}
	}

	return errs
}

func validateEvidence(cfg *EvidenceConfig) []FieldError {
	var errs []FieldError

	if !cfg.Enabled {
		return errs
	}

	if cfg.SQLitePath == "" {
		errs = append(errs, FieldError{Field: "evidence.sqlite_path", Message: "sqlite path is required when evidence is enabled"})
	}
	if cfg.AsyncBuffer < 1 {
		errs = append(errs, FieldError{Field: "evidence.async_buffer", Message: "async buffer must be at least 1"})
	}
	if cfg.WriteTimeout <= 0 {
		errs = append(errs, FieldError{Field: "evidence.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.RetentionDays < 0 {
		errs = append(errs, FieldError{Field: "evidence.retention_days", Message: "retention days must not be negative"})
	}
	if cfg.MaxRecords < 0 {
		errs = append(errs, FieldError{Field: "evidence.max_records", Message: "max records must not be negative"})
	}
	if cfg.PruneSchedule != "" {
		if _, err := cron.ParseStandard(cfg.PruneSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "evidence.prune_schedule",
				Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.PruneSchedule, err),
			})
		}
	}

	return errs
}
