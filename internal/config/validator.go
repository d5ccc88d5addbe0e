package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/Sentinel-Gate/sessiontrack/internal/adapter/outbound/cel"
)

// RegisterCustomValidators registers sessiontrack-specific validation rules.
// Must be called before validating Config.
func RegisterCustomValidators(v *validator.Validate) error {
	// duration: a positive Go duration string such as "15s"
	if err := v.RegisterValidation("duration", validateDuration); err != nil {
		return fmt.Errorf("failed to register duration validator: %w", err)
	}
	// output_uri: "stdout" or "file://<absolute-path>"
	if err := v.RegisterValidation("output_uri", validateOutputURI); err != nil {
		return fmt.Errorf("failed to register output_uri validator: %w", err)
	}
	return nil
}

func validateDuration(fl validator.FieldLevel) bool {
	d, err := time.ParseDuration(fl.Field().String())
	return err == nil && d > 0
}

// validateOutputURI validates an output destination.
// Valid values: "stdout" or "file://<absolute-path>"
func validateOutputURI(fl validator.FieldLevel) bool {
	output := fl.Field().String()

	if output == "stdout" {
		return true
	}

	if strings.HasPrefix(output, "file://") {
		path := strings.TrimPrefix(output, "file://")
		return path != "" && filepath.IsAbs(path)
	}

	return false
}

// Validate validates the Config using struct tags and custom cross-field rules.
// Returns an error if validation fails, with actionable error messages.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := RegisterCustomValidators(v); err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateSweepInterval(); err != nil {
		return err
	}

	if c.Completion.Filter != "" {
		if _, err := cel.CompileSessionFilter(c.Completion.Filter); err != nil {
			return fmt.Errorf("completion.filter: %w", err)
		}
	}

	return nil
}

// validateSweepInterval rejects a sweep interval longer than the grace period,
// which would let sessions linger well past expiry.
func (c *Config) validateSweepInterval() error {
	if c.SweepIntervalDuration() > c.GracePeriodDuration() {
		return fmt.Errorf("session.sweep_interval (%s) must not exceed session.grace_period (%s)",
			c.Session.SweepInterval, c.Session.GracePeriod)
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()

	switch e.Tag() {
	case "required", "required_unless":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "duration":
		return fmt.Sprintf("%s must be a positive duration such as 15s", field)
	case "output_uri":
		return fmt.Sprintf("%s must be 'stdout' or 'file://<absolute-path>'", field)
	case "excludesall":
		return fmt.Sprintf("%s must not contain path separators", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
