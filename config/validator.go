package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the global validator instance.
var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	_ = validate.RegisterValidation("env", validateEnvironment)
}

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}

	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns ValidationErrors
// describing every failing field.
func ValidateWithDetails(cfg *Config) error {
	cfg.normalize()
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	details := make(ValidationErrors, 0, len(validationErrors))
	for _, fe := range validationErrors {
		details = append(details, ConfigError{
			Field:   fe.Namespace(),
			Message: formatValidationError(fe.Tag(), fe.Param()),
			Value:   fe.Value(),
		})
	}
	return details
}

// formatValidationError converts a validator tag and its parameter into a
// human-readable message.
func formatValidationError(tag, param string) string {
	switch tag {
	case "required", "required_if":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", param)
	case "max":
		return fmt.Sprintf("must be at most %s", param)
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", param)
	case "startswith":
		return fmt.Sprintf("must start with %q", param)
	case "env":
		return "must be one of [development staging production]"
	default:
		return fmt.Sprintf("failed validation: %s", tag)
	}
}

// validateEnvironment is a custom validator for environment values.
func validateEnvironment(fl validator.FieldLevel) bool {
	switch fl.Field().String() {
	case "development", "staging", "production":
		return true
	}
	return false
}
