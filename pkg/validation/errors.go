package validation

import (
	"errors"
	"fmt"
)

// ErrConfiguration is the root of every configuration failure: unknown
// extension ids, bad or missing parameters, empty required graph sets.
var ErrConfiguration = errors.New("configuration error")

// ConfigError locates a configuration failure.
type ConfigError struct {
	Component string // e.g. "mcmcEBM", "protocol.integration"
	Field     string // optional parameter name
	Cause     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	switch {
	case e.Field != "" && e.Cause != nil:
		return fmt.Sprintf("%s.%s: %v", e.Component, e.Field, e.Cause)
	case e.Field != "":
		return fmt.Sprintf("%s.%s: invalid", e.Component, e.Field)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Component, e.Cause)
	default:
		return e.Component + ": invalid configuration"
	}
}

// Unwrap returns the cause.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// Is makes every ConfigError match ErrConfiguration.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// Errorf builds a ConfigError for component with a formatted cause.
func Errorf(component, format string, args ...any) error {
	return &ConfigError{Component: component, Cause: fmt.Errorf(format, args...)}
}

// FieldError builds a ConfigError for one parameter.
func FieldError(component, field string, cause error) error {
	return &ConfigError{Component: component, Field: field, Cause: cause}
}

// IsConfigError reports whether err is a configuration failure.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrConfiguration)
}
