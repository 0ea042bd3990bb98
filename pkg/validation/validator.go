package validation

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var (
	// validate is a singleton validator instance
	validate *validator.Validate

	// identifiers of variables, extensions and property keys
	identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.\-]*$`)
)

func init() {
	validate = validator.New()
	validate.RegisterValidation("ident", func(fl validator.FieldLevel) bool {
		return identPattern.MatchString(fl.Field().String())
	})
}

// Struct validates v against its `validate` struct tags. The first violation
// is reported as a ConfigError attributed to component.
func Struct(component string, v any) error {
	if v == nil {
		return &ConfigError{Component: component, Cause: errors.New("document cannot be nil")}
	}
	if err := validate.Struct(v); err != nil {
		return formatValidationError(component, err)
	}
	return nil
}

// Ident reports whether s is a valid identifier for a variable, extension or
// property key.
func Ident(s string) bool {
	return identPattern.MatchString(s)
}

// formatValidationError converts validator errors to a ConfigError
func formatValidationError(component string, err error) error {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return &ConfigError{Component: component, Cause: err}
	}

	for _, e := range validationErrs {
		field := e.Namespace()
		param := e.Param()

		var cause error
		switch e.Tag() {
		case "required":
			cause = errors.New("field is required")
		case "min", "gte":
			cause = fmt.Errorf("must be at least %s", param)
		case "max", "lte":
			cause = fmt.Errorf("must not exceed %s", param)
		case "oneof":
			cause = fmt.Errorf("must be one of [%s]", param)
		case "ident":
			cause = fmt.Errorf("%q is not a valid identifier", e.Value())
		case "dive":
			cause = errors.New("invalid element")
		default:
			cause = fmt.Errorf("validation failed (%s)", e.Tag())
		}
		return &ConfigError{Component: component, Field: field, Cause: cause}
	}
	return &ConfigError{Component: component, Cause: err}
}
