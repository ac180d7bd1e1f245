package web

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// GetErrorMsg returns a human readable suffix for a failed validation rule.
func GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return " is required"
	case "min":
		return " must be at least " + fe.Param()
	case "max":
		return " must be at most " + fe.Param()
	case "amount":
		return " must be a positive amount with at most 2 decimal places"
	case "balance":
		return " must be a non-negative amount with at most 2 decimal places"
	case "nefield":
		return " must differ from " + fe.Param()
	}

	return " is invalid"
}

// BindingErrorMsg describes the first validation failure of err, or returns
// err's text when err is not a validation error.
func BindingErrorMsg(err error) string {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) && len(ve) > 0 {
		field := ve[0]
		return field.Field() + GetErrorMsg(field)
	}

	return err.Error()
}
