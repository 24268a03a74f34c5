package httpapi

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

// validate is the package-wide singleton validator instance. Grounded on
// tomtom215-cartographus's internal/validation/validator.go: one instance,
// built once, reused across every request DTO.
var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func init() {
	validate = validatorInstance()
}

// validationFieldErrors translates go-playground/validator's field errors
// into the flat field->message map ValidationError and errorResponse carry.
func validationFieldErrors(err error) map[string]string {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return map[string]string{"_": err.Error()}
	}
	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = translateFieldError(fe)
	}
	return out
}

func translateFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}
