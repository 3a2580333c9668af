package service

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"tidepool-web/internal/domain"
)

// newValidator builds the validator used for form input. Error messages use
// the form field names so they match what the browser submitted.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts validator errors into the domain taxonomy with
// per-field messages.
func validationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return domain.NewValidation("invalid input", nil)
	}

	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			fields[field] = fmt.Sprintf("%s is required", field)
		case "email":
			fields[field] = "must be a valid email address"
		case "min":
			fields[field] = fmt.Sprintf("must be at least %s characters long", fe.Param())
		case "max":
			fields[field] = fmt.Sprintf("must be at most %s characters long", fe.Param())
		case "eqfield":
			fields[field] = "passwords do not match"
		default:
			fields[field] = fmt.Sprintf("%s is invalid", field)
		}
	}
	return domain.NewValidation("invalid input", fields)
}
