package service

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/episodeline/pipeline/internal/apperr"
)

// NewValidator reports field names by their JSON tag.
func NewValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validateStruct(v *validator.Validate, op string, s interface{}) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	return apperr.ValidationFields(op, "Validation failed", formatValidationErrors(err))
}

func formatValidationErrors(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	fields := make(map[string]string, len(validationErrors))
	for _, e := range validationErrors {
		fields[e.Field()] = e.Tag()
	}
	return fields
}
