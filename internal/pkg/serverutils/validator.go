package serverutils

import (
	"errors"
	"fmt"
	"strings"

	"propman-be/pkg/payment"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// msisdn accepts any local format NormalizeMSISDN understands
	_ = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
		_, err := payment.NormalizeMSISDN(fl.Field().String())
		return err == nil
	})
	return v
}

// ValidationError lists every failed field of a request body.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, rule := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s failed on %s", field, rule))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		ve.Fields[fe.Field()] = fe.Tag()
	}
	return ve
}
