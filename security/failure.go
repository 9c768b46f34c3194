package security

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Code is a stable machine code for a gate failure.
type Code string

const (
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeInternalError   Code = "INTERNAL_ERROR"
)

var (
	// ErrRateLimited matches every Failure with CodeRateLimited under errors.Is.
	ErrRateLimited = errors.New("rate limited")
	// ErrValidation matches every Failure with CodeValidationError under errors.Is.
	ErrValidation = errors.New("validation failed")
)

// FieldViolation is one broken rule on one input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Failure terminates a request inside the pipeline.
type Failure struct {
	Code       Code
	Message    string
	RetryAfter time.Duration
	Fields     []FieldViolation
}

func (f *Failure) Error() string {
	if len(f.Fields) == 0 {
		return fmt.Sprintf("%s: %s", f.Code, f.Message)
	}
	names := make([]string, 0, len(f.Fields))
	for _, v := range f.Fields {
		names = append(names, v.Field)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Code, f.Message, strings.Join(names, ", "))
}

// Is reports whether target is the sentinel for f's code.
func (f *Failure) Is(target error) bool {
	switch f.Code {
	case CodeRateLimited:
		return target == ErrRateLimited
	case CodeValidationError:
		return target == ErrValidation
	}
	return false
}

func validationFailure(fields []FieldViolation) *Failure {
	return &Failure{
		Code:    CodeValidationError,
		Message: "request validation failed",
		Fields:  fields,
	}
}
