package portalauth

import (
	"errors"
	"math"

	"github.com/dave593/portalauth/security"
)

// Result is the structured outcome returned to callers of every operation.
// Failure results carry a generic message per code and never include token
// contents; only validation failures list field detail.
type Result struct {
	Success    bool                      `json:"success"`
	Error      bool                      `json:"error"`
	Message    string                    `json:"message"`
	Code       Code                      `json:"code"`
	Data       any                       `json:"data,omitempty"`
	Errors     []security.FieldViolation `json:"errors,omitempty"`
	RetryAfter int                       `json:"retryAfter,omitempty"`
}

// OK builds a success result.
func OK(message string, data any) Result {
	return Result{
		Success: true,
		Message: message,
		Code:    CodeOK,
		Data:    data,
	}
}

// Failure builds an error result from err.
func Failure(err error) Result {
	code := CodeOf(err)
	r := Result{
		Error:   true,
		Message: MessageFor(code),
		Code:    code,
	}

	var f *security.Failure
	if errors.As(err, &f) {
		if f.Message != "" && code != CodeInternalError {
			r.Message = f.Message
		}
		r.Errors = f.Fields
		if f.RetryAfter > 0 {
			r.RetryAfter = int(math.Ceil(f.RetryAfter.Seconds()))
		}
	}
	return r
}

// Status returns the HTTP status matching the result's code.
func (r Result) Status() int {
	return StatusForCode(r.Code)
}
