package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/dave593/portalauth/password"
)

var personName = regexp.MustCompile(`^[\p{L}][\p{L} '\-\.]*$`)

// Validator applies per-endpoint declarative rules and reports every violated
// field at once.
type Validator struct {
	validate *validator.Validate

	mu      sync.RWMutex
	schemas map[string]func() any
	roles   map[string]struct{}
}

// NewValidator builds a Validator with the stock schemas registered.
// allowedRoles bounds the "role" rule.
func NewValidator(allowedRoles []string) *Validator {
	v := &Validator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		schemas:  make(map[string]func() any),
		roles:    make(map[string]struct{}, len(allowedRoles)),
	}
	for _, r := range allowedRoles {
		v.roles[strings.ToLower(strings.TrimSpace(r))] = struct{}{}
	}

	v.validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.validate.RegisterValidation("strongpassword", strongPassword)
	_ = v.validate.RegisterValidation("secretbytes", func(fl validator.FieldLevel) bool {
		return len(fl.Field().String()) <= password.BcryptMaxSecretBytes
	})
	_ = v.validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return personName.MatchString(fl.Field().String())
	})
	_ = v.validate.RegisterValidation("role", func(fl validator.FieldLevel) bool {
		_, ok := v.roles[strings.ToLower(fl.Field().String())]
		return ok
	})

	v.Register(EndpointLogin, func() any { return &LoginInput{} })
	v.Register(EndpointRegister, func() any { return &RegisterInput{} })
	v.Register(EndpointRefresh, func() any { return &RefreshInput{} })
	v.Register(EndpointChangePassword, func() any { return &ChangePasswordInput{} })
	return v
}

// Register binds endpoint to a schema constructor returning a pointer to a
// struct with validate tags.
func (v *Validator) Register(endpoint string, schema func() any) {
	v.mu.Lock()
	v.schemas[endpoint] = schema
	v.mu.Unlock()
}

// Check validates req.Body against the schema for req.Endpoint. Endpoints
// without a schema pass.
func (v *Validator) Check(_ context.Context, req *Request) error {
	v.mu.RLock()
	schema, ok := v.schemas[req.Endpoint]
	v.mu.RUnlock()
	if !ok {
		return nil
	}

	target := schema()
	if err := decodeInto(req.Body, target); err != nil {
		return validationFailure([]FieldViolation{typeViolation(err)})
	}
	return v.Struct(target)
}

// Struct validates an already decoded value.
func (v *Validator) Struct(target any) error {
	err := v.validate.Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &Failure{Code: CodeInternalError, Message: "request could not be validated"}
	}

	fields := make([]FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldViolation{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Message: describe(fe),
		})
	}
	return validationFailure(fields)
}

func decodeInto(body map[string]any, target any) error {
	if body == nil {
		body = map[string]any{}
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, target)
}

func typeViolation(err error) FieldViolation {
	var te *json.UnmarshalTypeError
	if errors.As(err, &te) && te.Field != "" {
		return FieldViolation{Field: te.Field, Rule: "type", Message: fmt.Sprintf("must be a %s", te.Type.Kind())}
	}
	return FieldViolation{Field: "body", Rule: "type", Message: "malformed request body"}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "eqfield":
		return "does not match"
	case "nefield":
		return "must differ from the current value"
	case "secretbytes":
		return fmt.Sprintf("must be at most %d bytes", password.BcryptMaxSecretBytes)
	case "strongpassword":
		return "must be at least 8 characters with upper case, lower case and a digit"
	case "personname":
		return "may contain only letters, spaces, apostrophes and hyphens"
	case "role":
		return "is not an allowed role"
	default:
		return "is invalid"
	}
}

func strongPassword(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if len([]rune(s)) < 8 {
		return false
	}
	var upper, lower, digit bool
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}
