package portalauth

import (
	"errors"
	"net/http"

	"github.com/dave593/portalauth/security"
)

var (
	// ErrAuthRequired is returned when a protected operation receives no token.
	ErrAuthRequired = errors.New("authentication required")
	// ErrInvalidToken covers every malformed, forged, expired or revoked token.
	ErrInvalidToken = errors.New("invalid or expired token")
	// ErrInsufficientRole is returned when the principal's role is not allowed.
	ErrInsufficientRole = errors.New("insufficient role")
	// ErrInsufficientPermissions is returned when no required permission is held.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
	// ErrCompanyAccessDenied is returned for cross-tenant access by a non-admin.
	ErrCompanyAccessDenied = errors.New("company access denied")
	// ErrRateLimited matches a gate failure for a client over its request
	// ceiling.
	ErrRateLimited = security.ErrRateLimited
	// ErrValidation matches every rejected-input failure, whether from the
	// screening pipeline or from Register and ChangePassword.
	ErrValidation = security.ErrValidation
	// ErrInvalidCredentials is the single login failure for unknown email and
	// wrong password alike.
	ErrInvalidCredentials = errors.New("invalid email or password")
	// ErrUserExists is returned when registering an email already in use.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned by collaborators when an id has no record.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountDisabled is returned after a correct password for a disabled account.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrVerifierUnavailable marks signing keys or the password hasher as
	// misconfigured. Build fails with it rather than serving partially.
	ErrVerifierUnavailable = errors.New("credential verifier unavailable")
	// ErrUnsupported is returned when an operation's collaborator is not attached.
	ErrUnsupported = errors.New("operation not supported")
	// ErrUnavailable wraps collaborator failures such as a user store outage.
	ErrUnavailable = errors.New("backend unavailable")
)

// Code is a stable machine code for an outcome.
type Code string

const (
	CodeOK                      Code = "OK"
	CodeAuthRequired            Code = "AUTH_REQUIRED"
	CodeInvalidToken            Code = "INVALID_TOKEN"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeCompanyAccessDenied     Code = "COMPANY_ACCESS_DENIED"
	CodeRateLimited             Code = "RATE_LIMITED"
	CodeValidationError         Code = "VALIDATION_ERROR"
	CodeInvalidCredentials      Code = "INVALID_CREDENTIALS"
	CodeUserExists              Code = "USER_EXISTS"
	CodeAccountDisabled         Code = "ACCOUNT_DISABLED"
	CodeVerifierUnavailable     Code = "VERIFIER_UNAVAILABLE"
	CodeNotSupported            Code = "NOT_SUPPORTED"
	CodeInternalError           Code = "INTERNAL_ERROR"
)

var codeTable = []struct {
	err  error
	code Code
}{
	{ErrAuthRequired, CodeAuthRequired},
	{ErrInvalidToken, CodeInvalidToken},
	{ErrInsufficientRole, CodeInsufficientPermissions},
	{ErrInsufficientPermissions, CodeInsufficientPermissions},
	{ErrCompanyAccessDenied, CodeCompanyAccessDenied},
	{ErrRateLimited, CodeRateLimited},
	{ErrValidation, CodeValidationError},
	{ErrInvalidCredentials, CodeInvalidCredentials},
	{ErrUserExists, CodeUserExists},
	{ErrAccountDisabled, CodeAccountDisabled},
	{ErrVerifierUnavailable, CodeVerifierUnavailable},
	{ErrUnsupported, CodeNotSupported},
}

var statusByCode = map[Code]int{
	CodeOK:                      http.StatusOK,
	CodeAuthRequired:            http.StatusUnauthorized,
	CodeInvalidToken:            http.StatusForbidden,
	CodeInsufficientPermissions: http.StatusForbidden,
	CodeCompanyAccessDenied:     http.StatusForbidden,
	CodeRateLimited:             http.StatusTooManyRequests,
	CodeValidationError:         http.StatusBadRequest,
	CodeInvalidCredentials:      http.StatusUnauthorized,
	CodeUserExists:              http.StatusConflict,
	CodeAccountDisabled:         http.StatusForbidden,
	CodeVerifierUnavailable:     http.StatusInternalServerError,
	CodeNotSupported:            http.StatusNotImplemented,
	CodeInternalError:           http.StatusInternalServerError,
}

var messageByCode = map[Code]string{
	CodeAuthRequired:            "Access token required",
	CodeInvalidToken:            "Invalid or expired token",
	CodeInsufficientPermissions: "Insufficient permissions",
	CodeCompanyAccessDenied:     "Access denied to this company's data",
	CodeRateLimited:             "Too many requests, please try again later",
	CodeValidationError:         "Validation failed",
	CodeInvalidCredentials:      "Invalid email or password",
	CodeUserExists:              "User already exists",
	CodeAccountDisabled:         "Account is disabled",
	CodeVerifierUnavailable:     "Service unavailable",
	CodeNotSupported:            "Operation not supported",
	CodeInternalError:           "Internal server error",
}

// CodeOf maps err to its stable code. Gate failures keep their own code and
// unknown errors map to INTERNAL_ERROR.
func CodeOf(err error) Code {
	if err == nil {
		return CodeOK
	}
	var f *security.Failure
	if errors.As(err, &f) {
		return Code(f.Code)
	}
	for _, row := range codeTable {
		if errors.Is(err, row.err) {
			return row.code
		}
	}
	return CodeInternalError
}

// StatusOf maps err to the HTTP status its code corresponds to.
func StatusOf(err error) int {
	return StatusForCode(CodeOf(err))
}

// StatusForCode returns the HTTP status for code.
func StatusForCode(code Code) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// MessageFor returns the generic public message for code.
func MessageFor(code Code) string {
	if m, ok := messageByCode[code]; ok {
		return m
	}
	return messageByCode[CodeInternalError]
}
