package rate

import "errors"

var (
	// ErrRateLimited is returned by Limiter.Check when the ceiling is exceeded.
	ErrRateLimited = errors.New("rate limited")
	// ErrBackendUnavailable wraps store failures (for example Redis errors).
	ErrBackendUnavailable = errors.New("rate limit backend unavailable")
)
