package policy

import (
	"errors"
	"strings"
)

// ErrTenantConflict is returned when tenant sources disagree.
var ErrTenantConflict = errors.New("conflicting tenant values in request")

// TenantSources holds the requested tenant as found in each part of a request.
type TenantSources struct {
	Path  string
	Query string
	Body  string
}

// Resolve returns the requested tenant, taking path, then query, then body.
// Blank values are ignored. Two non-blank values that differ produce
// ErrTenantConflict.
func (s TenantSources) Resolve() (string, error) {
	var chosen string
	for _, v := range []string{s.Path, s.Query, s.Body} {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if chosen == "" {
			chosen = v
			continue
		}
		if v != chosen {
			return "", ErrTenantConflict
		}
	}
	return chosen, nil
}

// TenantFromBody extracts field from a decoded JSON body when it holds a string.
func TenantFromBody(body map[string]any, field string) string {
	if body == nil {
		return ""
	}
	v, _ := body[field].(string)
	return v
}
