package security

import (
	"context"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMaxFieldLength bounds every string field unless configured otherwise.
const DefaultMaxFieldLength = 1000

var (
	angleBrackets = strings.NewReplacer("<", "", ">", "")
	jsScheme      = regexp.MustCompile(`(?i)javascript\s*:`)
	eventHandler  = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
)

// Sanitizer normalizes string inputs before validation.
type Sanitizer struct {
	MaxFieldLength int
}

// NewSanitizer returns a Sanitizer truncating at maxLen runes; values <= 0 use
// DefaultMaxFieldLength.
func NewSanitizer(maxLen int) *Sanitizer {
	if maxLen <= 0 {
		maxLen = DefaultMaxFieldLength
	}
	return &Sanitizer{MaxFieldLength: maxLen}
}

// maxStripPasses bounds the strip loop. Input still carrying a pattern after
// that many passes is dropped entirely.
const maxStripPasses = 16

// String cleans one value: trim, drop angle brackets, drop javascript: schemes
// and inline event handlers, then truncate to MaxFieldLength runes. Stripping
// repeats until nothing changes, so nested input such as
// "javajavascript:script:" cannot reassemble a pattern.
func (s *Sanitizer) String(v string) string {
	stable := false
	for i := 0; i < maxStripPasses && !stable; i++ {
		next := strip(v)
		stable = next == v
		v = next
	}
	if !stable && strip(v) != v {
		return ""
	}

	limit := s.MaxFieldLength
	if limit <= 0 {
		limit = DefaultMaxFieldLength
	}
	if utf8.RuneCountInString(v) > limit {
		r := []rune(v)
		v = string(r[:limit])
	}
	return v
}

func strip(v string) string {
	v = strings.TrimSpace(v)
	v = angleBrackets.Replace(v)
	v = jsScheme.ReplaceAllString(v, "")
	v = eventHandler.ReplaceAllString(v, "")
	return v
}

// Check sanitizes body, query and path parameters in place. It never fails.
func (s *Sanitizer) Check(_ context.Context, req *Request) error {
	for k, v := range req.Query {
		req.Query[k] = s.String(v)
	}
	for k, v := range req.Params {
		req.Params[k] = s.String(v)
	}
	for k, v := range req.Body {
		req.Body[k] = s.value(v)
	}
	return nil
}

func (s *Sanitizer) value(v any) any {
	switch t := v.(type) {
	case string:
		return s.String(t)
	case map[string]any:
		for k, inner := range t {
			t[k] = s.value(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = s.value(inner)
		}
		return t
	default:
		return v
	}
}
