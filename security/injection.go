package security

import (
	"context"
	"regexp"
	"sort"
	"strings"
)

var sqlPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bunion\b[\s\S]*\bselect\b`),
	regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate)\b`),
	regexp.MustCompile(`(?i)'\s*(or|and)\s+'?[\w]+'?\s*=\s*'?[\w]+`),
	regexp.MustCompile(`(?i)'\s*;?\s*--`),
	regexp.MustCompile(`/\*[\s\S]*?\*/`),
	regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep)\s*\(`),
}

// InjectionGuard rejects document-store operator keys ($-prefixed or dotted)
// anywhere in the body and string values matching common SQL injection shapes.
type InjectionGuard struct{}

func (InjectionGuard) Check(_ context.Context, req *Request) error {
	var v []FieldViolation
	inspectMap("", req.Body, &v)
	for _, k := range sortedKeys(req.Query) {
		if looksLikeSQLInjection(req.Query[k]) {
			v = append(v, injectionViolation(k))
		}
	}
	for _, k := range sortedKeys(req.Params) {
		if looksLikeSQLInjection(req.Params[k]) {
			v = append(v, injectionViolation(k))
		}
	}
	if len(v) > 0 {
		return validationFailure(v)
	}
	return nil
}

func inspectMap(prefix string, m map[string]any, out *[]FieldViolation) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		if strings.HasPrefix(k, "$") || strings.Contains(k, ".") {
			*out = append(*out, FieldViolation{Field: path, Rule: "operator_key", Message: "field name is not allowed"})
			continue
		}
		inspectValue(path, m[k], out)
	}
}

func inspectValue(path string, v any, out *[]FieldViolation) {
	switch t := v.(type) {
	case string:
		if looksLikeSQLInjection(t) {
			*out = append(*out, injectionViolation(path))
		}
	case map[string]any:
		inspectMap(path, t, out)
	case []any:
		for _, inner := range t {
			inspectValue(path, inner, out)
		}
	}
}

func looksLikeSQLInjection(s string) bool {
	for _, re := range sqlPatterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func injectionViolation(field string) FieldViolation {
	return FieldViolation{Field: field, Rule: "injection", Message: "value contains a disallowed pattern"}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
