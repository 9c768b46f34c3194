package security

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dave593/portalauth/internal/rate"
)

func TestSanitizerStripsScriptTags(t *testing.T) {
	s := NewSanitizer(1000)
	got := s.String("<script>alert(1)</script>")
	if strings.ContainsAny(got, "<>") {
		t.Fatalf("angle brackets survived: %q", got)
	}
	if got != "scriptalert(1)/script" {
		t.Fatalf("unexpected sanitized value %q", got)
	}
}

func TestSanitizerPatterns(t *testing.T) {
	s := NewSanitizer(0)
	tests := []struct {
		in, want string
	}{
		{"  padded  ", "padded"},
		{"javascript:alert(1)", "alert(1)"},
		{"JavaScript :void(0)", "void(0)"},
		{`img onerror=steal()`, "img steal()"},
		{"reason=fine", "reason=fine"},
		{"javajavascript:script:alert(1)", "alert(1)"},
		{"jajavascript:vajavascript:script:x", "x"},
		{"java<script:>x", "x"},
		{"plain", "plain"},
	}
	for _, tc := range tests {
		if got := s.String(tc.in); got != tc.want {
			t.Fatalf("String(%q) = %q want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizerDropsUnboundedNesting(t *testing.T) {
	s := NewSanitizer(0)
	nested := strings.Repeat("java", 40) + "javascript:" + strings.Repeat("script:", 40) + "alert(1)"
	if got := s.String(nested); strings.Contains(strings.ToLower(got), "javascript:") {
		t.Fatalf("nested scheme survived: %q", got)
	}
}

func TestSanitizerTruncatesExactly(t *testing.T) {
	s := NewSanitizer(10)
	if got := s.String(strings.Repeat("a", 25)); len(got) != 10 {
		t.Fatalf("expected 10 chars, got %d", len(got))
	}
	got := s.String(strings.Repeat("é", 12))
	if n := len([]rune(got)); n != 10 {
		t.Fatalf("expected 10 runes, got %d", n)
	}
	if got := s.String("short"); got != "short" {
		t.Fatalf("short input changed: %q", got)
	}
}

func TestSanitizerRewritesRequestInPlace(t *testing.T) {
	req := &Request{
		Body: map[string]any{
			"name":   " <b>Ana</b> ",
			"nested": map[string]any{"note": "<i>x</i>"},
			"list":   []any{"<a>", 3.0},
			"count":  2.0,
		},
		Query:  map[string]string{"q": "<q>"},
		Params: map[string]string{"company": " acme "},
	}
	if err := NewSanitizer(100).Check(context.Background(), req); err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if req.Body["name"] != "bAna/b" {
		t.Fatalf("body not sanitized: %v", req.Body["name"])
	}
	if req.Body["nested"].(map[string]any)["note"] != "ix/i" {
		t.Fatalf("nested not sanitized: %v", req.Body["nested"])
	}
	if req.Body["list"].([]any)[0] != "a" || req.Body["count"] != 2.0 {
		t.Fatalf("list not sanitized: %v", req.Body["list"])
	}
	if req.Query["q"] != "q" || req.Params["company"] != "acme" {
		t.Fatalf("query/params not sanitized: %v %v", req.Query, req.Params)
	}
}

func TestInjectionGuard(t *testing.T) {
	tests := []struct {
		name   string
		req    *Request
		reject bool
		field  string
	}{
		{"clean", &Request{Body: map[string]any{"email": "a@b.io", "name": "O'Brien"}}, false, ""},
		{"operator key", &Request{Body: map[string]any{"email": map[string]any{"$ne": ""}}}, true, "email.$ne"},
		{"dotted key", &Request{Body: map[string]any{"profile.role": "admin"}}, true, "profile.role"},
		{"tautology", &Request{Body: map[string]any{"email": "x' OR '1'='1"}}, true, "email"},
		{"stacked", &Request{Query: map[string]string{"id": "1; DROP TABLE users"}}, true, "id"},
		{"union", &Request{Params: map[string]string{"company": "a UNION SELECT password FROM users"}}, true, "company"},
		{"comment", &Request{Body: map[string]any{"tags": []any{"ok", "admin'--"}}}, true, "tags"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := InjectionGuard{}.Check(context.Background(), tc.req)
			if !tc.reject {
				if err != nil {
					t.Fatalf("unexpected rejection: %v", err)
				}
				return
			}
			var f *Failure
			if !errors.As(err, &f) || f.Code != CodeValidationError {
				t.Fatalf("expected validation failure, got %v", err)
			}
			if f.Fields[0].Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, f.Fields)
			}
		})
	}
}

func TestValidatorAggregatesViolations(t *testing.T) {
	v := NewValidator([]string{"user", "inspector"})
	req := &Request{
		Endpoint: EndpointRegister,
		Body: map[string]any{
			"email":           "not-an-email",
			"password":        "weak",
			"confirmPassword": "other",
			"name":            "R2D2",
			"company":         "acme",
			"role":            "admin",
		},
	}
	err := v.Check(context.Background(), req)
	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *Failure, got %v", err)
	}

	got := map[string]string{}
	for _, fv := range f.Fields {
		got[fv.Field] = fv.Rule
	}
	want := map[string]string{
		"email":           "email",
		"password":        "strongpassword",
		"confirmPassword": "eqfield",
		"name":            "personname",
		"role":            "role",
	}
	for field, rule := range want {
		if got[field] != rule {
			t.Fatalf("field %s: got rule %q want %q (all: %+v)", field, got[field], rule, f.Fields)
		}
	}
	if _, ok := got["company"]; ok {
		t.Fatalf("company is valid and must not be reported: %+v", f.Fields)
	}
}

func TestValidatorAcceptsValidBodies(t *testing.T) {
	v := NewValidator([]string{"user"})
	cases := []*Request{
		{Endpoint: EndpointLogin, Body: map[string]any{"email": "ana@acme.io", "password": "x"}},
		{Endpoint: EndpointRegister, Body: map[string]any{
			"email": "ana@acme.io", "password": "Str0ngPass", "confirmPassword": "Str0ngPass",
			"name": "Ana María", "company": "acme",
		}},
		{Endpoint: EndpointRefresh, Body: map[string]any{"refreshToken": "a.b.c"}},
		{Endpoint: EndpointChangePassword, Body: map[string]any{
			"currentPassword": "Old0ldPass", "newPassword": "N3wPassword", "confirmPassword": "N3wPassword",
		}},
		{Endpoint: "unregistered", Body: map[string]any{"anything": 1.0}},
	}
	for _, req := range cases {
		if err := v.Check(context.Background(), req); err != nil {
			t.Fatalf("endpoint %s: unexpected failure %v", req.Endpoint, err)
		}
	}
}

func TestValidatorTypeMismatch(t *testing.T) {
	v := NewValidator(nil)
	err := v.Check(context.Background(), &Request{Endpoint: EndpointLogin, Body: map[string]any{"email": 42.0, "password": "x"}})
	var f *Failure
	if !errors.As(err, &f) || f.Fields[0].Field != "email" || f.Fields[0].Rule != "type" {
		t.Fatalf("expected type violation on email, got %v", err)
	}
}

func TestChangePasswordMustDiffer(t *testing.T) {
	v := NewValidator(nil)
	err := v.Check(context.Background(), &Request{Endpoint: EndpointChangePassword, Body: map[string]any{
		"currentPassword": "Same1Password", "newPassword": "Same1Password", "confirmPassword": "Same1Password",
	}})
	var f *Failure
	if !errors.As(err, &f) || f.Fields[0].Rule != "nefield" {
		t.Fatalf("expected nefield violation, got %v", err)
	}
}

func TestPipelineShortCircuits(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter, err := rate.New(rate.NewMemoryStore(func() time.Time { return clock }), rate.Config{
		Window: time.Minute, MaxRequests: 10, AuthWindow: time.Minute, AuthMaxRequests: 1,
	})
	if err != nil {
		t.Fatalf("rate.New failed: %v", err)
	}

	var limited []RouteClass
	validated := 0
	p := NewPipeline(
		NewRateLimitGate(limiter, nil, func(c RouteClass) { limited = append(limited, c) }),
		NewSanitizer(100),
		InjectionGuard{},
		GateFunc(func(context.Context, *Request) error { validated++; return nil }),
	)

	req := func() *Request {
		return &Request{ClientAddr: "1.2.3.4", Class: RouteAuth, Body: map[string]any{"email": "<a@b.io>"}}
	}

	first := req()
	if f := p.Run(context.Background(), first); f != nil {
		t.Fatalf("first request rejected: %v", f)
	}
	if first.Body["email"] != "a@b.io" {
		t.Fatalf("sanitizer did not run: %v", first.Body["email"])
	}

	f := p.Run(context.Background(), req())
	if f == nil || f.Code != CodeRateLimited || f.RetryAfter != time.Minute {
		t.Fatalf("expected RATE_LIMITED with 1m retry, got %+v", f)
	}
	if validated != 1 {
		t.Fatalf("later gates must not run after a failure, ran %d times", validated)
	}
	if len(limited) != 1 || limited[0] != RouteAuth {
		t.Fatalf("expected one auth limit callback, got %v", limited)
	}
}

func TestPipelineWrapsForeignErrors(t *testing.T) {
	p := NewPipeline(nil, GateFunc(func(context.Context, *Request) error { return errors.New("boom") }))
	if p.Len() != 1 {
		t.Fatalf("nil gates must be skipped, got %d", p.Len())
	}
	f := p.Run(context.Background(), &Request{})
	if f == nil || f.Code != CodeInternalError {
		t.Fatalf("expected INTERNAL_ERROR, got %+v", f)
	}
	if strings.Contains(f.Message, "boom") {
		t.Fatal("internal error text must not leak")
	}
}

func TestFailureMatchesSentinelByCode(t *testing.T) {
	limited := &Failure{Code: CodeRateLimited, Message: "slow down"}
	invalid := validationFailure([]FieldViolation{{Field: "email", Rule: "email"}})
	internal := &Failure{Code: CodeInternalError, Message: "boom"}

	if !errors.Is(limited, ErrRateLimited) || errors.Is(limited, ErrValidation) {
		t.Fatalf("rate limit failure matched wrong sentinel")
	}
	if !errors.Is(invalid, ErrValidation) || errors.Is(invalid, ErrRateLimited) {
		t.Fatalf("validation failure matched wrong sentinel")
	}
	if errors.Is(internal, ErrRateLimited) || errors.Is(internal, ErrValidation) {
		t.Fatalf("internal failure should match no sentinel")
	}
	var f *Failure
	if !errors.As(fmt.Errorf("wrapped: %w", invalid), &f) || f != invalid {
		t.Fatalf("expected wrapped failure to unwrap")
	}
}
