package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
)

type principalContextKey struct{}

// PrincipalFromContext returns the Principal stored by Guard or Optional.
func PrincipalFromContext(ctx context.Context) (identity.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(identity.Principal)
	return p, ok
}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p identity.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// Guard rejects requests without a valid bearer access token. A missing
// token is AUTH_REQUIRED (401); a bad, expired or revoked one is
// INVALID_TOKEN (403).
func Guard(engine *portalauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				WriteError(w, portalauth.ErrAuthRequired)
				return
			}
			ctx := requestContext(r)

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				engine.RecordDenial(ctx, resource(r), portalauth.ErrAuthRequired)
				WriteError(w, portalauth.ErrAuthRequired)
				return
			}

			p, err := engine.Verify(ctx, token)
			if err != nil {
				WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(ctx, p)))
		})
	}
}

// Optional verifies a bearer token when one is sent and stores the Principal.
// Requests without a token, or with an invalid one, pass through anonymous.
func Optional(engine *portalauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestContext(r)
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok && engine != nil {
				if p, ok := engine.Authenticate(ctx, token); ok {
					ctx = WithPrincipal(ctx, p)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer <t>" value.
func BearerToken(r *http.Request) (string, bool) {
	return bearerToken(r.Header.Get("Authorization"))
}

func bearerToken(value string) (string, bool) {
	const bearer = "bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

func resource(r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
