package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/policy"
)

// RequireCompany confines non-admin principals to their own company. The
// requested company is read from the path wildcard named param, then the
// query parameter and body field named by the engine's tenant field. Sources
// that disagree are denied. Place it after Screen and Guard so it reads the
// sanitized values.
func RequireCompany(engine *portalauth.Engine, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			field := engine.TenantField()
			src := policy.TenantSources{
				Query: r.URL.Query().Get(field),
				Body:  policy.TenantFromBody(requestBody(r), field),
			}
			if param != "" {
				src.Path = r.PathValue(param)
			}

			req := policy.Requirement{Resource: resource(r)}
			tenant, err := src.Resolve()
			switch {
			case errors.Is(err, policy.ErrTenantConflict):
				req.TenantConflict = true
			case err != nil:
				WriteError(w, err)
				return
			default:
				req.Tenant = tenant
			}

			var p *identity.Principal
			if got, ok := PrincipalFromContext(r.Context()); ok {
				p = &got
			}
			if err := engine.Authorize(r.Context(), p, req); err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requestBody returns the body stored by Screen, or peeks at a JSON body and
// restores it for the next handler.
func requestBody(r *http.Request) map[string]any {
	if b, ok := BodyFromContext(r.Context()); ok {
		return b
	}
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, DefaultMaxBodyBytes))
	_ = r.Body.Close()
	r.Body = io.NopCloser(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	var body map[string]any
	if json.Unmarshal(raw, &body) != nil {
		return nil
	}
	return body
}
