package middleware

import (
	"net/http"

	"github.com/dave593/portalauth"
	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/permission"
	"github.com/dave593/portalauth/policy"
)

// RequireRole allows the request when the Principal holds one of roles.
// Place it after Guard.
func RequireRole(engine *portalauth.Engine, roles ...permission.Role) func(http.Handler) http.Handler {
	return require(engine, func(*http.Request) policy.Requirement {
		return policy.Requirement{Roles: roles}
	})
}

// RequirePermission allows the request when the Principal holds at least one
// of perms. Place it after Guard.
func RequirePermission(engine *portalauth.Engine, perms ...permission.Permission) func(http.Handler) http.Handler {
	return require(engine, func(*http.Request) policy.Requirement {
		return policy.Requirement{Permissions: perms}
	})
}

func require(engine *portalauth.Engine, build func(*http.Request) policy.Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := build(r)
			req.Resource = resource(r)

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
