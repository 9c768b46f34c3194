package policy

import (
	"github.com/dave593/portalauth/identity"
	"github.com/dave593/portalauth/permission"
)

// Code is a stable reason code carried by a deny.
type Code string

const (
	CodeAuthRequired            Code = "AUTH_REQUIRED"
	CodeInsufficientPermissions Code = "INSUFFICIENT_PERMISSIONS"
	CodeCompanyAccessDenied     Code = "COMPANY_ACCESS_DENIED"
)

// Check names the rule that produced a deny.
type Check string

const (
	CheckAuth       Check = "auth"
	CheckRole       Check = "role"
	CheckPermission Check = "permission"
	CheckTenant     Check = "tenant"
)

// Decision is the outcome of a policy check. Reason and Check are empty when
// Allowed. A role deny and a permission deny share a Reason; Check tells
// them apart.
type Decision struct {
	Allowed bool
	Reason  Code
	Check   Check
}

// Allow is the zero-reason allow decision.
func Allow() Decision { return Decision{Allowed: true} }

// Deny builds a deny decision carrying code.
func Deny(code Code) Decision { return Decision{Reason: code} }

func denyBy(check Check, code Code) Decision { return Decision{Reason: code, Check: check} }

// RequireRole allows p when its role is one of roles. A nil principal is
// always AUTH_REQUIRED, and an empty roles list allows any authenticated
// principal.
func RequireRole(p *identity.Principal, roles ...permission.Role) Decision {
	if p == nil {
		return denyBy(CheckAuth, CodeAuthRequired)
	}
	if len(roles) == 0 {
		return Allow()
	}
	for _, r := range roles {
		if p.Role == r {
			return Allow()
		}
	}
	return denyBy(CheckRole, CodeInsufficientPermissions)
}

// RequirePermission allows p when it holds at least one of perms. An empty
// perms list allows any authenticated principal.
func RequirePermission(p *identity.Principal, perms ...permission.Permission) Decision {
	if p == nil {
		return denyBy(CheckAuth, CodeAuthRequired)
	}
	if len(perms) == 0 {
		return Allow()
	}
	if p.Permissions.HasAny(perms...) {
		return Allow()
	}
	return denyBy(CheckPermission, CodeInsufficientPermissions)
}

// CheckTenantScope confines non-admin principals to their own company. An
// empty requested tenant means no cross-tenant access was asked for.
func CheckTenantScope(p *identity.Principal, requested string) Decision {
	if p == nil {
		return denyBy(CheckAuth, CodeAuthRequired)
	}
	if p.IsAdmin() || requested == "" || requested == p.Company {
		return Allow()
	}
	return denyBy(CheckTenant, CodeCompanyAccessDenied)
}

// Requirement describes what a protected resource demands.
type Requirement struct {
	// Resource names the protected operation for logs, e.g. "GET /reports".
	Resource    string
	Roles       []permission.Role
	Permissions []permission.Permission
	// Tenant is the resolved requested tenant, empty when none was given.
	Tenant string
	// TenantConflict marks a request whose tenant sources disagreed.
	TenantConflict bool
}

// Evaluate runs every check in order and returns the first deny.
func Evaluate(p *identity.Principal, req Requirement) Decision {
	if d := RequireRole(p, req.Roles...); !d.Allowed {
		return d
	}
	if d := RequirePermission(p, req.Permissions...); !d.Allowed {
		return d
	}
	if req.TenantConflict && !p.IsAdmin() {
		return denyBy(CheckTenant, CodeCompanyAccessDenied)
	}
	return CheckTenantScope(p, req.Tenant)
}
