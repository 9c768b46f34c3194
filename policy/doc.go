// Package policy turns a decoded principal and a resource requirement into an
// allow or deny decision.
//
// The checks run in a fixed order and stop at the first deny:
//
//  1. authentication: a nil principal is AUTH_REQUIRED
//  2. role membership: INSUFFICIENT_PERMISSIONS
//  3. permission overlap (any one listed permission suffices): INSUFFICIENT_PERMISSIONS
//  4. tenant scope (admin bypasses): COMPANY_ACCESS_DENIED
//
// The free functions are pure. [Enforcer] wraps them and records every deny
// through slog and an optional [DenyObserver]; it never logs request bodies.
//
// # Tenant precedence
//
// A requested tenant may arrive as a path parameter, a query parameter or a
// body field. [TenantSources.Resolve] takes them in that order, and when more
// than one is set with different values the request is refused instead of
// choosing one.
package policy
