// Package middleware adapts portalauth.Engine to net/http.
//
// # Chain
//
//   - [Screen] runs the security pipeline (rate limit, sanitize, injection
//     guard, validation) over the request and its JSON body.
//   - [Guard] requires a bearer access token and stores the Principal.
//   - [Optional] stores the Principal when a valid token is present.
//   - [RequireRole], [RequirePermission] and [RequireCompany] evaluate policy
//     against the Principal set by Guard.
//
// Every rejection is written as a JSON portalauth.Result with the status its
// code maps to.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does not parse
// tokens or make policy decisions itself.
package middleware
