// Package portalauth is a stateless authentication and authorization engine
// for multi-tenant portals: it issues and verifies signed access and refresh
// tokens, enforces role and permission rules, and confines non-admin
// principals to their own company.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Request flow
//
// Protected calls go Screen (rate limit, sanitize, injection guard, validate)
// then Verify then Authorize. Login and refresh go Screen then the credential
// verifier then token minting.
//
// # Architecture boundaries
//
// portalauth is the public surface. It exposes [Engine], [Builder], [Config],
// [Result] and the collaborator interfaces a host implements ([UserProvider],
// [UserCreator], [PasswordUpdater], [CredentialVerifier], [RevocationList]).
// Rate-limit stores and audit dispatch live under internal/.
//
// # What this package must NOT do
//
//   - Log token values, passwords, digests or request bodies.
//   - Reveal through errors whether an email is registered, beyond
//     registration's USER_EXISTS.
//   - Import a sub-package that re-imports portalauth (no import cycles).
package portalauth
