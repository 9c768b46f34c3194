// Package jwt mints, verifies, and rotates the access/refresh credential pair.
//
// Access and refresh tokens are signed with distinct keys and carry a token
// type claim, so a leaked refresh key cannot forge access tokens and a refresh
// token is never accepted where an access token is expected. Parsing pins the
// configured algorithm and reports every failure as [ErrTokenInvalid].
package jwt
