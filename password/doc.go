// Package password implements the credential verifier: hash a secret, compare
// a secret against a stored digest.
//
// # Schemes
//
//   - [Bcrypt] (default, cost 12): standard $2a$ digests from x/crypto/bcrypt
//   - [Argon2] (argon2id): PHC strings
//
// The PHC layout produced by Argon2 is:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Both schemes report [Verifier.NeedsUpgrade] when a digest was produced with
// weaker parameters than the current configuration, so callers can re-hash
// after a successful login.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive digests.
//   - Log plaintext passwords or digests.
package password
