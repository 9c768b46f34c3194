// Package revocation provides the optional token revocation list consulted by
// the engine on every access verification.
//
// Entries are keyed by token id (jti) and carry a TTL equal to the token's
// remaining lifetime, so the list never outgrows the set of live tokens.
// [RedisList] shares state across processes; [MemoryList] suits tests and
// single-node deployments.
package revocation
