// Package permission defines the closed role enum, capability strings, and the
// role table that maps each role to its default permission set.
//
// Roles and permissions arrive as loose strings from token claims and user
// records; they become typed values only after passing through [Registry.Parse]
// or [RoleTable.Parse].
//
// # Architecture boundaries
//
// This package is a pure in-memory data structure with no I/O. The role table is
// populated during engine construction and frozen before the first request.
//
// # What this package must NOT do
//
//   - Access Redis, databases, or the network.
//   - Import portalauth, jwt, or policy.
//   - Accept registrations after Freeze.
package permission
