// Package security implements the pre-authorization pipeline: an ordered,
// short-circuiting chain of gates that every request passes before any token
// is verified.
//
// # Stock gates
//
//   - [RateLimitGate]: per-client counters with a stricter auth route class
//   - [Sanitizer]: trims, strips angle brackets and script patterns,
//     truncates every string field
//   - [InjectionGuard]: rejects operator keys and SQL injection patterns
//   - [Validator]: declarative per-endpoint rules with an aggregated report
//
// A gate either returns nil or a [*Failure] carrying a machine code, a human
// message and, for validation, the per-field violations. Gates do not
// authenticate and do not change request meaning beyond sanitization.
package security
