// Package metrics exposes authentication outcomes as Prometheus collectors.
//
// A nil *Collector is valid and records nothing, so callers never branch on
// whether metrics are enabled.
//
// # What this package must NOT do
//
//   - Label by user id, email or token id. Label values come from small
//     closed sets (outcome, reason code, route class, operation).
package metrics
