// Package audit carries security-relevant events (denied access, login
// outcomes, token revocation) from the engine to pluggable sinks.
//
// # Delivery
//
// [Dispatcher] decouples producers from sinks with a bounded channel. With
// DropIfFull set, a full buffer drops the event and counts it rather than
// blocking the request path; otherwise Emit waits for space or context
// cancellation.
//
// # What this package must NOT do
//
//   - Decide whether access is allowed.
//   - Carry secrets: passwords, password digests or raw tokens never appear
//     in an Event.
package audit
