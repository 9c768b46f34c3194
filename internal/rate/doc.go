// Package rate implements the per-client request counters behind the security
// pipeline's rate-limit gate.
//
// Three stores share the [Store] contract: [MemoryStore] (process-local fixed
// window, injectable clock), [RedisStore] (fixed window evaluated atomically in
// a Lua script), and [BucketStore] (token bucket on golang.org/x/time/rate).
// Every store performs increment-and-check as one atomic step per key.
package rate
