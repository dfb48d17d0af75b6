// Package flowgate is the resilience layer for calling an unreliable,
// rate-limited workflow-automation API.
//
// Every remote operation is treated as an opaque (method, path, body,
// timeout) -> (status, data) call. The central type is Client, which runs
// each call through a per-endpoint circuit breaker, a bounded FIFO
// connection pool, and a retry-with-backoff loop, recording every outcome
// in a bounded metrics log. RecoveryManager wraps any primary operation
// with an ordered chain of fallback strategies backed by a TTL offline
// cache.
//
// All per-endpoint state lives in an explicit Registry that callers
// inject; there are no package-level singletons.
package flowgate
