// Package ratelimit provides the net/http adapters for admission control and
// for the in-flight concurrency limit.
//
// Layers:
//
//   - domain: contracts and value types (no net/http)
//   - application: policy registry, limiter cache, admission engine, admin control
//   - infra: Redis/memory counter stores, token bucket smoother, stats, semaphore
//   - ratelimit (this package): key derivation, Guard middleware, admin handler
//
// Request flow:
//
//  1. derive the caller key (custom func, header, or client address)
//  2. ask the application layer for a decision
//  3. rejected: 429 with Retry-After; store down: fail open or closed
//  4. allowed: set X-RateLimit-* headers and call the next handler
package ratelimit
