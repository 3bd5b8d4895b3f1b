// Package infra contains concrete implementations of the contracts defined
// in the domain package.
//
//   - RedisCounterStore: the shared counter store, atomic through Lua scripts
//   - MemoryCounterStore: single-process counter store for tests and development
//   - Store: per-key token buckets (golang.org/x/time/rate) used for smoothing
//   - Redis/Memory/Prometheus stats stores
//   - ChanPool: semaphore for the concurrency limit
package infra
