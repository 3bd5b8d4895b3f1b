package domain

import (
	"context"
	"time"
)

// Key is the derived identity of "who" is being limited (IP, IP+user, custom).
type Key string

// CounterKey addresses the counter record of key under a policy namespace.
func CounterKey(namespace string, key Key) string {
	return namespace + ":" + string(key)
}

// Limiter decides whether an action is allowed right now.
//
// Used for the optional in-process smoothing; implementations may be a token
// bucket from golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore returns a Limiter per key.
type LimiterStore interface {
	Get(Key) Limiter
}

// Counter is the state observed right after an atomic increment.
type Counter struct {
	Points int64
	// WindowTTL is the time left in the current window.
	WindowTTL time.Duration
	// BlockTTL is the time left on an active block, zero when not blocked.
	BlockTTL time.Duration
}

// CounterStore is the shared, cross-process counter backend.
//
// Increment must be atomic per key: it adds one point and starts a window
// of the given length only when the record is created.
type CounterStore interface {
	Increment(ctx context.Context, key string, window time.Duration) (Counter, error)
	// Block sets the block record if it does not exist yet. It reports
	// whether this call created it, along with the remaining block TTL.
	Block(ctx context.Context, key string, d time.Duration) (created bool, ttl time.Duration, err error)
	// Get returns nil when neither a counter nor a block exists for key.
	Get(ctx context.Context, key string) (*CounterRecord, error)
	// Delete removes the counter and block records. It reports whether
	// anything was removed.
	Delete(ctx context.Context, key string) (bool, error)
}

// CounterRecord is the administrative view of a key's consumption state.
type CounterRecord struct {
	Key             string     `json:"key" yaml:"key"`
	Points          int64      `json:"points" yaml:"points"`
	WindowExpiresAt time.Time  `json:"windowExpiresAt" yaml:"windowExpiresAt"`
	BlockedUntil    *time.Time `json:"blockedUntil,omitempty" yaml:"blockedUntil,omitempty"`
}

type Decision struct {
	Allowed bool
	// Limit is the policy budget.
	Limit int
	// Remaining is zero when rejected.
	Remaining int
	// ResetAfter is the time until the current window ends.
	ResetAfter time.Duration
	// RetryAfter is the value to return in Retry-After when rejected.
	// If 0, there is no recommendation.
	RetryAfter time.Duration
}
