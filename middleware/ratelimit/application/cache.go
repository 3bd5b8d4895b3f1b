package application

import (
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// SmootherFactory builds the per-key local limiter used by smoothed policies.
type SmootherFactory func(p domain.Policy) domain.LimiterStore

// Limiter binds a policy to the shared counter store. It holds no per-caller
// state itself.
type Limiter struct {
	policy domain.Policy
	store  domain.CounterStore
	smooth domain.LimiterStore
}

func (l *Limiter) Policy() domain.Policy { return l.policy }

// cacheKey includes the block duration and the smoothing flag so policies
// that differ only there never share a limiter.
type cacheKey struct {
	namespace string
	budget    int
	window    time.Duration
	block     time.Duration
	smooth    bool
}

func keyOf(p domain.Policy) cacheKey {
	return cacheKey{
		namespace: p.Namespace,
		budget:    p.Budget,
		window:    p.Window,
		block:     p.BlockDuration(),
		smooth:    p.Smooth,
	}
}

// LimiterCache memoizes one Limiter per policy shape for the life of the
// process. There is no eviction: the policy set is finite.
type LimiterCache struct {
	mu       sync.RWMutex
	limiters map[cacheKey]*Limiter
	store    domain.CounterStore
	smoother SmootherFactory
}

type CacheOption func(*LimiterCache)

// WithSmoother enables smoothing for policies that ask for it.
func WithSmoother(f SmootherFactory) CacheOption {
	return func(c *LimiterCache) { c.smoother = f }
}

func NewLimiterCache(store domain.CounterStore, opts ...CacheOption) *LimiterCache {
	c := &LimiterCache{
		limiters: make(map[cacheKey]*Limiter),
		store:    store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCreate returns the limiter for p, creating it on first use.
// Concurrent first callers converge on the same instance.
func (c *LimiterCache) GetOrCreate(p domain.Policy) *Limiter {
	k := keyOf(p)

	c.mu.RLock()
	lim, ok := c.limiters[k]
	c.mu.RUnlock()
	if ok {
		return lim
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if lim, ok := c.limiters[k]; ok {
		return lim
	}

	lim = &Limiter{policy: p, store: c.store}
	if p.Smooth && c.smoother != nil {
		lim.smooth = c.smoother(p)
	}
	c.limiters[k] = lim
	return lim
}

// Len returns the number of cached limiters.
func (c *LimiterCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.limiters)
}
