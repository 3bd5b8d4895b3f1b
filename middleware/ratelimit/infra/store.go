package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"golang.org/x/time/rate"
)

// Store keeps one token bucket (x/time/rate) per key, with periodic cleanup
// of idle keys. It backs the optional smoothing of a policy and is local to
// the process.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewSmoother spreads p's budget evenly over its window: the bucket refills
// at budget/window tokens per second and holds at most burst tokens.
func NewSmoother(p domain.Policy, burst int, opts ...StoreOption) *Store {
	if burst <= 0 {
		burst = 1
	}
	if burst > p.Budget {
		burst = p.Budget
	}
	rps := float64(p.Budget) / p.Window.Seconds()
	// idle buckets are full again after one window
	opts = append([]StoreOption{WithIdleTTL(p.Window)}, opts...)
	return NewStore(rps, burst, opts...)
}

// SmootherFactory builds smoothers on demand and runs their janitors until
// ctx is cancelled.
func SmootherFactory(ctx context.Context, burst int, opts ...StoreOption) func(domain.Policy) domain.LimiterStore {
	return func(p domain.Policy) domain.LimiterStore {
		s := NewSmoother(p, burst, opts...)
		s.StartJanitor(ctx)
		return s
	}
}

func (s *Store) RPS() float64 { return float64(s.rps) }
func (s *Store) Burst() int   { return s.burst }

// Get implements domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.GetString(string(key))
}

func (s *Store) GetString(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

// Len returns the number of tracked keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor removes idle keys periodically until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
