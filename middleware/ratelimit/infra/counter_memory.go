package infra

import (
	"context"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// MemoryCounterStore is an in-process counter store with the same semantics
// as RedisCounterStore. State is not shared across replicas; use it for
// tests, development and single-instance deployments.
type MemoryCounterStore struct {
	mu           sync.Mutex
	windows      map[string]*memWindow
	blocks       map[string]time.Time
	now          func() time.Time
	cleanupEvery time.Duration
}

type memWindow struct {
	points  int64
	expires time.Time
}

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type MemoryCounterOption func(*MemoryCounterStore)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithCounterCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		windows:      make(map[string]*memWindow),
		blocks:       make(map[string]time.Time),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryCounterStore) Increment(_ context.Context, key string, window time.Duration) (domain.Counter, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.expires) {
		w = &memWindow{expires: now.Add(window)}
		s.windows[key] = w
	}
	w.points++

	c := domain.Counter{Points: w.points, WindowTTL: w.expires.Sub(now)}
	if until, ok := s.blocks[key]; ok && now.Before(until) {
		c.BlockTTL = until.Sub(now)
	}
	return c, nil
}

func (s *MemoryCounterStore) Block(_ context.Context, key string, d time.Duration) (bool, time.Duration, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if until, ok := s.blocks[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}
	s.blocks[key] = now.Add(d)
	return true, d, nil
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (*domain.CounterRecord, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &domain.CounterRecord{Key: key}
	found := false
	if w, ok := s.windows[key]; ok && now.Before(w.expires) {
		rec.Points = w.points
		rec.WindowExpiresAt = w.expires
		found = true
	}
	if until, ok := s.blocks[key]; ok && now.Before(until) {
		rec.BlockedUntil = &until
		found = true
	}
	if !found {
		return nil, nil
	}
	return rec, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, hadWindow := s.windows[key]
	_, hadBlock := s.blocks[key]
	delete(s.windows, key)
	delete(s.blocks, key)
	return hadWindow || hadBlock, nil
}

// Len returns the number of windows and blocks held, expired or not.
func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows) + len(s.blocks)
}

// Cleanup drops expired windows and blocks.
func (s *MemoryCounterStore) Cleanup() {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, w := range s.windows {
		if !now.Before(w.expires) {
			delete(s.windows, k)
		}
	}
	for k, until := range s.blocks {
		if !now.Before(until) {
			delete(s.blocks, k)
		}
	}
}

// StartJanitor runs Cleanup periodically until ctx is cancelled. The
// returned channel is closed once the janitor goroutine has exited.
func (s *MemoryCounterStore) StartJanitor(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	if s.cleanupEvery <= 0 {
		close(done)
		return done
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer close(done)
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
	return done
}
