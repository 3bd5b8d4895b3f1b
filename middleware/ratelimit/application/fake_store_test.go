package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// fakeStore simulates the shared counter store with a manual clock.
type fakeStore struct {
	mu      sync.Mutex
	now     time.Time
	points  map[string]int64
	windows map[string]time.Time
	blocks  map[string]time.Time
	err     error
	deletes int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		now:     time.Unix(1_700_000_000, 0),
		points:  make(map[string]int64),
		windows: make(map[string]time.Time),
		blocks:  make(map[string]time.Time),
	}
}

func (s *fakeStore) advance(d time.Duration) {
	s.mu.Lock()
	s.now = s.now.Add(d)
	s.mu.Unlock()
}

func (s *fakeStore) Increment(_ context.Context, key string, window time.Duration) (domain.Counter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return domain.Counter{}, s.err
	}
	if end, ok := s.windows[key]; !ok || !s.now.Before(end) {
		s.points[key] = 0
		s.windows[key] = s.now.Add(window)
	}
	s.points[key]++
	c := domain.Counter{Points: s.points[key], WindowTTL: s.windows[key].Sub(s.now)}
	if until, ok := s.blocks[key]; ok && s.now.Before(until) {
		c.BlockTTL = until.Sub(s.now)
	}
	return c, nil
}

func (s *fakeStore) Block(_ context.Context, key string, d time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, 0, s.err
	}
	if until, ok := s.blocks[key]; ok && s.now.Before(until) {
		return false, until.Sub(s.now), nil
	}
	s.blocks[key] = s.now.Add(d)
	return true, d, nil
}

func (s *fakeStore) Get(_ context.Context, key string) (*domain.CounterRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	end, hasWindow := s.windows[key]
	hasWindow = hasWindow && s.now.Before(end)
	until, hasBlock := s.blocks[key]
	hasBlock = hasBlock && s.now.Before(until)
	if !hasWindow && !hasBlock {
		return nil, nil
	}
	rec := &domain.CounterRecord{Key: key}
	if hasWindow {
		rec.Points = s.points[key]
		rec.WindowExpiresAt = end
	}
	if hasBlock {
		rec.BlockedUntil = &until
	}
	return rec, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return false, s.err
	}
	s.deletes++
	_, a := s.windows[key]
	_, b := s.blocks[key]
	delete(s.points, key)
	delete(s.windows, key)
	delete(s.blocks, key)
	return a || b, nil
}

var errDown = errors.New("connection refused")

type fakeLimiter struct {
	allow bool
}

func (f fakeLimiter) Allow() bool { return f.allow }

type fakeSmoother struct {
	lim domain.Limiter
}

func (s fakeSmoother) Get(domain.Key) domain.Limiter { return s.lim }
