package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
	Failed  int64
}

func (c *Counters) add(ev domain.StatsEvent) {
	switch {
	case ev.Failed:
		c.Failed++
	case ev.Allowed:
		c.Allowed++
	default:
		c.Denied++
	}
}

// MemoryStatsStore keeps counters in memory. Nothing expires; meant for
// tests and development.
type MemoryStatsStore struct {
	mu       sync.Mutex
	total    Counters
	byPolicy map[string]Counters
	byRoute  map[string]Counters
	byKey    map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byPolicy: make(map[string]Counters),
		byRoute:  make(map[string]Counters),
		byKey:    make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	route := ev.Method + " " + ev.Path

	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev)
	bump(s.byPolicy, ev.Policy, ev)
	bump(s.byRoute, route, ev)
	if s.trackKeys {
		bump(s.byKey, string(ev.Key), ev)
	}
	return nil
}

func bump(m map[string]Counters, k string, ev domain.StatsEvent) {
	c := m[k]
	c.add(ev)
	m[k] = c
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByPolicy() map[string]Counters { return s.snapshot(s.byPolicy) }
func (s *MemoryStatsStore) ByRoute() map[string]Counters  { return s.snapshot(s.byRoute) }
func (s *MemoryStatsStore) ByKey() map[string]Counters    { return s.snapshot(s.byKey) }

func (s *MemoryStatsStore) snapshot(m map[string]Counters) map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
