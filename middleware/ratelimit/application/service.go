package application

import (
	"context"
	"fmt"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

const defaultStoreTimeout = 2 * time.Second

// Service is the admission engine: it debits one point per call and turns
// the store's answer into a decision.
//
// It knows nothing about HTTP (headers/status).
type Service struct {
	Cache    *LimiterCache
	Registry *Registry
	// StoreTimeout bounds each store round trip. Defaults to 2s.
	StoreTimeout time.Duration
}

// Admit consumes one point of p for key.
func (s Service) Admit(ctx context.Context, p domain.Policy, key domain.Key) (domain.Decision, error) {
	if s.Cache == nil {
		return domain.Decision{}, fmt.Errorf("%w: no limiter cache", domain.ErrEngineNotConfigured)
	}
	return s.Consume(ctx, s.Cache.GetOrCreate(p), key)
}

// AdmitNamed resolves name through the registry and consumes one point.
func (s Service) AdmitNamed(ctx context.Context, name string, key domain.Key) (domain.Decision, error) {
	p, err := s.Registry.Resolve(name)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.Admit(ctx, p, key)
}

// Consume runs the windowed counter with block escalation for key.
//
// Store errors are wrapped with domain.ErrStoreUnavailable; the caller picks
// fail-open or fail-closed. A debit is not rolled back when ctx is cancelled.
func (s Service) Consume(ctx context.Context, lim *Limiter, key domain.Key) (domain.Decision, error) {
	if lim == nil {
		return domain.Decision{}, fmt.Errorf("%w: nil limiter", domain.ErrEngineNotConfigured)
	}
	p := lim.policy
	ck := domain.CounterKey(p.Namespace, key)

	if lim.smooth != nil {
		if l := lim.smooth.Get(domain.Key(ck)); l != nil && !l.Allow() {
			retry := p.Window / time.Duration(p.Budget)
			return domain.Decision{
				Allowed:    false,
				Limit:      p.Budget,
				ResetAfter: retry,
				RetryAfter: retry,
			}, nil
		}
	}

	ctx, cancel := s.storeContext(ctx)
	defer cancel()

	c, err := lim.store.Increment(ctx, ck, p.Window)
	if err != nil {
		return domain.Decision{Limit: p.Budget}, fmt.Errorf("%w: increment %q: %w", domain.ErrStoreUnavailable, ck, err)
	}

	if c.BlockTTL > 0 {
		return rejected(p, c.BlockTTL, c.WindowTTL), nil
	}

	if c.Points <= int64(p.Budget) {
		return domain.Decision{
			Allowed:    true,
			Limit:      p.Budget,
			Remaining:  p.Budget - int(c.Points),
			ResetAfter: c.WindowTTL,
		}, nil
	}

	block := p.BlockDuration()
	created, ttl, err := lim.store.Block(ctx, ck, block)
	if err != nil {
		return domain.Decision{Limit: p.Budget}, fmt.Errorf("%w: block %q: %w", domain.ErrStoreUnavailable, ck, err)
	}
	if !created && ttl > 0 {
		block = ttl
	}
	return rejected(p, block, c.WindowTTL), nil
}

func (s Service) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(context.WithoutCancel(ctx), timeout)
}

func rejected(p domain.Policy, retry, reset time.Duration) domain.Decision {
	if reset < retry {
		reset = retry
	}
	return domain.Decision{
		Allowed:    false,
		Limit:      p.Budget,
		Remaining:  0,
		ResetAfter: reset,
		RetryAfter: retry,
	}
}
