package application

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// AdminService exposes out-of-band inspection and reset of counter state.
// Authorization is the caller's job.
type AdminService struct {
	Registry     *Registry
	Store        domain.CounterStore
	StoreTimeout time.Duration
}

// Status returns the counter record of key under the named policy, or nil
// when there is none. It never mutates consumption.
func (s AdminService) Status(ctx context.Context, key domain.Key, policyName string) (*domain.CounterRecord, error) {
	ck, err := s.counterKey(key, policyName)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	rec, err := s.Store.Get(ctx, ck)
	if err != nil {
		return nil, fmt.Errorf("%w: get %q: %w", domain.ErrStoreUnavailable, ck, err)
	}
	return rec, nil
}

// Reset deletes the counter and any active block of key under the named
// policy. Resetting a key without state is not an error.
func (s AdminService) Reset(ctx context.Context, key domain.Key, policyName string) error {
	ck, err := s.counterKey(key, policyName)
	if err != nil {
		return err
	}
	ctx, cancel := s.context(ctx)
	defer cancel()

	if _, err := s.Store.Delete(ctx, ck); err != nil {
		return fmt.Errorf("%w: delete %q: %w", domain.ErrStoreUnavailable, ck, err)
	}
	return nil
}

func (s AdminService) counterKey(key domain.Key, policyName string) (string, error) {
	if strings.TrimSpace(string(key)) == "" {
		return "", fmt.Errorf("%w: empty key", domain.ErrInvalidKeyDerivation)
	}
	p, err := s.Registry.Resolve(policyName)
	if err != nil {
		return "", err
	}
	return domain.CounterKey(p.Namespace, key), nil
}

func (s AdminService) context(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.StoreTimeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}
