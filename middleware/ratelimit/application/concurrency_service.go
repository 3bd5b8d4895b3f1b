package application

import (
	"context"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

// ConcurrencyService acquires in-flight slots, without knowing about HTTP.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tries to take a slot.
//   - AcquireTimeout <= 0 waits until ctx ends.
//   - AcquireTimeout > 0 waits at most that long.
//
// When ok is false no slot was taken.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout <= 0 {
		return s.Pool.Acquire(ctx)
	}

	acqCtx, cancel := context.WithTimeout(ctx, s.AcquireTimeout)
	defer cancel()
	return s.Pool.Acquire(acqCtx)
}

// InFlight reports the slots currently held.
func (s ConcurrencyService) InFlight() int {
	if s.Pool == nil {
		return 0
	}
	return s.Pool.InUse()
}
