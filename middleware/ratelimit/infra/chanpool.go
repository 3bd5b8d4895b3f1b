package infra

import (
	"context"
	"sync"

	"admission-gateway/middleware/ratelimit/domain"
)

// ChanPool is a buffered-channel semaphore.
type ChanPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*ChanPool)(nil)

// NewChanPool returns a pool with capacity max.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	// a cancelled ctx never takes a slot, even when one is free
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) InUse() int { return len(p.sem) }

func (p *ChanPool) Cap() int { return cap(p.sem) }
