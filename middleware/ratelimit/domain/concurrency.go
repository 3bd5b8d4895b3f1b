package domain

import "context"

// SlotPool caps the number of requests in flight.
//
// Acquire blocks until a slot is free or ctx ends. The returned release must
// be called exactly once. InUse reports the slots currently held.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
	InUse() int
}
