package infra

import (
	"context"
	"testing"
	"time"
)

func TestChanPool_AcquireRelease(t *testing.T) {
	p := NewChanPool(2)
	ctx := context.Background()

	r1, ok1 := p.Acquire(ctx)
	r2, ok2 := p.Acquire(ctx)
	if !ok1 || !ok2 || p.InUse() != 2 {
		t.Fatalf("expected two slots taken, in use %d", p.InUse())
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, ok := p.Acquire(short); ok {
		t.Fatalf("expected the full pool to time out")
	}

	r1()
	r1() // double release must not free a second slot
	if p.InUse() != 1 {
		t.Fatalf("expected 1 slot in use, got %d", p.InUse())
	}
	r2()
	if p.InUse() != 0 || p.Cap() != 2 {
		t.Fatalf("expected empty pool of 2, got in use %d cap %d", p.InUse(), p.Cap())
	}
}

func TestChanPool_CancelledContextTakesNoSlot(t *testing.T) {
	p := NewChanPool(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, ok := p.Acquire(ctx); ok || p.InUse() != 0 {
		t.Fatalf("expected no slot for a cancelled context")
	}
}
