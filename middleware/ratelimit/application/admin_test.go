package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

func TestAdmin_ResetUnblocks(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, emailPolicy)
	admin := AdminService{Registry: svc.Registry, Store: store}
	ctx := context.Background()

	_, _ = svc.AdmitNamed(ctx, "email", "user@example.com")
	store.advance(time.Second)
	if dec, _ := svc.AdmitNamed(ctx, "email", "user@example.com"); dec.Allowed {
		t.Fatalf("expected rejection before reset")
	}

	rec, err := admin.Status(ctx, "user@example.com", "email")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if rec == nil || rec.Points != 2 || rec.BlockedUntil == nil {
		t.Fatalf("expected a blocked record with 2 points, got %+v", rec)
	}

	if err := admin.Reset(ctx, "user@example.com", "email"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if dec, _ := svc.AdmitNamed(ctx, "email", "user@example.com"); !dec.Allowed {
		t.Fatalf("expected allowed after reset")
	}
}

func TestAdmin_StatusDoesNotConsume(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, loginPolicy)
	admin := AdminService{Registry: svc.Registry, Store: store}
	ctx := context.Background()

	_, _ = svc.AdmitNamed(ctx, "login", "k")
	for i := 0; i < 3; i++ {
		rec, err := admin.Status(ctx, "k", "login")
		if err != nil || rec == nil || rec.Points != 1 {
			t.Fatalf("expected 1 point, got %+v err=%v", rec, err)
		}
	}
}

func TestAdmin_ResetIsIdempotent(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, loginPolicy)
	admin := AdminService{Registry: svc.Registry, Store: store}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := admin.Reset(ctx, "never-seen", "login"); err != nil {
			t.Fatalf("reset %d: %v", i, err)
		}
	}
	rec, err := admin.Status(ctx, "never-seen", "login")
	if err != nil || rec != nil {
		t.Fatalf("expected no record, got %+v err=%v", rec, err)
	}

	dec, err := svc.AdmitNamed(ctx, "login", "never-seen")
	if err != nil || !dec.Allowed || dec.Remaining != 4 {
		t.Fatalf("expected a brand-new key, got %+v err=%v", dec, err)
	}
}

func TestAdmin_Errors(t *testing.T) {
	store := newFakeStore()
	reg, _ := NewRegistry(loginPolicy)
	admin := AdminService{Registry: reg, Store: store}
	ctx := context.Background()

	if _, err := admin.Status(ctx, "k", "missing"); !errors.Is(err, domain.ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
	if err := admin.Reset(ctx, " ", "login"); !errors.Is(err, domain.ErrInvalidKeyDerivation) {
		t.Fatalf("expected ErrInvalidKeyDerivation for an empty key, got %v", err)
	}

	store.err = errDown
	if err := admin.Reset(ctx, "k", "login"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
