package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

var (
	loginPolicy = domain.Policy{Name: "login", Budget: 5, Window: 60 * time.Second, Namespace: "login"}
	emailPolicy = domain.Policy{Name: "email", Budget: 1, Window: 600 * time.Second, Namespace: "email"}
)

func newTestService(t *testing.T, store domain.CounterStore, policies ...domain.Policy) Service {
	t.Helper()
	reg, err := NewRegistry(policies...)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return Service{Cache: NewLimiterCache(store), Registry: reg}
}

func TestService_Admit_RejectsWhenNotConfigured(t *testing.T) {
	dec, err := Service{}.Admit(context.Background(), loginPolicy, "k")
	if !errors.Is(err, domain.ErrEngineNotConfigured) || dec.Allowed {
		t.Fatalf("expected ErrEngineNotConfigured, got %+v err=%v", dec, err)
	}
	if !domain.IsConfigDefect(err) {
		t.Fatalf("expected a config defect, got %v", err)
	}

	_, err = Service{}.Consume(context.Background(), nil, "k")
	if !errors.Is(err, domain.ErrEngineNotConfigured) {
		t.Fatalf("expected ErrEngineNotConfigured for a nil limiter, got %v", err)
	}
}

func TestService_NamespacesStayIsolated(t *testing.T) {
	store := newFakeStore()
	api := domain.Policy{Name: "api", Budget: 1, Window: time.Minute, Namespace: "api"}
	apiV2 := domain.Policy{Name: "apiv2", Budget: 1, Window: time.Minute, Namespace: "apiv2"}
	svc := newTestService(t, store, api, apiV2)
	ctx := context.Background()

	if dec, err := svc.AdmitNamed(ctx, "api", "v2:1.2.3.4"); err != nil || !dec.Allowed {
		t.Fatalf("expected first api request allowed, got %+v err=%v", dec, err)
	}
	if dec, err := svc.AdmitNamed(ctx, "apiv2", "1.2.3.4"); err != nil || !dec.Allowed {
		t.Fatalf("expected first apiv2 request allowed, got %+v err=%v", dec, err)
	}

	if _, err := NewRegistry(domain.Policy{Name: "apiv2", Budget: 1, Window: time.Minute, Namespace: "api:v2"}); !errors.Is(err, domain.ErrInvalidPolicy) {
		t.Fatalf("expected a namespace with ':' to be refused, got %v", err)
	}
}

func TestService_LoginScenario(t *testing.T) {
	svc := newTestService(t, newFakeStore(), loginPolicy)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		dec, err := svc.AdmitNamed(ctx, "login", "10.0.0.1")
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if !dec.Allowed {
			t.Fatalf("attempt %d: expected allowed", i)
		}
		if dec.Remaining != 5-i {
			t.Fatalf("attempt %d: expected remaining %d, got %d", i, 5-i, dec.Remaining)
		}
		if dec.Limit != 5 {
			t.Fatalf("expected limit 5, got %d", dec.Limit)
		}
	}

	dec, err := svc.AdmitNamed(ctx, "login", "10.0.0.1")
	if err != nil {
		t.Fatalf("6th attempt: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected 6th attempt to be rejected")
	}
	if dec.Remaining != 0 {
		t.Fatalf("expected remaining 0, got %d", dec.Remaining)
	}
	if dec.RetryAfter <= 0 {
		t.Fatalf("expected positive retry-after, got %s", dec.RetryAfter)
	}
}

func TestService_EmailScenario(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, emailPolicy)
	ctx := context.Background()

	if dec, err := svc.AdmitNamed(ctx, "email", "user@example.com"); err != nil || !dec.Allowed {
		t.Fatalf("expected first email allowed, got %+v err=%v", dec, err)
	}
	store.advance(time.Second)
	dec, err := svc.AdmitNamed(ctx, "email", "user@example.com")
	if err != nil || dec.Allowed {
		t.Fatalf("expected second email rejected, got %+v err=%v", dec, err)
	}
	if dec.RetryAfter != 600*time.Second {
		t.Fatalf("expected retry-after to default to the window, got %s", dec.RetryAfter)
	}
}

func TestService_UnknownPolicy(t *testing.T) {
	svc := newTestService(t, newFakeStore(), loginPolicy)
	_, err := svc.AdmitNamed(context.Background(), "nope", "k")
	if !errors.Is(err, domain.ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}

func TestService_WindowReset(t *testing.T) {
	store := newFakeStore()
	p := domain.Policy{Name: "api", Budget: 3, Window: 10 * time.Second, Block: time.Second, Namespace: "api"}
	svc := newTestService(t, store, p)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if dec, _ := svc.Admit(ctx, p, "k"); !dec.Allowed {
			t.Fatalf("warmup %d rejected", i)
		}
	}
	store.advance(10 * time.Second)

	dec, err := svc.Admit(ctx, p, "k")
	if err != nil || !dec.Allowed {
		t.Fatalf("expected allowed after window, got %+v err=%v", dec, err)
	}
	if dec.Remaining != 2 {
		t.Fatalf("expected remaining budget-1=2, got %d", dec.Remaining)
	}
}

func TestService_BlockOutlivesWindow(t *testing.T) {
	store := newFakeStore()
	p := domain.Policy{Name: "strict", Budget: 1, Window: 2 * time.Second, Block: 30 * time.Second, Namespace: "strict"}
	svc := newTestService(t, store, p)
	ctx := context.Background()

	_, _ = svc.Admit(ctx, p, "k")
	dec, _ := svc.Admit(ctx, p, "k")
	if dec.Allowed || dec.RetryAfter != 30*time.Second {
		t.Fatalf("expected block of 30s, got %+v", dec)
	}

	// the window has expired but the block has not
	store.advance(5 * time.Second)
	dec, _ = svc.Admit(ctx, p, "k")
	if dec.Allowed {
		t.Fatalf("expected rejection while blocked")
	}
	if dec.RetryAfter != 25*time.Second {
		t.Fatalf("expected retry-after 25s, got %s", dec.RetryAfter)
	}

	store.advance(25 * time.Second)
	dec, _ = svc.Admit(ctx, p, "k")
	if !dec.Allowed {
		t.Fatalf("expected a fresh evaluation after the block, got %+v", dec)
	}
}

func TestService_KeyIsolation(t *testing.T) {
	svc := newTestService(t, newFakeStore(), emailPolicy)
	ctx := context.Background()

	if dec, _ := svc.Admit(ctx, emailPolicy, "a@example.com"); !dec.Allowed {
		t.Fatalf("expected a allowed")
	}
	if dec, _ := svc.Admit(ctx, emailPolicy, "b@example.com"); !dec.Allowed {
		t.Fatalf("expected b allowed independently of a")
	}
}

func TestService_PolicyNamespacesIsolated(t *testing.T) {
	store := newFakeStore()
	other := domain.Policy{Name: "register", Budget: 1, Window: 600 * time.Second, Namespace: "register"}
	svc := newTestService(t, store, emailPolicy, other)
	ctx := context.Background()

	_, _ = svc.Admit(ctx, emailPolicy, "10.0.0.1")
	if dec, _ := svc.Admit(ctx, other, "10.0.0.1"); !dec.Allowed {
		t.Fatalf("expected a different namespace to have its own budget")
	}
}

func TestService_StoreUnavailable(t *testing.T) {
	store := newFakeStore()
	store.err = errDown
	svc := newTestService(t, store, loginPolicy)

	_, err := svc.Admit(context.Background(), loginPolicy, "k")
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if !errors.Is(err, errDown) {
		t.Fatalf("expected the store error to be wrapped, got %v", err)
	}
}

func TestService_CancelledRequestStillDebits(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(t, store, emailPolicy)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Admit(ctx, emailPolicy, "k"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rec, _ := store.Get(context.Background(), domain.CounterKey("email", "k"))
	if rec == nil || rec.Points != 1 {
		t.Fatalf("expected the debit to be kept, got %+v", rec)
	}
}

func TestService_SmoothingRejectsBurst(t *testing.T) {
	store := newFakeStore()
	p := domain.Policy{Name: "api", Budget: 10, Window: 10 * time.Second, Namespace: "api", Smooth: true}
	svc := Service{Cache: NewLimiterCache(store, WithSmoother(func(domain.Policy) domain.LimiterStore {
		return fakeSmoother{lim: fakeLimiter{allow: false}}
	}))}

	dec, err := svc.Admit(context.Background(), p, "k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dec.Allowed {
		t.Fatalf("expected smoothing to reject")
	}
	if dec.RetryAfter != time.Second {
		t.Fatalf("expected retry-after of one emission interval, got %s", dec.RetryAfter)
	}
	if dec.ResetAfter != dec.RetryAfter {
		t.Fatalf("expected reset-after to match retry-after, got %s", dec.ResetAfter)
	}
	if rec, _ := store.Get(context.Background(), domain.CounterKey("api", "k")); rec != nil {
		t.Fatalf("expected no store debit on a smoothed rejection, got %+v", rec)
	}
}

func TestService_BudgetInvariantUnderConcurrency(t *testing.T) {
	store := newFakeStore()
	p := domain.Policy{Name: "api", Budget: 20, Window: time.Minute, Namespace: "api"}
	svc := newTestService(t, store, p)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 500; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := svc.Admit(context.Background(), p, "shared")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if dec.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != int64(p.Budget) {
		t.Fatalf("expected exactly %d allowed, got %d", p.Budget, got)
	}
}
