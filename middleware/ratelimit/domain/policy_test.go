package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPolicy_Validate(t *testing.T) {
	ok := Policy{Name: "login", Budget: 5, Window: time.Minute, Block: 15 * time.Minute, Namespace: "login"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid policy, got %v", err)
	}

	cases := map[string]func(p *Policy){
		"no name":         func(p *Policy) { p.Name = " " },
		"zero budget":     func(p *Policy) { p.Budget = 0 },
		"zero window":     func(p *Policy) { p.Window = 0 },
		"fractional":      func(p *Policy) { p.Window = 1500 * time.Millisecond },
		"negative block":  func(p *Policy) { p.Block = -time.Second },
		"fractional blk":  func(p *Policy) { p.Block = 10 * time.Millisecond },
		"no namespace":    func(p *Policy) { p.Namespace = "" },
		"space namespace": func(p *Policy) { p.Namespace = "a b" },
		"colon namespace": func(p *Policy) { p.Namespace = "api:v2" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			p := ok
			mutate(&p)
			if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
				t.Fatalf("expected ErrInvalidPolicy, got %v", err)
			}
		})
	}
}

func TestPolicy_BlockDurationFallsBackToWindow(t *testing.T) {
	p := Policy{Budget: 3, Window: time.Hour}
	if p.BlockDuration() != time.Hour {
		t.Fatalf("expected window as block duration, got %s", p.BlockDuration())
	}
	p.Block = 5 * time.Minute
	if p.BlockDuration() != 5*time.Minute {
		t.Fatalf("expected explicit block, got %s", p.BlockDuration())
	}
}

func TestPolicyConfig_Policy(t *testing.T) {
	p, err := PolicyConfig{Budget: 10, Window: time.Minute, Namespace: "upload"}.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if p.Name != "custom:upload" || p.Namespace != "upload" {
		t.Fatalf("unexpected policy %+v", p)
	}

	if _, err := (PolicyConfig{Budget: 10, Window: time.Minute}).Policy(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected missing namespace to be rejected, got %v", err)
	}
	if _, err := (PolicyConfig{Budget: 10, Window: time.Minute, Namespace: "api:v2"}).Policy(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected namespace with ':' to be rejected, got %v", err)
	}
}

func TestCounterKey_NamespacesCannotCollide(t *testing.T) {
	// "api" + "v2:1.2.3.4" and "api:v2" + "1.2.3.4" would map to the same
	// record; the second namespace is not a valid policy.
	if CounterKey("api", "v2:1.2.3.4") != CounterKey("api:v2", "1.2.3.4") {
		t.Fatal("expected the raw keys to coincide")
	}
	p := Policy{Name: "apiv2", Budget: 1, Window: time.Second, Namespace: "api:v2"}
	if err := p.Validate(); !errors.Is(err, ErrInvalidPolicy) {
		t.Fatalf("expected ErrInvalidPolicy, got %v", err)
	}
}

func TestIsConfigDefect(t *testing.T) {
	if !IsConfigDefect(ErrEngineNotConfigured) {
		t.Fatal("expected a missing engine to be a config defect")
	}
	if !IsConfigDefect(ErrUnknownPolicy) || !IsConfigDefect(ErrInvalidKeyDerivation) {
		t.Fatal("expected config defects")
	}
	if IsConfigDefect(ErrStoreUnavailable) {
		t.Fatal("store errors are not config defects")
	}
}
