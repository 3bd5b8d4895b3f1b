package domain

import (
	"fmt"
	"strings"
	"time"
)

// Policy is an immutable, named set of rate limit parameters.
type Policy struct {
	Name      string        `yaml:"name"`
	Budget    int           `yaml:"budget"`
	Window    time.Duration `yaml:"window"`
	Block     time.Duration `yaml:"block,omitempty"`
	Namespace string        `yaml:"namespace"`
	// Smooth spreads the budget evenly across the window instead of letting
	// it be spent in one burst.
	Smooth bool `yaml:"smooth,omitempty"`
}

// BlockDuration is the cool-down applied once the budget is exceeded.
// A zero Block falls back to the window length.
func (p Policy) BlockDuration() time.Duration {
	if p.Block > 0 {
		return p.Block
	}
	return p.Window
}

// Validate checks the policy parameters.
func (p Policy) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("%w: name is required", ErrInvalidPolicy)
	case p.Budget <= 0:
		return fmt.Errorf("%w: %s: budget must be > 0", ErrInvalidPolicy, p.Name)
	case p.Window <= 0:
		return fmt.Errorf("%w: %s: window must be > 0", ErrInvalidPolicy, p.Name)
	case p.Window%time.Second != 0:
		return fmt.Errorf("%w: %s: window must be whole seconds", ErrInvalidPolicy, p.Name)
	case p.Block < 0:
		return fmt.Errorf("%w: %s: block must be >= 0", ErrInvalidPolicy, p.Name)
	case p.Block%time.Second != 0:
		return fmt.Errorf("%w: %s: block must be whole seconds", ErrInvalidPolicy, p.Name)
	case strings.TrimSpace(p.Namespace) == "":
		return fmt.Errorf("%w: %s: namespace is required", ErrInvalidPolicy, p.Name)
	case strings.Contains(p.Namespace, " "):
		return fmt.Errorf("%w: %s: namespace must not contain spaces", ErrInvalidPolicy, p.Name)
	case strings.Contains(p.Namespace, ":"):
		// ':' separates namespace and key in CounterKey
		return fmt.Errorf("%w: %s: namespace must not contain ':'", ErrInvalidPolicy, p.Name)
	}
	return nil
}

// PolicyConfig describes an unnamed policy built ad hoc by a caller.
type PolicyConfig struct {
	Budget    int
	Window    time.Duration
	Block     time.Duration
	Namespace string
	Smooth    bool
}

// Policy converts the config into the same shape as a registered policy.
func (c PolicyConfig) Policy() (Policy, error) {
	p := Policy{
		Name:      "custom:" + c.Namespace,
		Budget:    c.Budget,
		Window:    c.Window,
		Block:     c.Block,
		Namespace: c.Namespace,
		Smooth:    c.Smooth,
	}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}
