package application

import (
	"fmt"
	"sort"
	"strings"

	"admission-gateway/middleware/ratelimit/domain"
)

// Registry is the read-only table of named policies. It is built once at
// startup and safe for concurrent reads.
type Registry struct {
	policies map[string]domain.Policy
	names    []string
}

// NewRegistry validates and registers the given policies. A policy without a
// namespace uses its name.
func NewRegistry(policies ...domain.Policy) (*Registry, error) {
	r := &Registry{policies: make(map[string]domain.Policy, len(policies))}
	for _, p := range policies {
		p.Name = strings.TrimSpace(p.Name)
		if strings.TrimSpace(p.Namespace) == "" {
			p.Namespace = p.Name
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.policies[p.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate policy %q", domain.ErrInvalidPolicy, p.Name)
		}
		r.policies[p.Name] = p
		r.names = append(r.names, p.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

// Resolve returns the policy registered under name.
func (r *Registry) Resolve(name string) (domain.Policy, error) {
	if r == nil {
		return domain.Policy{}, fmt.Errorf("%w: %q (no registry)", domain.ErrUnknownPolicy, name)
	}
	p, ok := r.policies[name]
	if !ok {
		return domain.Policy{}, fmt.Errorf("%w: %q", domain.ErrUnknownPolicy, name)
	}
	return p, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.names))
	copy(out, r.names)
	return out
}

// Policies returns the registered policies sorted by name.
func (r *Registry) Policies() []domain.Policy {
	out := make([]domain.Policy, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.policies[n])
	}
	return out
}
