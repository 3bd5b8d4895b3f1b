package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"
)

const defaultRejectMessage = "Too many requests, please try again later."

// FailureMode decides what a Guard does when the counter store is down.
// The zero value is invalid: every deployment has to choose.
type FailureMode int

const (
	failureModeUnset FailureMode = iota
	// FailOpen lets the request through without rate limit headers.
	FailOpen
	// FailClosed answers 500.
	FailClosed
)

func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return FailOpen, nil
	case "closed":
		return FailClosed, nil
	}
	return failureModeUnset, fmt.Errorf("invalid failure mode %q (want open or closed)", s)
}

func (m FailureMode) String() string {
	switch m {
	case FailOpen:
		return "open"
	case FailClosed:
		return "closed"
	}
	return "unset"
}

// Admitter is the admission engine as seen by the HTTP layer.
type Admitter interface {
	Admit(ctx context.Context, p domain.Policy, key domain.Key) (domain.Decision, error)
}

type PolicyResolver interface {
	Resolve(name string) (domain.Policy, error)
}

type GuardOptions struct {
	Engine      Admitter
	Policies    PolicyResolver
	FailureMode FailureMode
	Stats       domain.StatsStore
	Logger      *slog.Logger

	// RejectStatus defaults to 429.
	RejectStatus  int
	RejectMessage string

	Now func() time.Time
}

// Guard binds admission decisions to HTTP responses.
type Guard struct {
	opts GuardOptions
	log  *slog.Logger
}

func NewGuard(opts GuardOptions) (*Guard, error) {
	if opts.Engine == nil {
		return nil, errors.New("ratelimit: guard needs an engine")
	}
	if opts.FailureMode != FailOpen && opts.FailureMode != FailClosed {
		return nil, errors.New("ratelimit: failure mode must be open or closed")
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.RejectMessage == "" {
		opts.RejectMessage = defaultRejectMessage
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Guard{opts: opts, log: log.With("component", "ratelimit")}, nil
}

func (g *Guard) FailureMode() FailureMode { return g.opts.FailureMode }

// Named returns the middleware for a registered policy. An unknown name is
// reported here, at setup time.
func (g *Guard) Named(name string, ko KeyOptions) (func(http.Handler) http.Handler, error) {
	if g.opts.Policies == nil {
		return nil, fmt.Errorf("%w: %q (no registry)", domain.ErrUnknownPolicy, name)
	}
	p, err := g.opts.Policies.Resolve(name)
	if err != nil {
		return nil, err
	}
	return g.Policy(p, ko), nil
}

// Custom returns the middleware for an ad-hoc policy.
func (g *Guard) Custom(cfg domain.PolicyConfig, ko KeyOptions) (func(http.Handler) http.Handler, error) {
	p, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	return g.Policy(p, ko), nil
}

// Policy returns the middleware for p.
func (g *Guard) Policy(p domain.Policy, ko KeyOptions) func(http.Handler) http.Handler {
	return g.middleware(func() (domain.Policy, error) { return p, nil }, ko)
}

// Lookup resolves name on every request, so a missing policy surfaces as a
// 500 configuration defect instead of failing setup.
func (g *Guard) Lookup(name string, ko KeyOptions) func(http.Handler) http.Handler {
	return g.middleware(func() (domain.Policy, error) {
		if g.opts.Policies == nil {
			return domain.Policy{}, fmt.Errorf("%w: %q (no registry)", domain.ErrUnknownPolicy, name)
		}
		return g.opts.Policies.Resolve(name)
	}, ko)
}

func (g *Guard) middleware(policy func() (domain.Policy, error), ko KeyOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := policy()
			if err != nil {
				g.configDefect(w, r, "", err)
				return
			}
			key, err := DeriveKey(r, ko)
			if err != nil {
				g.configDefect(w, r, p.Name, err)
				return
			}

			dec, err := g.opts.Engine.Admit(r.Context(), p, key)
			switch {
			case err == nil:
			case errors.Is(err, domain.ErrStoreUnavailable):
				g.record(r, p, key, false, true)
				if g.opts.FailureMode == FailOpen {
					g.log.Warn("counter store unavailable, failing open",
						"policy", p.Name, "path", r.URL.Path, "err", err)
					next.ServeHTTP(w, r)
					return
				}
				g.log.Error("counter store unavailable, failing closed",
					"policy", p.Name, "path", r.URL.Path, "err", err)
				writeError(w, http.StatusInternalServerError, "rate limiter unavailable")
				return
			case domain.IsConfigDefect(err):
				g.configDefect(w, r, p.Name, err)
				return
			default:
				g.log.Error("admission failed", "policy", p.Name, "err", err)
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
				return
			}

			g.record(r, p, key, dec.Allowed, false)
			g.setHeaders(w, dec)
			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt64(retryAfterSeconds(dec.RetryAfter)))
				writeError(w, g.opts.RejectStatus, g.opts.RejectMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (g *Guard) setHeaders(w http.ResponseWriter, dec domain.Decision) {
	h := w.Header()
	h.Set("X-RateLimit-Limit", formatInt(dec.Limit))
	h.Set("X-RateLimit-Remaining", formatInt(max(dec.Remaining, 0)))
	h.Set("X-RateLimit-Reset", formatInt64(resetUnix(g.opts.Now(), dec.ResetAfter)))
}

func (g *Guard) configDefect(w http.ResponseWriter, r *http.Request, policy string, err error) {
	g.log.Error("rate limit misconfigured",
		"defect", "config", "policy", policy, "path", r.URL.Path, "err", err)
	writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
}

// record is best-effort; a failing stats store never changes the response.
func (g *Guard) record(r *http.Request, p domain.Policy, key domain.Key, allowed, failed bool) {
	if g.opts.Stats == nil {
		return
	}
	err := g.opts.Stats.Record(r.Context(), domain.StatsEvent{
		Policy:  p.Name,
		Key:     key,
		Allowed: allowed,
		Failed:  failed,
		Method:  r.Method,
		Path:    r.URL.Path,
		At:      g.opts.Now(),
	})
	if err != nil {
		g.log.Debug("stats record failed", "policy", p.Name, "err", err)
	}
}
