package main

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// newRouter mounts metrics, the admin API and the guarded upstream.
func newRouter(a *app, cfg *config.Config, upstream http.Handler) (http.Handler, error) {
	r := chi.NewRouter()
	if cfg.Concurrency.Max > 0 {
		pool := infra.NewChanPool(cfg.Concurrency.Max)
		if cfg.Metrics.Enabled {
			infra.RegisterInFlight(a.metrics, pool)
		}
		r.Use(ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{
			Pool:           pool,
			RejectStatus:   http.StatusServiceUnavailable,
			AcquireTimeout: cfg.Concurrency.AcquireTimeout,
		}))
	}

	if cfg.Metrics.Enabled {
		r.Handle(cfg.Metrics.Path, promhttp.HandlerFor(a.metrics, promhttp.HandlerOpts{}))
	}
	if cfg.Admin.Enabled {
		r.With(bearerAuth(cfg.Admin.Token)).
			Mount("/admin", ratelimit.AdminHandler(a.admin, a.registry, a.log))
	}

	if !cfg.RateLimit.Enabled {
		r.Handle("/*", upstream)
		return r, nil
	}

	mode, err := ratelimit.ParseFailureMode(cfg.RateLimit.FailureMode)
	if err != nil {
		return nil, err
	}
	guard, err := ratelimit.NewGuard(ratelimit.GuardOptions{
		Engine:      a.engine,
		Policies:    a.registry,
		FailureMode: mode,
		Stats:       a.stats,
		Logger:      a.log,
	})
	if err != nil {
		return nil, err
	}

	base := ratelimit.KeyOptions{
		KeyHeader:          cfg.RateLimit.KeyHeader,
		TrustXForwardedFor: cfg.RateLimit.TrustXForwardedFor,
	}
	if cfg.RateLimit.UserIDHeader != "" {
		base.Identity = ratelimit.HeaderIdentity(cfg.RateLimit.UserIDHeader)
	}

	guarded := r.With()
	if cfg.RateLimit.GlobalPolicy != "" {
		global, err := guard.Named(cfg.RateLimit.GlobalPolicy, base)
		if err != nil {
			return nil, err
		}
		guarded = r.With(global)
	}

	for _, rt := range cfg.RateLimit.Routes {
		ko := base
		if rt.KeyHeader != "" {
			ko.KeyHeader = rt.KeyHeader
		}
		ko.IncludeUserID = rt.IncludeUserID

		mw, err := guard.Named(rt.Policy, ko)
		if err != nil {
			return nil, err
		}
		if rt.Method == "" {
			guarded.With(mw).Handle(rt.Path, upstream)
		} else {
			guarded.With(mw).Method(rt.Method, rt.Path, upstream)
		}
	}
	guarded.Handle("/*", upstream)
	return r, nil
}

// bearerAuth guards the admin API with a static token.
func bearerAuth(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
