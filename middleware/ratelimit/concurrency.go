package ratelimit

import (
	"net/http"
	"time"

	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

type ConcurrencyOptions struct {
	// Max <= 0 disables the limit unless Pool is set.
	Max int
	// Pool overrides the channel pool built from Max, e.g. to share it
	// with a metrics gauge.
	Pool           domain.SlotPool
	RejectStatus   int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware caps the number of in-flight requests and answers
// RejectStatus (503 by default) when no slot frees up in time.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	pool := opts.Pool
	if pool == nil {
		if opts.Max <= 0 {
			return func(next http.Handler) http.Handler { return next }
		}
		pool = infra.NewChanPool(opts.Max)
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pool:           pool,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				w.Header().Set("Retry-After", "1")
				writeError(w, opts.RejectStatus, "server busy, retry shortly")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
