package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"
)

// Embeds the guard directly in a web server (no proxy), with the in-process
// counter store and the default policy set.
func main() {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(log); err != nil {
		log.Error("example server failed", "err", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	registry, err := application.NewRegistry(config.DefaultPolicies()...)
	if err != nil {
		return err
	}
	store := infra.NewMemoryCounterStore()
	store.StartJanitor(ctx)

	stats := infra.NewMemoryStatsStore()
	guard, err := ratelimit.NewGuard(ratelimit.GuardOptions{
		Engine: application.Service{
			Cache:    application.NewLimiterCache(store, application.WithSmoother(infra.SmootherFactory(ctx, 1))),
			Registry: registry,
		},
		Policies:    registry,
		FailureMode: ratelimit.FailOpen,
		Stats:       stats,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux := http.NewServeMux()
	ipKey := ratelimit.KeyOptions{TrustXForwardedFor: true}

	login, err := guard.Named("login", ipKey)
	if err != nil {
		return err
	}
	mux.Handle("POST /login", login(ok))

	// one email per user per window, users behind one NAT stay independent
	email, err := guard.Named("email", ratelimit.KeyOptions{
		TrustXForwardedFor: true,
		IncludeUserID:      true,
		Identity:           ratelimit.HeaderIdentity("X-User-Id"),
	})
	if err != nil {
		return err
	}
	mux.Handle("POST /email", email(ok))

	upload, err := guard.Custom(domain.PolicyConfig{
		Budget:    5,
		Window:    time.Minute,
		Namespace: "example-upload",
		Smooth:    true,
	}, ratelimit.KeyOptions{KeyHeader: "X-Api-Key", TrustXForwardedFor: true})
	if err != nil {
		return err
	}
	mux.Handle("POST /upload", upload(ok))

	// unauthenticated: local demo only
	mux.Handle("/ratelimit/", ratelimit.AdminHandler(
		application.AdminService{Registry: registry, Store: store}, registry, log))
	mux.Handle("/", ok)

	global, err := guard.Named("middleware", ipKey)
	if err != nil {
		return err
	}

	h := http.Handler(mux)
	h = global(h)
	h = ratelimit.ConcurrencyMiddleware(ratelimit.ConcurrencyOptions{Max: 50})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("example server listening", "addr", addr, "policies", registry.Names())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("decisions", "totals", stats.Total())
	return nil
}
