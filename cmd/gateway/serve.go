package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway",
	Long: `Start the gateway in front of server.upstream_url.

Every request passes the global policy (rate_limit.global_policy) and, when
its route matches rate_limit.routes, the route policy as well.

Examples:
  # Start with ./admission-gateway.yaml
  gateway serve

  # Fail closed when Redis is down
  GATEWAY_RATE_LIMIT_FAILURE_MODE=closed gateway serve`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.Server.LogLevel, cfg.Server.LogFormat)

	if cfg.Server.UpstreamURL == "" {
		return errors.New("server.upstream_url is required")
	}
	target, err := url.Parse(cfg.Server.UpstreamURL)
	if err != nil {
		return fmt.Errorf("invalid server.upstream_url: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		log.Error("proxy error", "path", r.URL.Path, "err", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	h, err := newRouter(a, cfg, proxy)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("gateway listening",
		"addr", cfg.Server.ListenAddr,
		"upstream", target.String(),
		"store", cfg.RateLimit.Store,
		"failure_mode", cfg.RateLimit.FailureMode,
		"global_policy", cfg.RateLimit.GlobalPolicy,
		"routes", len(cfg.RateLimit.Routes),
		"policies", a.registry.Names(),
	)
	log.Info("concurrency", "max", cfg.Concurrency.Max, "acquire_timeout", cfg.Concurrency.AcquireTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

