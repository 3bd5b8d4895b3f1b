package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"admission-gateway/internal/config"
	"admission-gateway/middleware/ratelimit/application"
	"admission-gateway/middleware/ratelimit/domain"
	"admission-gateway/middleware/ratelimit/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

// app holds the components shared by serve, status and reset.
type app struct {
	log      *slog.Logger
	registry *application.Registry
	counters domain.CounterStore
	cache    *application.LimiterCache
	engine   application.Service
	admin    application.AdminService
	stats    domain.StatsStore
	metrics  *prometheus.Registry

	closers []func() error
}

// newApp wires stores and services from cfg. Background janitors stop when
// ctx is cancelled.
func newApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*app, error) {
	policies, err := cfg.Policies()
	if err != nil {
		return nil, err
	}
	registry, err := application.NewRegistry(policies...)
	if err != nil {
		return nil, err
	}

	a := &app{log: log, registry: registry, metrics: prometheus.NewRegistry()}
	a.metrics.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	redisCounters := cfg.RateLimit.Enabled && cfg.RateLimit.Store == "redis"
	var rdb redis.UniversalClient
	if redisCounters || (cfg.Stats.Enabled && cfg.Stats.Backend == "redis") {
		rdb, err = connectRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
	}

	// with rate limiting disabled the counters only back the admin API
	if redisCounters {
		a.counters = infra.NewRedisCounterStore(rdb, infra.WithCounterPrefix(cfg.Redis.Prefix))
	} else {
		mem := infra.NewMemoryCounterStore()
		mem.StartJanitor(ctx)
		a.counters = mem
	}

	a.cache = application.NewLimiterCache(a.counters,
		application.WithSmoother(infra.SmootherFactory(ctx, cfg.RateLimit.SmoothBurst)),
	)
	a.engine = application.Service{
		Cache:        a.cache,
		Registry:     registry,
		StoreTimeout: cfg.RateLimit.StoreTimeout,
	}
	a.admin = application.AdminService{
		Registry:     registry,
		Store:        a.counters,
		StoreTimeout: cfg.RateLimit.StoreTimeout,
	}

	var stats infra.StatsFanout
	if cfg.Metrics.Enabled {
		stats = append(stats, infra.NewPrometheusStats(a.metrics, a.cache.Len))
	}
	if cfg.Stats.Enabled {
		switch cfg.Stats.Backend {
		case "redis":
			stats = append(stats, infra.NewRedisStatsStore(rdb,
				infra.WithStatsPrefix(cfg.Stats.Prefix),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackKeys(cfg.Stats.TrackKeys),
			))
		default:
			stats = append(stats, infra.NewMemoryStatsStore(infra.WithTrackKeys(cfg.Stats.TrackKeys)))
		}
	}
	if len(stats) > 0 {
		a.stats = stats
	}
	return a, nil
}

func connectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Addr},
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}
