package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStatsStore aggregates decision counters in Redis hashes.
type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl applies to the time bucket and per-key hashes only; the totals
	// are cumulative and never expire.
	ttl time.Duration

	bucket string // "minute" (default), "hour" or "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var bucketLayouts = map[string]string{
	"minute": "200601021504",
	"hour":   "2006010215",
}

func statsField(ev domain.StatsEvent) string {
	switch {
	case ev.Failed:
		return "failed"
	case ev.Allowed:
		return "allowed"
	default:
		return "denied"
	}
}

func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := statsField(ev)

	pipe := s.rdb.Pipeline()
	pipe.HIncrBy(ctx, s.prefix+":total", field, 1)

	if ev.Policy != "" {
		pipe.HIncrBy(ctx, s.prefix+":policy", ev.Policy+":"+field, 1)
	}

	if layout, ok := bucketLayouts[s.bucket]; ok {
		bucketKey := fmt.Sprintf("%s:%s:%s", s.prefix, s.bucket, at.UTC().Format(layout))
		pipe.HIncrBy(ctx, bucketKey, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bucketKey, s.ttl)
		}
	}

	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		pipe.HIncrBy(ctx, s.prefix+":route", routeField+":"+field, 1)
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
