package infra

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"admission-gateway/middleware/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

var (
	//go:embed increment.lua
	incrementSource string
	//go:embed block.lua
	blockSource string

	incrementScript = redis.NewScript(incrementSource)
	blockScript     = redis.NewScript(blockSource)
)

// RedisCounterStore is the shared counter store backed by Redis.
//
// Keys are laid out as "{prefix}:points:{<ns>:<key>}" and
// "{prefix}:block:{<ns>:<key>}"; the hash tag keeps both in one cluster slot
// so the scripts can touch them together.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	prefix string
}

var _ domain.CounterStore = (*RedisCounterStore)(nil)

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{rdb: rdb, prefix: "ratelimit"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) pointsKey(key string) string {
	return s.prefix + ":points:{" + key + "}"
}

func (s *RedisCounterStore) blockKey(key string) string {
	return s.prefix + ":block:{" + key + "}"
}

func (s *RedisCounterStore) Increment(ctx context.Context, key string, window time.Duration) (domain.Counter, error) {
	res, err := incrementScript.Run(ctx, s.rdb,
		[]string{s.pointsKey(key), s.blockKey(key)},
		window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return domain.Counter{}, err
	}
	if len(res) != 3 {
		return domain.Counter{}, fmt.Errorf("unexpected increment reply of %d values", len(res))
	}
	return domain.Counter{
		Points:    res[0],
		WindowTTL: time.Duration(res[1]) * time.Millisecond,
		BlockTTL:  time.Duration(res[2]) * time.Millisecond,
	}, nil
}

func (s *RedisCounterStore) Block(ctx context.Context, key string, d time.Duration) (bool, time.Duration, error) {
	res, err := blockScript.Run(ctx, s.rdb, []string{s.blockKey(key)}, d.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected block reply of %d values", len(res))
	}
	return res[0] == 1, time.Duration(res[1]) * time.Millisecond, nil
}

func (s *RedisCounterStore) Get(ctx context.Context, key string) (*domain.CounterRecord, error) {
	pipe := s.rdb.Pipeline()
	pointsCmd := pipe.Get(ctx, s.pointsKey(key))
	windowCmd := pipe.PTTL(ctx, s.pointsKey(key))
	blockCmd := pipe.PTTL(ctx, s.blockKey(key))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	now := time.Now()
	rec := &domain.CounterRecord{Key: key}
	found := false

	raw, err := pointsCmd.Result()
	switch {
	case errors.Is(err, redis.Nil):
	case err != nil:
		return nil, err
	default:
		points, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, fmt.Errorf("parse points of %q: %w", key, perr)
		}
		rec.Points = points
		if ttl := windowCmd.Val(); ttl > 0 {
			rec.WindowExpiresAt = now.Add(ttl)
		}
		found = true
	}

	if ttl := blockCmd.Val(); ttl > 0 {
		until := now.Add(ttl)
		rec.BlockedUntil = &until
		found = true
	}

	if !found {
		return nil, nil
	}
	return rec, nil
}

func (s *RedisCounterStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Del(ctx, s.pointsKey(key), s.blockKey(key)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
