package kvstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions holds connection settings for RedisStore.
type RedisOptions struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RedisStore implements Store with plain keys for records and sorted sets for
// indexes.
type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore connects to Redis and verifies the connection with PING.
func NewRedisStore(ctx context.Context, opt RedisOptions) (*RedisStore, error) {
	if opt.DialTimeout <= 0 {
		opt.DialTimeout = 5 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         opt.Addr,
		Password:     opt.Password,
		DB:           opt.DB,
		PoolSize:     opt.PoolSize,
		DialTimeout:  opt.DialTimeout,
		ReadTimeout:  opt.ReadTimeout,
		WriteTimeout: opt.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opt.DialTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opt.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client (cluster, sentinel or test).
func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	return b, err
}

// Set implements Store.
func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

// IndexAdd implements Store.
func (r *RedisStore) IndexAdd(ctx context.Context, index, member string, score float64) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.client.ZAdd(ctx, index, redis.Z{Score: score, Member: member}).Err()
}

// IndexRevRange implements Store.
func (r *RedisStore) IndexRevRange(ctx context.Context, index string, start, stop int64) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.client.ZRevRange(ctx, index, start, stop).Result()
}

// IndexRevRangeByScore implements Store.
func (r *RedisStore) IndexRevRangeByScore(ctx context.Context, index string, min, max float64) ([]string, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.client.ZRevRangeByScore(ctx, index, &redis.ZRangeBy{
		Min: scoreBound(min),
		Max: scoreBound(max),
	}).Result()
}

// IndexCount implements Store.
func (r *RedisStore) IndexCount(ctx context.Context, index string) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.client.ZCard(ctx, index).Result()
}

// IndexRemove implements Store.
func (r *RedisStore) IndexRemove(ctx context.Context, index string, members ...string) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	args := make([]any, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.ZRem(ctx, index, args...).Result()
}

// Ping implements Store.
func (r *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return r.client.Ping(ctx).Err()
}

// Close implements Store.
func (r *RedisStore) Close() error { return r.client.Close() }

// scoreBound renders a score as a ZRANGEBYSCORE bound.
func scoreBound(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
