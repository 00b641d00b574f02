// Package kv wraps go-redis behind the KVStore port. Redis supplies the two
// atomic primitives the core leans on: SET NX with TTL for the idempotency
// guard and INCR for the receipt sequence.
package kv

import (
	"context"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"kirapay/internal/application"
)

type Config struct {
	Addr        string
	Password    string
	DB          int
	MaxRetries  int
	DialTimeout time.Duration
	Timeout     time.Duration
	Prefix      string
}

type RedisStore struct {
	raw    *goredis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, cfg Config) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.Timeout,
		WriteTimeout: cfg.Timeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &RedisStore{raw: rdb, prefix: cfg.Prefix}, nil
}

func (s *RedisStore) Close() {
	if s.raw != nil {
		_ = s.raw.Close()
	}
}

func (s *RedisStore) withPrefix(key string) string {
	return s.prefix + key
}

func (s *RedisStore) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.raw.SetNX(ctx, s.withPrefix(key), value, ttl).Result()
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.raw.Get(ctx, s.withPrefix(key)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", application.ErrKeyNotFound
		}
		return "", err
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.raw.Set(ctx, s.withPrefix(key), value, ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return s.raw.Del(ctx, s.withPrefix(key)).Err()
}

func (s *RedisStore) Increment(ctx context.Context, key string) (int64, error) {
	return s.raw.Incr(ctx, s.withPrefix(key)).Result()
}

func (s *RedisStore) ExpireAt(ctx context.Context, key string, at time.Time) error {
	return s.raw.ExpireAt(ctx, s.withPrefix(key), at).Err()
}
