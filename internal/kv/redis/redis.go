// Package redis implements kv.Store on top of a Redis instance.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/openuav/buildforge/internal/kv"
)

var _ kv.Store = (*Store)(nil)

// Store is a Redis-backed kv.Store.
type Store struct {
	client *goredis.Client
}

// NewStore wraps an already-connected Redis client.
func NewStore(client *goredis.Client) *Store {
	return &Store{client: client}
}

// Ping checks connectivity to the Redis instance.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) SetTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis: set %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetKeepTTL(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, goredis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("redis: set keepttl %s: %w", key, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis: del %s: %w", key, err)
	}
	return nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis: scan %s*: %w", prefix, err)
	}
	return keys, nil
}

func (s *Store) Push(ctx context.Context, queue, value string) error {
	if err := s.client.RPush(ctx, queue, value).Err(); err != nil {
		return fmt.Errorf("redis: rpush %s: %w", queue, err)
	}
	return nil
}

func (s *Store) BlockingPop(ctx context.Context, queue string, timeout time.Duration) (string, bool, error) {
	res, err := s.client.BLPop(ctx, timeout, queue).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis: blpop %s: %w", queue, err)
	}
	// BLPOP replies with [key, value].
	return res[1], true, nil
}
