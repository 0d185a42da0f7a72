package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"optionsflow/config"
)

// RedisStore backs the Store contract with a Redis instance. Dedup marks
// are plain SET NX keys so each mark carries its own TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to Redis using the store configuration and verifies
// the connection with a ping.
func NewRedisStore(ctx context.Context, cfg config.StoreConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) MarkSeen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	first, err := s.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return first, nil
}

func (s *RedisStore) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *RedisStore) PushQueue(ctx context.Context, queue string, value []byte) error {
	if err := s.client.RPush(ctx, queue, value).Err(); err != nil {
		return fmt.Errorf("redis rpush %s: %w", queue, err)
	}
	return nil
}

func (s *RedisStore) DrainQueue(ctx context.Context, queue string) ([][]byte, error) {
	pipe := s.client.TxPipeline()
	rangeCmd := pipe.LRange(ctx, queue, 0, -1)
	pipe.Del(ctx, queue)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis drain %s: %w", queue, err)
	}
	values := rangeCmd.Val()
	if len(values) == 0 {
		return nil, nil
	}
	out := make([][]byte, len(values))
	for i, v := range values {
		out[i] = []byte(v)
	}
	return out, nil
}

func (s *RedisStore) QueueLen(ctx context.Context, queue string) (int64, error) {
	n, err := s.client.LLen(ctx, queue).Result()
	if err != nil {
		return 0, fmt.Errorf("redis llen %s: %w", queue, err)
	}
	return n, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
