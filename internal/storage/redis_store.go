/**
 * Redis Cache Store for the Poster Worker
 *
 * Keeps processed posters as Redis string values shared by all workers.
 */

package storage

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// RedisStore keeps entries as plain Redis string values. SETNX makes writes
// append-only and atomic: a reader sees either nothing or the full value.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient parses redisURL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}

	// Parse Redis URL
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// NewRedisStore creates a store over an existing client. Keys are stored as
// prefix+key.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string) string {
	return s.prefix + key
}

// Exists reports whether the entry is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	n, err := s.client.Exists(ctx, s.redisKey(key)).Result()
	if err != nil {
		return false, errors.NewCacheIOError(key, "exists", err)
	}
	return n > 0, nil
}

// Read returns the entry bytes.
func (s *RedisStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return nil, errors.NewNotFoundError(key)
		}
		return nil, errors.NewCacheIOError(key, "read", err)
	}
	return data, nil
}

// Write stores data unless the key already holds an entry. Entries never expire.
func (s *RedisStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if _, err := s.client.SetNX(ctx, s.redisKey(key), data, 0).Result(); err != nil {
		return errors.NewCacheIOError(key, "write", err)
	}
	return nil
}
