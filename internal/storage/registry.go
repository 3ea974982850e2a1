/**
 * Poster URL Registry for the Poster Worker
 *
 * Maps cache keys back to the source URL they were derived from.
 */

package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Registry remembers which source URL a cache key was computed from, so a
// request that only carries the key can still be processed or redirected.
type Registry interface {
	Register(ctx context.Context, key, posterURL string) error
	Lookup(ctx context.Context, key string) (string, bool, error)
}

// MemoryRegistry is a process-local Registry.
type MemoryRegistry struct {
	mu   sync.RWMutex
	urls map[string]string
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{urls: make(map[string]string)}
}

func (r *MemoryRegistry) Register(ctx context.Context, key, posterURL string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(posterURL) == "" {
		return fmt.Errorf("poster URL cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.urls[key] = posterURL
	return nil
}

func (r *MemoryRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.urls[key]
	return u, ok, nil
}

// RedisRegistry stores the mapping in a Redis hash shared by all workers.
type RedisRegistry struct {
	client *redis.Client
	hash   string
}

// NewRedisRegistry creates a registry over the hash named hash.
func NewRedisRegistry(client *redis.Client, hash string) *RedisRegistry {
	if hash == "" {
		hash = "poster:urls"
	}
	return &RedisRegistry{client: client, hash: hash}
}

func (r *RedisRegistry) Register(ctx context.Context, key, posterURL string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	if strings.TrimSpace(posterURL) == "" {
		return fmt.Errorf("poster URL cannot be empty")
	}
	if err := r.client.HSet(ctx, r.hash, key, posterURL).Err(); err != nil {
		return fmt.Errorf("failed to register poster URL: %w", err)
	}
	return nil
}

func (r *RedisRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	u, err := r.client.HGet(ctx, r.hash, key).Result()
	if err != nil {
		if stderrors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up poster URL: %w", err)
	}
	return u, true, nil
}
