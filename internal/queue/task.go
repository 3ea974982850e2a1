/**
 * Poster Tasks for the Poster Worker
 *
 * Asynq task type and JSON payload for cache warm-ups.
 */

package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/poster-worker/internal/storage"
)

// TypeProcessPoster is the asynq task type that warms the cache for a poster.
const TypeProcessPoster = "poster:process"

// PosterPayload represents the structure of a poster task
type PosterPayload struct {
	URL string `json:"url"`
	Key string `json:"key"`
}

// NewPosterTask builds a warm-up task. An empty key is derived from url.
func NewPosterTask(posterURL, key string) (*asynq.Task, error) {
	payload, err := newPayload(posterURL, key)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal poster payload: %w", err)
	}
	return asynq.NewTask(TypeProcessPoster, data), nil
}

// ParsePosterPayload decodes and validates a task payload.
func ParsePosterPayload(data []byte) (*PosterPayload, error) {
	var p PosterPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal poster payload: %w", err)
	}
	return newPayload(p.URL, p.Key)
}

func newPayload(posterURL, key string) (*PosterPayload, error) {
	posterURL = strings.TrimSpace(posterURL)
	if posterURL == "" {
		return nil, fmt.Errorf("poster URL is required")
	}
	if key == "" {
		key = storage.KeyFor(posterURL)
	}
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	return &PosterPayload{URL: posterURL, Key: key}, nil
}
