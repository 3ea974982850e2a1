/**
 * Task Enqueuer for the Poster Worker
 *
 * Queues cache warm-ups, at most one pending task per poster.
 */

package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const uniqueWindow = 10 * time.Minute

// Enqueuer submits warm-up tasks
type Enqueuer struct {
	client    *asynq.Client
	queueName string
	maxRetry  int
}

// NewEnqueuer creates an enqueuer for queueName on the Redis at redisURL.
func NewEnqueuer(redisURL, queueName string, maxRetry int) (*Enqueuer, error) {
	if queueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	redisOpt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return &Enqueuer{
		client:    asynq.NewClient(redisOpt),
		queueName: queueName,
		maxRetry:  maxRetry,
	}, nil
}

// EnqueuePoster queues a warm-up for posterURL. It reports false, without an
// error, when the same poster is already queued.
func (e *Enqueuer) EnqueuePoster(ctx context.Context, posterURL, key string) (bool, error) {
	task, err := NewPosterTask(posterURL, key)
	if err != nil {
		return false, err
	}

	_, err = e.client.EnqueueContext(ctx, task,
		asynq.Queue(e.queueName),
		asynq.MaxRetry(e.maxRetry),
		asynq.Unique(uniqueWindow),
	)
	if err != nil {
		if stderrors.Is(err, asynq.ErrDuplicateTask) {
			return false, nil
		}
		return false, fmt.Errorf("failed to enqueue poster task: %w", err)
	}
	return true, nil
}

// Close closes the underlying client
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
