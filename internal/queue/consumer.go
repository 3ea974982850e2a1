/**
 * Queue Consumer for the Poster Worker
 *
 * Consumes cache warm-up tasks from Redis and runs them through the poster
 * processor. Uses Asynq for queue management.
 */

package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"time"

	"github.com/hibiken/asynq"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/logging"
	"github.com/adverant/nexus/poster-worker/internal/processor"
)

const defaultProcessingTimeout = 120 * time.Second

// PosterProcessorInterface defines the interface for poster processing
type PosterProcessorInterface interface {
	Process(ctx context.Context, posterURL, key string) (*processor.ProcessResult, error)
}

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server  *asynq.Server
	mux     *asynq.ServeMux
	handler *TaskHandler
	config  *ConsumerConfig
	logger  *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         PosterProcessorInterface
	ProcessingTimeout time.Duration
	Logger            *logging.Logger
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "payload", string(task.Payload()), "error", err)
			}),
			Logger: &asynqLogger{logger: logger.Named("asynq")},
		},
	)

	handler := NewTaskHandler(cfg.Processor, cfg.ProcessingTimeout, logger)

	// Create multiplexer for task routing
	mux := asynq.NewServeMux()
	mux.Handle(TypeProcessPoster, handler)

	return &Consumer{
		server:  server,
		mux:     mux,
		handler: handler,
		config:  cfg,
		logger:  logger,
	}, nil
}

// Start starts the queue consumer without blocking
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting queue consumer", "concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
		"timeout":     c.handler.timeout.String(),
	}
}

// TaskHandler processes poster:process tasks
type TaskHandler struct {
	processor PosterProcessorInterface
	timeout   time.Duration
	logger    *logging.Logger
}

// NewTaskHandler creates a handler; a non-positive timeout selects 2 minutes.
func NewTaskHandler(p PosterProcessorInterface, timeout time.Duration, logger *logging.Logger) *TaskHandler {
	if timeout <= 0 {
		timeout = defaultProcessingTimeout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &TaskHandler{processor: p, timeout: timeout, logger: logger}
}

// ProcessTask implements asynq.Handler. A malformed payload is never
// retried; a run that fell back to the original is retried so a later
// attempt can still populate the cache.
func (h *TaskHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	payload, err := ParsePosterPayload(task.Payload())
	if err != nil {
		h.logger.Error("Dropping malformed poster task", "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	log := h.logger.Named("Poster " + payload.Key)
	log.Info("Processing poster task", "url", payload.URL, "timeout", h.timeout)

	processCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	result, err := h.processor.Process(processCtx, payload.URL, payload.Key)
	duration := time.Since(startTime)

	if err != nil {
		// Check if error was due to timeout
		if stderrors.Is(processCtx.Err(), context.DeadlineExceeded) {
			log.Error("Processing timed out", "duration", duration, "timeout", h.timeout)
			return fmt.Errorf("processing timeout: %w", errors.NewProcessingTimeoutError(payload.Key, h.timeout, err))
		}
		if errors.Is(err, errors.ErrorInvalidKey) {
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}

		log.Error("Processing failed", "duration", duration, "error", err)
		return fmt.Errorf("poster processing failed: %w", err)
	}

	if result.Outcome == processor.OutcomeOriginal {
		log.Warn("Poster served unprocessed, scheduling retry", "duration", duration, "error", result.Err)
		return fmt.Errorf("poster %s not cached: %w", payload.Key, result.Err)
	}

	log.Info("Poster task completed", "outcome", result.Outcome, "regions", len(result.Regions), "duration", duration)
	return nil
}

// asynqLogger routes asynq's internal logging through the worker logger.
type asynqLogger struct {
	logger *logging.Logger
}

func (l *asynqLogger) Debug(args ...interface{}) { l.logger.Debug(fmt.Sprint(args...)) }
func (l *asynqLogger) Info(args ...interface{})  { l.logger.Info(fmt.Sprint(args...)) }
func (l *asynqLogger) Warn(args ...interface{})  { l.logger.Warn(fmt.Sprint(args...)) }
func (l *asynqLogger) Error(args ...interface{}) { l.logger.Error(fmt.Sprint(args...)) }

func (l *asynqLogger) Fatal(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
	os.Exit(1)
}
