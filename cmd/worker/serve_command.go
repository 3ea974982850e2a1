package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/adverant/nexus/poster-worker/internal/queue"
	"github.com/adverant/nexus/poster-worker/internal/server"
)

const shutdownTimeout = 15 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var noQueue bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the cache warm-up consumer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := ctx.logger(cmd.OutOrStdout())

			logger.Info("Poster worker starting...")
			logger.Info("Configuration loaded",
				"http", cfg.HTTPAddr,
				"cache", cfg.CacheBackend,
				"registry", cfg.RegistryBackend,
				"workers", cfg.WorkerConcurrency,
				"ledger", cfg.DatabaseURL != "",
				"index", cfg.QdrantURL != "")

			comps, err := buildComponents(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer comps.Close()

			handlerCfg := &server.HandlerConfig{
				Processor: comps.processor,
				Registry:  comps.registry,
				Logger:    logger.Named("http"),
				Checks:    map[string]server.HealthCheck{},
			}
			if comps.index != nil {
				handlerCfg.Similar = comps.index
			}
			if comps.redis != nil {
				handlerCfg.Checks["redis"] = func(ctx context.Context) error { return comps.redis.Ping(ctx).Err() }
			}
			if comps.ledger != nil {
				handlerCfg.Checks["postgres"] = comps.ledger.Ping
			}

			var consumer *queue.Consumer
			if !noQueue {
				enqueuer, err := queue.NewEnqueuer(cfg.RedisURL, cfg.QueueName, cfg.TaskMaxRetry)
				if err != nil {
					return fmt.Errorf("failed to initialize queue client: %w", err)
				}
				defer enqueuer.Close()
				handlerCfg.Enqueuer = enqueuer

				consumer, err = queue.NewConsumer(&queue.ConsumerConfig{
					RedisURL:          cfg.RedisURL,
					QueueName:         cfg.QueueName,
					Concurrency:       cfg.WorkerConcurrency,
					Processor:         comps.processor,
					ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
					Logger:            logger.Named("queue"),
				})
				if err != nil {
					return fmt.Errorf("failed to initialize queue consumer: %w", err)
				}
				if err := consumer.Start(cmd.Context()); err != nil {
					return err
				}
			}

			handler, err := server.NewHandler(handlerCfg)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           handler.SetupRoutes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErr := make(chan error, 1)
			go func() {
				logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
				close(serverErr)
			}()

			logger.Info("Poster worker is READY", "queue", cfg.QueueName, "queueEnabled", !noQueue)

			// Setup graceful shutdown
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(sigChan)

			var runErr error
			select {
			case sig := <-sigChan:
				logger.Info("Received signal, initiating graceful shutdown...", "signal", sig)
			case err := <-serverErr:
				runErr = fmt.Errorf("http server failed: %w", err)
			case <-cmd.Context().Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Error stopping HTTP server", "error", err)
			}
			if consumer != nil {
				if err := consumer.Stop(shutdownCtx); err != nil {
					logger.Warn("Error stopping queue consumer", "error", err)
				}
			}

			logger.Info("Shutdown complete")
			return runErr
		},
	}

	cmd.Flags().BoolVar(&noQueue, "no-queue", false, "Serve HTTP only, without the warm-up queue")
	return cmd
}
