package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/adverant/nexus/poster-worker/internal/config"
	"github.com/adverant/nexus/poster-worker/internal/logging"
	"github.com/adverant/nexus/poster-worker/internal/ocr"
	"github.com/adverant/nexus/poster-worker/internal/processor"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

const minioObjectPrefix = "processed_images"

// components is everything a command may need, built from the config.
// Optional parts are nil when not configured.
type components struct {
	cfg    *config.Config
	logger *logging.Logger

	redis    *redis.Client
	store    storage.Store
	registry storage.Registry
	ledger   *storage.PostgresClient
	index    *storage.QdrantClient
	manager  *storage.StorageManager

	fetcher   *processor.HTTPFetcher
	detector  *processor.LazyDetector
	processor *processor.PosterProcessor
}

func buildComponents(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*components, error) {
	c := &components{cfg: cfg, logger: logger}
	if err := c.build(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *components) build(ctx context.Context) error {
	cfg := c.cfg

	if cfg.CacheBackend == config.CacheBackendRedis || cfg.RegistryBackend == config.RegistryBackendRedis {
		c.logger.Info("Connecting to Redis", "url", cfg.RedisURL)
		client, err := storage.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		c.redis = client
	}

	switch cfg.CacheBackend {
	case config.CacheBackendRedis:
		c.store = storage.NewRedisStore(c.redis, cfg.CacheRedisPrefix)
	case config.CacheBackendMinio:
		c.logger.Info("Connecting to MinIO", "endpoint", cfg.MinioEndpoint, "bucket", cfg.MinioBucket)
		store, err := storage.NewMinioStore(ctx, &storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			Prefix:    minioObjectPrefix,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			return err
		}
		c.store = store
	default:
		c.store = storage.NewFileStore(cfg.CacheDir, c.logger.Named("cache"))
	}
	c.logger.Info("Cache store initialized", "backend", cfg.CacheBackend)

	if cfg.RegistryBackend == config.RegistryBackendRedis {
		c.registry = storage.NewRedisRegistry(c.redis, "")
	} else {
		c.registry = storage.NewMemoryRegistry()
	}

	if cfg.DatabaseURL != "" {
		c.logger.Info("Connecting to PostgreSQL ledger")
		ledger, err := storage.NewPostgresClient(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		c.ledger = ledger
		if err := ledger.EnsureSchema(ctx); err != nil {
			return err
		}
	}

	if cfg.QdrantURL != "" {
		c.logger.Info("Connecting to Qdrant", "address", cfg.QdrantURL, "collection", cfg.QdrantCollection)
		index, err := storage.NewQdrantClient(cfg.QdrantURL, cfg.QdrantCollection)
		if err != nil {
			return err
		}
		c.index = index
	}

	var recorder processor.Recorder
	if c.ledger != nil || c.index != nil {
		var ledger storage.Ledger
		var index storage.PosterIndex
		if c.ledger != nil {
			ledger = c.ledger
		}
		if c.index != nil {
			index = c.index
		}
		c.manager = storage.NewStorageManager(ledger, index, c.logger.Named("storage"))
		recorder = c.manager
	}

	c.fetcher = processor.NewHTTPFetcher(time.Duration(cfg.FetchTimeout)*time.Millisecond, cfg.MaxImageBytes)
	c.detector = processor.NewLazyDetector(ocr.EngineName, ocr.NewFactory(cfg.OCRLanguages))

	proc, err := processor.NewPosterProcessor(&processor.ProcessorConfig{
		Fetcher:  c.fetcher,
		Detector: c.detector,
		Store:    c.store,
		Recorder: recorder,
		Logger:   c.logger,
		Tuning: &processor.Tuning{
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			Padding:             cfg.MaskPadding,
			InpaintRadius:       cfg.InpaintRadius,
			JPEGQuality:         cfg.JPEGQuality,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize poster processor: %w", err)
	}
	c.processor = proc
	return nil
}

// Close releases every connection that was opened.
func (c *components) Close() {
	if c.detector != nil {
		if err := c.detector.Close(); err != nil {
			c.logger.Warn("Error closing text detector", "error", err)
		}
	}
	if c.index != nil {
		if err := c.index.Close(); err != nil {
			c.logger.Warn("Error closing Qdrant client", "error", err)
		}
	}
	if c.ledger != nil {
		if err := c.ledger.Close(); err != nil {
			c.logger.Warn("Error closing PostgreSQL client", "error", err)
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Warn("Error closing Redis client", "error", err)
		}
	}
}
