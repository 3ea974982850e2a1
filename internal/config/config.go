/**
 * Configuration for the Poster Worker
 *
 * Loads configuration from environment variables (optionally seeded from .env)
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Cache backends
const (
	CacheBackendFile  = "file"
	CacheBackendRedis = "redis"
	CacheBackendMinio = "minio"
)

// Registry backends
const (
	RegistryBackendMemory = "memory"
	RegistryBackendRedis  = "redis"
)

// Config holds worker configuration
type Config struct {
	// HTTP server
	HTTPAddr string

	// Redis configuration (queue, optional cache and registry backends)
	RedisURL string

	// Queue configuration
	QueueName         string
	WorkerConcurrency int
	ProcessingTimeout int // milliseconds
	TaskMaxRetry      int

	// Cache store configuration
	CacheBackend     string
	CacheDir         string
	CacheRedisPrefix string

	// MinIO configuration
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// PostgreSQL processing ledger (optional)
	DatabaseURL string

	// Qdrant similar-poster index (optional)
	QdrantURL        string
	QdrantCollection string

	// Pipeline tuning
	FetchTimeout        int // milliseconds
	MaxImageBytes       int64
	ConfidenceThreshold float64
	MaskPadding         int
	InpaintRadius       int
	JPEGQuality         int

	// Tesseract configuration
	OCRLanguages []string

	// Key -> source URL registry
	RegistryBackend string

	LogLevel string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		HTTPAddr:            getEnvOrDefault("HTTP_ADDR", ":8080"),
		RedisURL:            getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		QueueName:           getEnvOrDefault("QUEUE_NAME", "posters"),
		WorkerConcurrency:   getEnvAsIntOrDefault("WORKER_CONCURRENCY", 4),
		ProcessingTimeout:   getEnvAsIntOrDefault("PROCESSING_TIMEOUT", 120000), // 2 minutes
		TaskMaxRetry:        getEnvAsIntOrDefault("TASK_MAX_RETRY", 3),
		CacheBackend:        strings.ToLower(getEnvOrDefault("CACHE_BACKEND", CacheBackendFile)),
		CacheDir:            getEnvOrDefault("POSTER_CACHE_DIR", "static/processed_images"),
		CacheRedisPrefix:    getEnvOrDefault("CACHE_REDIS_PREFIX", "poster:cache:"),
		MinioEndpoint:       getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:      getEnvOrDefault("MINIO_ACCESS_KEY", ""),
		MinioSecretKey:      getEnvOrDefault("MINIO_SECRET_KEY", ""),
		MinioBucket:         getEnvOrDefault("MINIO_BUCKET", "posters"),
		MinioUseSSL:         getEnvAsBoolOrDefault("MINIO_USE_SSL", false),
		DatabaseURL:         getEnvOrDefault("DATABASE_URL", ""),
		QdrantURL:           getEnvOrDefault("QDRANT_URL", ""),
		QdrantCollection:    getEnvOrDefault("QDRANT_COLLECTION", "poster_signatures"),
		FetchTimeout:        getEnvAsIntOrDefault("FETCH_TIMEOUT_MS", 10000),
		MaxImageBytes:       getEnvAsInt64OrDefault("MAX_IMAGE_BYTES", 20971520), // 20MB
		ConfidenceThreshold: getEnvAsFloatOrDefault("CONFIDENCE_THRESHOLD", 0.3),
		MaskPadding:         getEnvAsIntOrDefault("MASK_PADDING", 5),
		InpaintRadius:       getEnvAsIntOrDefault("INPAINT_RADIUS", 7),
		JPEGQuality:         getEnvAsIntOrDefault("JPEG_QUALITY", 95),
		OCRLanguages:        splitList(getEnvOrDefault("OCR_LANGUAGES", "eng")),
		RegistryBackend:     strings.ToLower(getEnvOrDefault("REGISTRY_BACKEND", RegistryBackendMemory)),
		LogLevel:            getEnvOrDefault("LOG_LEVEL", "info"),
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	switch c.CacheBackend {
	case CacheBackendFile:
		if c.CacheDir == "" {
			return fmt.Errorf("POSTER_CACHE_DIR is required for the file cache backend")
		}
	case CacheBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required for the redis cache backend")
		}
	case CacheBackendMinio:
		if c.MinioEndpoint == "" || c.MinioBucket == "" {
			return fmt.Errorf("MINIO_ENDPOINT and MINIO_BUCKET are required for the minio cache backend")
		}
	default:
		return fmt.Errorf("CACHE_BACKEND must be one of file, redis, minio, got %q", c.CacheBackend)
	}

	switch c.RegistryBackend {
	case RegistryBackendMemory, RegistryBackendRedis:
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be memory or redis, got %q", c.RegistryBackend)
	}

	if c.WorkerConcurrency < 1 || c.WorkerConcurrency > 100 {
		return fmt.Errorf("WORKER_CONCURRENCY must be between 1 and 100, got %d", c.WorkerConcurrency)
	}

	if c.TaskMaxRetry < 0 || c.TaskMaxRetry > 25 {
		return fmt.Errorf("TASK_MAX_RETRY must be between 0 and 25, got %d", c.TaskMaxRetry)
	}

	if c.ProcessingTimeout < 1000 {
		return fmt.Errorf("PROCESSING_TIMEOUT must be at least 1000ms, got %d", c.ProcessingTimeout)
	}

	if c.FetchTimeout < 100 || c.FetchTimeout > 120000 {
		return fmt.Errorf("FETCH_TIMEOUT_MS must be between 100 and 120000, got %d", c.FetchTimeout)
	}

	if c.MaxImageBytes < 1024 || c.MaxImageBytes > 268435456 { // 1KB to 256MB
		return fmt.Errorf("MAX_IMAGE_BYTES must be between 1KB and 256MB, got %d", c.MaxImageBytes)
	}

	if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be between 0 and 1, got %v", c.ConfidenceThreshold)
	}

	if c.MaskPadding < 0 || c.MaskPadding > 100 {
		return fmt.Errorf("MASK_PADDING must be between 0 and 100, got %d", c.MaskPadding)
	}

	if c.InpaintRadius < 1 || c.InpaintRadius > 50 {
		return fmt.Errorf("INPAINT_RADIUS must be between 1 and 50, got %d", c.InpaintRadius)
	}

	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.JPEGQuality)
	}

	if len(c.OCRLanguages) == 0 {
		return fmt.Errorf("OCR_LANGUAGES must name at least one language")
	}

	return nil
}

// getEnvOrDefault gets environment variable or returns default
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsIntOrDefault gets environment variable as int or returns default
func getEnvAsIntOrDefault(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

// getEnvAsInt64OrDefault gets environment variable as int64 or returns default
func getEnvAsInt64OrDefault(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBoolOrDefault(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
