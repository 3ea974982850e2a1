/**
 * HTTP API for the Poster Worker
 *
 * Serves processed posters by cache key, registers poster URLs and queues
 * their warm-up, lists visually similar posters and reports health.
 */

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/logging"
	"github.com/adverant/nexus/poster-worker/internal/processor"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

const (
	Version        = "1.0.0"
	maxRequestBody = 64 * 1024
	processedPath  = "/processed-poster/"
)

// PosterProcessor runs the text-removal pipeline
type PosterProcessor interface {
	Process(ctx context.Context, posterURL, key string) (*processor.ProcessResult, error)
	Cached(ctx context.Context, key string) ([]byte, bool)
}

// PosterEnqueuer queues cache warm-ups
type PosterEnqueuer interface {
	EnqueuePoster(ctx context.Context, posterURL, key string) (bool, error)
}

// SimilarFinder searches the poster index
type SimilarFinder interface {
	SearchSimilar(ctx context.Context, img image.Image, limit int) ([]storage.SimilarPoster, error)
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

// HandlerConfig holds handler dependencies; Enqueuer, Similar and Checks
// are optional.
type HandlerConfig struct {
	Processor PosterProcessor
	Registry  storage.Registry
	Enqueuer  PosterEnqueuer
	Similar   SimilarFinder
	Checks    map[string]HealthCheck
	Logger    *logging.Logger
}

// Handler handles HTTP requests for processed posters
type Handler struct {
	processor PosterProcessor
	registry  storage.Registry
	enqueuer  PosterEnqueuer
	similar   SimilarFinder
	checks    map[string]HealthCheck
	logger    *logging.Logger
	startTime time.Time
}

// NewHandler creates a new API handler
func NewHandler(cfg *HandlerConfig) (*Handler, error) {
	if cfg == nil || cfg.Processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &Handler{
		processor: cfg.Processor,
		registry:  cfg.Registry,
		enqueuer:  cfg.Enqueuer,
		similar:   cfg.Similar,
		checks:    cfg.Checks,
		logger:    logger,
		startTime: time.Now(),
	}, nil
}

// SetupRoutes configures the HTTP routes
func (h *Handler) SetupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.HandleFunc("/api/posters", h.RegisterPoster).Methods("POST")
	router.HandleFunc("/api/posters/{key}/similar", h.SimilarPosters).Methods("GET")
	router.HandleFunc(processedPath+"{key}", h.GetProcessedPoster).Methods("GET")

	// Health check
	router.HandleFunc("/health", h.Health).Methods("GET")

	return router
}

// ProcessedURL is the path a processed poster is served from
func ProcessedURL(key string) string {
	return processedPath + key
}

type registerRequest struct {
	URL string `json:"url"`
}

type registerResponse struct {
	Key          string `json:"key"`
	ProcessedURL string `json:"processedUrl"`
	Queued       bool   `json:"queued"`
}

// RegisterPoster records a poster URL under its cache key and queues a
// warm-up so the processed image is ready before it is requested.
func (h *Handler) RegisterPoster(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	var req registerRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	posterURL := strings.TrimSpace(req.URL)
	u, err := url.Parse(posterURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		h.sendError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
		return
	}

	ctx := r.Context()
	key := storage.KeyFor(posterURL)
	if err := h.registry.Register(ctx, key, posterURL); err != nil {
		h.logger.Error("Failed to register poster", "key", key, "error", err)
		h.sendError(w, http.StatusInternalServerError, "failed to register poster")
		return
	}

	queued := false
	if h.enqueuer != nil {
		queued, err = h.enqueuer.EnqueuePoster(ctx, posterURL, key)
		if err != nil {
			// Non-fatal: the poster is processed on first request instead
			h.logger.Warn("Failed to enqueue poster warm-up", "key", key, "error", err)
		}
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(registerResponse{
		Key:          key,
		ProcessedURL: ProcessedURL(key),
		Queued:       queued,
	})
}

// GetProcessedPoster serves the text-free poster for key. When the pipeline
// cannot produce any image the client is redirected to the source URL.
func (h *Handler) GetProcessedPoster(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	if err := storage.ValidateKey(key); err != nil {
		h.sendJSONError(w, http.StatusBadRequest, "invalid poster key")
		return
	}

	// Cache entries are served without the registry, which may have been
	// emptied by a restart.
	if data, ok := h.processor.Cached(r.Context(), key); ok {
		h.writePoster(w, data, processor.OutcomeCached)
		return
	}

	posterURL, ok, err := h.registry.Lookup(r.Context(), key)
	if err != nil {
		h.logger.Error("Registry lookup failed", "key", key, "error", err)
		h.sendJSONError(w, http.StatusInternalServerError, "registry unavailable")
		return
	}
	if !ok {
		h.sendJSONError(w, http.StatusNotFound, "unknown poster")
		return
	}

	// A disconnecting client must not abort a cache write.
	result, err := h.processor.Process(context.WithoutCancel(r.Context()), posterURL, key)
	if err != nil {
		if errors.Is(err, errors.ErrorPipelineFailed) {
			h.logger.Warn("Poster unavailable, redirecting to source", "key", key, "error", err)
			http.Redirect(w, r, posterURL, http.StatusFound)
			return
		}
		h.logger.Error("Poster processing failed", "key", key, "error", err)
		h.sendJSONError(w, http.StatusInternalServerError, "processing failed")
		return
	}

	h.writePoster(w, result.Data, result.Outcome)
}

func (h *Handler) writePoster(w http.ResponseWriter, data []byte, outcome processor.Outcome) {
	w.Header().Set("Content-Type", storage.EntryContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("X-Poster-Outcome", string(outcome))
	if outcome == processor.OutcomeOriginal {
		w.Header().Set("Cache-Control", "no-store")
	} else {
		w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	}
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// SimilarPosters lists posters that look like the processed poster for key.
func (h *Handler) SimilarPosters(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.similar == nil {
		h.sendError(w, http.StatusServiceUnavailable, "poster index not configured")
		return
	}

	key := mux.Vars(r)["key"]
	if err := storage.ValidateKey(key); err != nil {
		h.sendError(w, http.StatusBadRequest, "invalid poster key")
		return
	}

	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			h.sendError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	ctx := context.WithoutCancel(r.Context())
	data, ok := h.processor.Cached(ctx, key)
	if !ok {
		posterURL, found, err := h.registry.Lookup(r.Context(), key)
		if err != nil {
			h.logger.Error("Registry lookup failed", "key", key, "error", err)
			h.sendError(w, http.StatusInternalServerError, "registry unavailable")
			return
		}
		if !found {
			h.sendError(w, http.StatusNotFound, "unknown poster")
			return
		}

		result, err := h.processor.Process(ctx, posterURL, key)
		if err != nil {
			h.sendError(w, http.StatusBadGateway, "poster unavailable")
			return
		}
		data = result.Data
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "cached poster is not decodable")
		return
	}

	hits, err := h.similar.SearchSimilar(ctx, img, limit+1)
	if err != nil {
		h.logger.Error("Similar poster search failed", "key", key, "error", err)
		h.sendError(w, http.StatusBadGateway, "poster index unavailable")
		return
	}

	matches := make([]map[string]interface{}, 0, len(hits))
	for _, hit := range hits {
		if hit.Key == key {
			continue
		}
		if len(matches) == limit {
			break
		}
		matches = append(matches, map[string]interface{}{
			"key":          hit.Key,
			"url":          hit.URL,
			"score":        hit.Score,
			"processedUrl": ProcessedURL(hit.Key),
		})
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"key":     key,
		"similar": matches,
	})
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Health reports the worker and its configured dependencies
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
	}

	if len(h.checks) > 0 {
		response.Checks = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				response.Checks[name] = err.Error()
				response.Status = "degraded"
				continue
			}
			response.Checks[name] = "ok"
		}
	}

	if response.Status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(response)
}

// sendError sends an error response
func (h *Handler) sendError(w http.ResponseWriter, statusCode int, message string) {
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// sendJSONError is sendError for handlers that have not set a content type.
func (h *Handler) sendJSONError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	h.sendError(w, statusCode, message)
}
