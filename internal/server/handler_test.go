package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/processor"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

type fakeProcessor struct {
	mu      sync.Mutex
	calls   int
	outcome processor.Outcome
	data    []byte
	err     error
	cached  map[string][]byte
}

func (f *fakeProcessor) Cached(ctx context.Context, key string) ([]byte, bool) {
	data, ok := f.cached[key]
	return data, ok
}

func (f *fakeProcessor) Process(ctx context.Context, posterURL, key string) (*processor.ProcessResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &processor.ProcessResult{Key: key, URL: posterURL, Data: f.data, Outcome: f.outcome}, nil
}

type fakeEnqueuer struct {
	keys []string
	err  error
}

func (f *fakeEnqueuer) EnqueuePoster(ctx context.Context, posterURL, key string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.keys = append(f.keys, key)
	return true, nil
}

type fakeSimilar struct {
	hits []storage.SimilarPoster
}

func (f *fakeSimilar) SearchSimilar(ctx context.Context, img image.Image, limit int) ([]storage.SimilarPoster, error) {
	if len(f.hits) > limit {
		return f.hits[:limit], nil
	}
	return f.hits, nil
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := 0; i < 8; i++ {
		img.Set(i, i, color.RGBA{200, 10, 10, 255})
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func newTestHandler(t *testing.T, cfg *HandlerConfig) (*Handler, http.Handler) {
	t.Helper()
	if cfg.Registry == nil {
		cfg.Registry = storage.NewMemoryRegistry()
	}
	h, err := NewHandler(cfg)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, h.SetupRoutes()
}

func TestRegisterPoster(t *testing.T) {
	enq := &fakeEnqueuer{}
	reg := storage.NewMemoryRegistry()
	_, router := newTestHandler(t, &HandlerConfig{Processor: &fakeProcessor{}, Registry: reg, Enqueuer: enq})

	const posterURL = "https://image.tmdb.org/t/p/w500/poster.jpg"
	body := strings.NewReader(fmt.Sprintf(`{"url":%q}`, posterURL))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/posters", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp registerResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	wantKey := storage.KeyFor(posterURL)
	if resp.Key != wantKey || resp.ProcessedURL != "/processed-poster/"+wantKey || !resp.Queued {
		t.Errorf("unexpected response %+v", resp)
	}
	if len(enq.keys) != 1 || enq.keys[0] != wantKey {
		t.Errorf("enqueued %v", enq.keys)
	}

	got, ok, _ := reg.Lookup(context.Background(), wantKey)
	if !ok || got != posterURL {
		t.Errorf("registry has %q, %v", got, ok)
	}
}

func TestRegisterPosterEnqueueFailureIsNotFatal(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{},
		Enqueuer:  &fakeEnqueuer{err: fmt.Errorf("redis down")},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/posters", strings.NewReader(`{"url":"http://example.com/a.png"}`)))
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRegisterPosterRejectsBadInput(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{Processor: &fakeProcessor{}})

	for _, body := range []string{`not json`, `{"url":""}`, `{"url":"ftp://example.com/a.jpg"}`, `{"url":"/relative.jpg"}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/posters", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestGetProcessedPoster(t *testing.T) {
	data := jpegBytes(t)
	tests := []struct {
		name      string
		outcome   processor.Outcome
		wantCache string
	}{
		{"processed", processor.OutcomeProcessed, "public, max-age=86400, immutable"},
		{"cached", processor.OutcomeCached, "public, max-age=86400, immutable"},
		{"original", processor.OutcomeOriginal, "no-store"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := storage.NewMemoryRegistry()
			key := storage.KeyFor("https://example.com/p.jpg")
			reg.Register(context.Background(), key, "https://example.com/p.jpg")

			_, router := newTestHandler(t, &HandlerConfig{
				Processor: &fakeProcessor{outcome: tt.outcome, data: data},
				Registry:  reg,
			})

			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProcessedURL(key), nil))

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if ct := rec.Header().Get("Content-Type"); ct != "image/jpeg" {
				t.Errorf("Content-Type = %q", ct)
			}
			if got := rec.Header().Get("X-Poster-Outcome"); got != string(tt.outcome) {
				t.Errorf("X-Poster-Outcome = %q", got)
			}
			if got := rec.Header().Get("Cache-Control"); got != tt.wantCache {
				t.Errorf("Cache-Control = %q", got)
			}
			if !bytes.Equal(rec.Body.Bytes(), data) {
				t.Errorf("body differs from processor output")
			}
		})
	}
}

func TestGetProcessedPosterUnknownKey(t *testing.T) {
	fp := &fakeProcessor{}
	_, router := newTestHandler(t, &HandlerConfig{Processor: fp})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProcessedURL("0123456789abcdef"), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if fp.calls != 0 {
		t.Errorf("processor called for unknown key")
	}
}

type failingRegistry struct{}

func (failingRegistry) Register(ctx context.Context, key, posterURL string) error {
	return fmt.Errorf("connection refused")
}

func (failingRegistry) Lookup(ctx context.Context, key string) (string, bool, error) {
	return "", false, fmt.Errorf("connection refused")
}

type unreachableFetcher struct{ t *testing.T }

func (f unreachableFetcher) Fetch(ctx context.Context, posterURL string) (*image.RGBA, error) {
	f.t.Errorf("cached poster fetched from %s", posterURL)
	return nil, fmt.Errorf("unexpected fetch")
}

type noTextDetector struct{}

func (noTextDetector) Detect(ctx context.Context, img image.Image) ([]processor.Detection, error) {
	return nil, nil
}

func TestGetProcessedPosterServesCacheWithoutRegistry(t *testing.T) {
	const posterURL = "https://example.com/p.jpg"
	key := storage.KeyFor(posterURL)
	data := jpegBytes(t)

	// An entry left by a previous run; the registry starts empty.
	store := storage.NewFileStore(t.TempDir(), nil)
	if err := store.Write(context.Background(), key, data); err != nil {
		t.Fatal(err)
	}
	proc, err := processor.NewPosterProcessor(&processor.ProcessorConfig{
		Fetcher:  unreachableFetcher{t},
		Detector: noTextDetector{},
		Store:    store,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, router := newTestHandler(t, &HandlerConfig{Processor: proc, Registry: storage.NewMemoryRegistry()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProcessedURL(key), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Poster-Outcome"); got != string(processor.OutcomeCached) {
		t.Errorf("X-Poster-Outcome = %q", got)
	}
	if !bytes.Equal(rec.Body.Bytes(), data) {
		t.Error("body differs from cache entry")
	}
}

func TestGetProcessedPosterRegistryFailure(t *testing.T) {
	fp := &fakeProcessor{}
	_, router := newTestHandler(t, &HandlerConfig{Processor: fp, Registry: failingRegistry{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProcessedURL("0123456789abcdef"), nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if fp.calls != 0 {
		t.Error("processor called without a source URL")
	}
}

func TestSimilarPostersRegistryFailure(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{},
		Registry:  failingRegistry{},
		Similar:   &fakeSimilar{},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posters/0123456789abcdef/similar", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "registry unavailable") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestSimilarPostersUsesCacheWithoutRegistry(t *testing.T) {
	key := "0123456789abcdef"
	fp := &fakeProcessor{cached: map[string][]byte{key: jpegBytes(t)}}
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: fp,
		Similar:   &fakeSimilar{hits: []storage.SimilarPoster{{Key: "other", Score: 0.9}}},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posters/"+key+"/similar", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if fp.calls != 0 {
		t.Error("cached poster was reprocessed")
	}
	if !strings.Contains(rec.Body.String(), `"other"`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestGetProcessedPosterInvalidKey(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{Processor: &fakeProcessor{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/processed-poster/bad.key", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetProcessedPosterRedirectsOnPipelineFailure(t *testing.T) {
	const posterURL = "https://example.com/p.jpg"
	reg := storage.NewMemoryRegistry()
	key := storage.KeyFor(posterURL)
	reg.Register(context.Background(), key, posterURL)

	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{err: errors.NewPipelineError(key, posterURL, fmt.Errorf("timeout"))},
		Registry:  reg,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, ProcessedURL(key), nil))
	if rec.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != posterURL {
		t.Errorf("Location = %q", loc)
	}
}

func TestSimilarPosters(t *testing.T) {
	const posterURL = "https://example.com/p.jpg"
	reg := storage.NewMemoryRegistry()
	key := storage.KeyFor(posterURL)
	reg.Register(context.Background(), key, posterURL)

	similar := &fakeSimilar{hits: []storage.SimilarPoster{
		{Key: key, URL: posterURL, Score: 1},
		{Key: "other1", URL: "https://example.com/o1.jpg", Score: 0.9},
		{Key: "other2", URL: "https://example.com/o2.jpg", Score: 0.8},
	}}
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{outcome: processor.OutcomeCached, data: jpegBytes(t)},
		Registry:  reg,
		Similar:   similar,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posters/"+key+"/similar?limit=1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Similar []struct {
			Key string `json:"key"`
		} `json:"similar"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Similar) != 1 || resp.Similar[0].Key != "other1" {
		t.Errorf("similar = %+v, want only other1", resp.Similar)
	}
}

func TestSimilarPostersWithoutIndex(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{Processor: &fakeProcessor{}})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/posters/abc/similar", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{},
		Checks: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return nil },
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "healthy" || resp.Checks["redis"] != "ok" {
		t.Errorf("unexpected health %+v", resp)
	}
}

func TestHealthDegraded(t *testing.T) {
	_, router := newTestHandler(t, &HandlerConfig{
		Processor: &fakeProcessor{},
		Checks: map[string]HealthCheck{
			"postgres": func(ctx context.Context) error { return fmt.Errorf("connection refused") },
		},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}
