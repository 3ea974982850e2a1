/**
 * Poster Processor for the Poster Worker
 *
 * Orchestrates burned-in text removal:
 * - Cache lookup by content-addressed key (fast path, no network)
 * - Fetch and decode the poster
 * - Text detection through the lazily initialized OCR engine
 * - Mask building and Telea inpainting
 * - Cache write, with fallback to the untouched original on any failure
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/logging"
	"github.com/adverant/nexus/poster-worker/internal/storage"
)

// Outcome says how a ProcessResult was produced
type Outcome string

const (
	OutcomeCached    Outcome = storage.OutcomeCached    // Served from the cache
	OutcomeProcessed Outcome = storage.OutcomeProcessed // Text removed and cached
	OutcomeOriginal  Outcome = storage.OutcomeOriginal  // Pipeline failed, original served
)

// Recorder is told about every pipeline run that did not hit the cache.
type Recorder interface {
	RecordPoster(ctx context.Context, record *storage.PosterRecord) error
}

// Tuning holds the numeric knobs of the pipeline
type Tuning struct {
	ConfidenceThreshold float64
	Padding             int
	InpaintRadius       int
	JPEGQuality         int
}

// DefaultTuning returns the stock pipeline settings.
func DefaultTuning() Tuning {
	return Tuning{
		ConfidenceThreshold: DefaultConfidenceThreshold,
		Padding:             DefaultMaskPadding,
		InpaintRadius:       DefaultInpaintRadius,
		JPEGQuality:         DefaultJPEGQuality,
	}
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Fetcher  Fetcher
	Detector Detector
	Store    storage.Store
	Recorder Recorder       // Optional
	Logger   *logging.Logger // Optional
	Tuning   *Tuning        // Optional, DefaultTuning when nil
}

// ProcessResult represents the processing result
type ProcessResult struct {
	Key        string
	URL        string
	Data       []byte // JPEG bytes
	Outcome    Outcome
	Regions    []Region
	Detections int
	Duration   time.Duration
	Err        error // Downgraded failure when Outcome is OutcomeOriginal
}

// Analysis is the detection half of the pipeline, for inspection.
type Analysis struct {
	Raster     *image.RGBA
	Detections []Detection
	Regions    []Region
	Mask       *image.Gray
	Duration   time.Duration
}

// PosterProcessor runs the text-removal pipeline. It is safe for concurrent
// use.
type PosterProcessor struct {
	fetcher  Fetcher
	detector Detector
	store    storage.Store
	recorder Recorder
	logger   *logging.Logger
	tuning   Tuning
}

// NewPosterProcessor creates a new poster processor
func NewPosterProcessor(cfg *ProcessorConfig) (*PosterProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}

	if cfg.Detector == nil {
		return nil, fmt.Errorf("detector is required")
	}

	if cfg.Store == nil {
		return nil, fmt.Errorf("cache store is required")
	}

	tuning := DefaultTuning()
	if cfg.Tuning != nil {
		tuning = *cfg.Tuning
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	return &PosterProcessor{
		fetcher:  cfg.Fetcher,
		detector: cfg.Detector,
		store:    cfg.Store,
		recorder: cfg.Recorder,
		logger:   logger,
		tuning:   tuning,
	}, nil
}

// Process returns the text-free JPEG for the poster at posterURL, cached
// under key. The only error outcomes are an invalid key and PIPELINE_FAILED;
// every other failure is downgraded to serving the original poster.
func (p *PosterProcessor) Process(ctx context.Context, posterURL, key string) (*ProcessResult, error) {
	start := time.Now()
	if err := storage.ValidateKey(key); err != nil {
		return nil, err
	}
	log := p.logger.Named("Poster " + key)

	// Step 1: Cache lookup
	if data, ok := p.readCached(ctx, key, log); ok {
		log.Debug("Step 1: Cache hit", "bytes", len(data))
		return &ProcessResult{
			Key:      key,
			URL:      posterURL,
			Data:     data,
			Outcome:  OutcomeCached,
			Duration: time.Since(start),
		}, nil
	}

	// Step 2: Fetch and decode
	log.Info("Step 2: Fetching poster", "url", posterURL)
	raster, err := p.fetcher.Fetch(ctx, posterURL)
	if err != nil {
		return p.fallback(ctx, log, posterURL, key, nil, nil, 0, err, start)
	}

	// Step 3: Detect, mask, inpaint
	result, detections, regions, err := p.removeText(ctx, log, raster)
	if err != nil {
		return p.fallback(ctx, log, posterURL, key, raster, nil, detections, err, start)
	}

	// Step 4: Encode and cache
	data, err := EncodeJPEG(result, p.tuning.JPEGQuality)
	if err != nil {
		return p.fallback(ctx, log, posterURL, key, raster, regions, detections, err, start)
	}
	if err := p.store.Write(ctx, key, data); err != nil {
		return p.fallback(ctx, log, posterURL, key, raster, regions, detections, err, start)
	}

	res := &ProcessResult{
		Key:        key,
		URL:        posterURL,
		Data:       data,
		Outcome:    OutcomeProcessed,
		Regions:    regions,
		Detections: detections,
		Duration:   time.Since(start),
	}
	log.Info("Step 4: Poster cached", "regions", len(regions), "bytes", len(data), "duration", res.Duration)

	p.record(ctx, log, &storage.PosterRecord{
		Key:        key,
		URL:        posterURL,
		Outcome:    storage.OutcomeProcessed,
		Regions:    len(regions),
		Detections: detections,
		Duration:   res.Duration,
		Image:      result,
	})
	return res, nil
}

// Cached returns the cache entry for key without running the pipeline. It
// needs no source URL, so entries stay servable after the URL is forgotten.
func (p *PosterProcessor) Cached(ctx context.Context, key string) ([]byte, bool) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, false
	}
	return p.readCached(ctx, key, p.logger.Named("Poster "+key))
}

// Analyze fetches posterURL and reports what would be removed from it,
// without inpainting or touching the cache.
func (p *PosterProcessor) Analyze(ctx context.Context, posterURL string) (*Analysis, error) {
	start := time.Now()
	raster, err := p.fetcher.Fetch(ctx, posterURL)
	if err != nil {
		return nil, err
	}

	detections, err := p.detect(ctx, raster)
	if err != nil {
		return nil, err
	}

	mask, regions := BuildMask(raster.Bounds(), detections, p.tuning.ConfidenceThreshold, p.tuning.Padding)
	return &Analysis{
		Raster:     raster,
		Detections: detections,
		Regions:    regions,
		Mask:       mask,
		Duration:   time.Since(start),
	}, nil
}

// readCached reports a usable cache entry. Store failures are treated as a
// miss so the pipeline can still serve the request.
func (p *PosterProcessor) readCached(ctx context.Context, key string, log *logging.Logger) ([]byte, bool) {
	exists, err := p.store.Exists(ctx, key)
	if err != nil {
		log.Warn("Step 1: Cache lookup failed, treating as miss", "error", err)
		return nil, false
	}
	if !exists {
		return nil, false
	}

	data, err := p.store.Read(ctx, key)
	if err != nil {
		log.Warn("Step 1: Cache read failed, treating as miss", "error", err)
		return nil, false
	}
	return data, true
}

// removeText runs detection, mask building and inpainting. A panic in any
// of them is returned as an error.
func (p *PosterProcessor) removeText(ctx context.Context, log *logging.Logger, raster *image.RGBA) (result *image.RGBA, detections int, regions []Region, err error) {
	dets, err := p.detect(ctx, raster)
	if err != nil {
		return nil, 0, nil, err
	}
	detections = len(dets)

	defer func() {
		if r := recover(); r != nil {
			result, regions = nil, nil
			err = errors.NewInpaintError(fmt.Sprintf("panic during inpainting: %v", r))
		}
	}()

	mask, regions := BuildMask(raster.Bounds(), dets, p.tuning.ConfidenceThreshold, p.tuning.Padding)
	log.Info("Step 3: Text detected", "detections", detections, "regions", len(regions))

	// Nothing accepted: the original raster is the result.
	if len(regions) == 0 {
		return raster, detections, nil, nil
	}

	result, err = Inpaint(raster, mask, p.tuning.InpaintRadius)
	if err != nil {
		return nil, detections, nil, err
	}
	return result, detections, regions, nil
}

// detect calls the detector with the same error and panic handling as the
// pipeline.
func (p *PosterProcessor) detect(ctx context.Context, raster *image.RGBA) (dets []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			dets, err = nil, errors.NewDetectionError("detector", fmt.Errorf("panic: %v", r))
		}
	}()
	dets, err = p.detector.Detect(ctx, raster)
	if err != nil && errors.CodeOf(err) == "" {
		err = errors.NewDetectionError("detector", err)
	}
	return dets, err
}

// fallback serves the original poster after a pipeline failure. raster is
// the already-decoded original, or nil when fetching it failed, in which
// case it is fetched once more. Fallback results are not cached.
func (p *PosterProcessor) fallback(ctx context.Context, log *logging.Logger, posterURL, key string, raster *image.RGBA, regions []Region, detections int, cause error, start time.Time) (*ProcessResult, error) {
	log.Warn("Pipeline failed, falling back to original", "code", errors.CodeOf(cause), "error", cause)

	if raster == nil {
		var err error
		raster, err = p.fetcher.Fetch(ctx, posterURL)
		if err != nil {
			log.Error("Original poster unavailable", "error", err)
			return nil, p.fail(ctx, posterURL, key, detections, cause, start)
		}
	}

	data, err := EncodeJPEG(raster, p.tuning.JPEGQuality)
	if err != nil {
		log.Error("Failed to encode original poster", "error", err)
		return nil, p.fail(ctx, posterURL, key, detections, cause, start)
	}

	res := &ProcessResult{
		Key:        key,
		URL:        posterURL,
		Data:       data,
		Outcome:    OutcomeOriginal,
		Regions:    regions,
		Detections: detections,
		Duration:   time.Since(start),
		Err:        cause,
	}

	p.record(ctx, log, &storage.PosterRecord{
		Key:          key,
		URL:          posterURL,
		Outcome:      storage.OutcomeOriginal,
		Regions:      len(regions),
		Detections:   detections,
		Duration:     res.Duration,
		ErrorCode:    string(errors.CodeOf(cause)),
		ErrorMessage: cause.Error(),
	})
	return res, nil
}

func (p *PosterProcessor) fail(ctx context.Context, posterURL, key string, detections int, cause error, start time.Time) error {
	pipelineErr := errors.NewPipelineError(key, posterURL, cause)
	p.record(ctx, p.logger, &storage.PosterRecord{
		Key:          key,
		URL:          posterURL,
		Outcome:      storage.OutcomeFailed,
		Detections:   detections,
		Duration:     time.Since(start),
		ErrorCode:    string(errors.CodeOf(cause)),
		ErrorMessage: cause.Error(),
	})
	return pipelineErr
}

func (p *PosterProcessor) record(ctx context.Context, log *logging.Logger, rec *storage.PosterRecord) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.RecordPoster(ctx, rec); err != nil {
		log.Warn("Failed to record poster run", "error", err)
	}
}
