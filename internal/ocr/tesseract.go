/**
 * Tesseract OCR - Text detector engine for the Poster Worker
 *
 * Wraps a single gosseract client. Loading the language data is the
 * expensive part, so the engine is built once behind processor.LazyDetector
 * and reused for every poster.
 */

package ocr

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/processor"
)

// EngineName identifies the Tesseract engine in errors and logs.
const EngineName = "tesseract"

var _ processor.Detector = (*Engine)(nil)

// Engine detects text lines with Tesseract
type Engine struct {
	mu     sync.Mutex // gosseract clients are not safe for concurrent use
	client *gosseract.Client
}

// New creates and warms up a Tesseract engine for languages (default eng).
func New(languages []string) (*Engine, error) {
	if len(languages) == 0 {
		languages = []string{"eng"}
	}

	client := gosseract.NewClient()
	if err := client.SetLanguage(languages...); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set languages %s: %w", strings.Join(languages, "+"), err)
	}

	// Posters carry scattered text at arbitrary positions.
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}

	e := &Engine{client: client}
	if err := e.warmUp(); err != nil {
		client.Close()
		return nil, err
	}
	return e, nil
}

// NewFactory returns a factory suitable for processor.NewLazyDetector.
func NewFactory(languages []string) processor.DetectorFactory {
	return func() (processor.Detector, error) {
		return New(languages)
	}
}

// warmUp forces Tesseract to load its language data so a broken install is
// reported at initialization rather than on the first poster.
func (e *Engine) warmUp() error {
	blank := image.NewGray(image.Rect(0, 0, 32, 32))
	for i := range blank.Pix {
		blank.Pix[i] = 255
	}

	data, err := encodePNG(blank)
	if err != nil {
		return err
	}
	if err := e.client.SetImageFromBytes(data); err != nil {
		return fmt.Errorf("failed to set warm-up image: %w", err)
	}
	if _, err := e.client.Text(); err != nil {
		return fmt.Errorf("tesseract initialization failed: %w", err)
	}
	return nil
}

// Detect returns one detection per recognized text line.
func (e *Engine) Detect(ctx context.Context, img image.Image) ([]processor.Detection, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.NewDetectionError(EngineName, err)
	}

	data, err := encodePNG(img)
	if err != nil {
		return nil, errors.NewDetectionError(EngineName, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.client.SetImageFromBytes(data); err != nil {
		return nil, errors.NewDetectionError(EngineName, fmt.Errorf("failed to set image: %w", err))
	}

	boxes, err := e.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, errors.NewDetectionError(EngineName, fmt.Errorf("failed to get bounding boxes: %w", err))
	}

	return toDetections(boxes, img.Bounds().Min), nil
}

// Close releases the Tesseract client
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.client.Close()
}

// toDetections converts Tesseract boxes, whose coordinates are relative to
// the encoded image, back into img coordinates. Empty lines are dropped.
func toDetections(boxes []gosseract.BoundingBox, origin image.Point) []processor.Detection {
	detections := make([]processor.Detection, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		r := box.Box.Add(origin)
		detections = append(detections, processor.Detection{
			Quad:       processor.QuadFromRect(float64(r.Min.X), float64(r.Min.Y), float64(r.Max.X), float64(r.Max.Y)),
			Text:       text,
			Confidence: normalizeConfidence(box.Confidence),
		})
	}
	return detections
}

// normalizeConfidence maps Tesseract's 0-100 scale to 0-1.
func normalizeConfidence(c float64) float64 {
	c /= 100
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode image for OCR: %w", err)
	}
	return buf.Bytes(), nil
}
