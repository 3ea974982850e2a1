/**
 * Text Detector for the Poster Worker
 *
 * Detector port plus a lazily built, once-only engine wrapper shared by
 * every pipeline run.
 */

package processor

import (
	"context"
	"fmt"
	"image"
	"io"
	"sync"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// Detector finds text regions in a raster. An empty result means no text and
// is not an error.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]Detection, error)
}

// DetectorFactory builds a heavyweight detector engine, e.g. by loading model
// weights.
type DetectorFactory func() (Detector, error)

// LazyDetector defers engine construction to the first Detect call and
// performs it exactly once, however many goroutines race on first use. A
// failed construction is remembered and reported to every caller.
type LazyDetector struct {
	name    string
	factory DetectorFactory

	once    sync.Once
	initErr error

	mu     sync.RWMutex // guards engine against Close
	engine Detector
}

// NewLazyDetector wraps factory; name identifies the engine in errors.
func NewLazyDetector(name string, factory DetectorFactory) *LazyDetector {
	return &LazyDetector{name: name, factory: factory}
}

// Init forces engine construction. Safe to call any number of times.
func (l *LazyDetector) Init() error {
	l.once.Do(func() {
		engine, err := l.factory()
		if err != nil {
			l.initErr = errors.NewDetectorInitError(l.name, err)
			return
		}
		if engine == nil {
			l.initErr = errors.NewDetectorInitError(l.name, nil)
			return
		}
		l.mu.Lock()
		l.engine = engine
		l.mu.Unlock()
	})
	return l.initErr
}

// Detect initializes the engine if needed and delegates to it.
func (l *LazyDetector) Detect(ctx context.Context, img image.Image) ([]Detection, error) {
	if err := l.Init(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.engine == nil {
		return nil, errors.NewDetectorInitError(l.name, fmt.Errorf("detector closed"))
	}
	return l.engine.Detect(ctx, img)
}

// Close releases the engine if it was built and implements io.Closer. It
// never builds one; Detect fails with DETECTOR_INIT_FAILED afterwards.
func (l *LazyDetector) Close() error {
	// Wait for an in-flight construction, or prevent a later one.
	l.once.Do(func() {})

	l.mu.Lock()
	engine := l.engine
	l.engine = nil
	l.mu.Unlock()

	if c, ok := engine.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
