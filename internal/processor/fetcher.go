/**
 * Image Fetcher for the Poster Worker
 *
 * Downloads a poster over HTTP with a timeout and size cap and decodes it
 * to an opaque RGBA raster.
 */

package processor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"time"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

const (
	defaultFetchTimeout  = 10 * time.Second
	defaultMaxImageBytes = 20 * 1024 * 1024
	fetchUserAgent       = "poster-worker/1.0"
)

// Fetcher retrieves a poster and decodes it into an opaque RGBA raster.
type Fetcher interface {
	Fetch(ctx context.Context, imageURL string) (*image.RGBA, error)
}

// HTTPFetcher downloads images over HTTP(S) with a bounded timeout.
type HTTPFetcher struct {
	httpClient *http.Client
	timeout    time.Duration
	maxBytes   int64
}

// NewHTTPFetcher creates a fetcher. Zero values select the defaults
// (10s timeout, 20MB body limit).
func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxImageBytes
	}
	return &HTTPFetcher{
		httpClient: &http.Client{Timeout: timeout},
		timeout:    timeout,
		maxBytes:   maxBytes,
	}
}

// Fetch downloads imageURL and decodes the body. Network, status and size
// failures are FETCH_FAILED; an undecodable body is DECODE_FAILED.
func (f *HTTPFetcher) Fetch(ctx context.Context, imageURL string) (*image.RGBA, error) {
	data, err := f.download(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewDecodeError(imageURL, err)
	}

	return toOpaqueRGBA(img), nil
}

func (f *HTTPFetcher) download(ctx context.Context, imageURL string) ([]byte, error) {
	u, err := url.Parse(imageURL)
	if err != nil {
		return nil, errors.NewFetchError(imageURL, 0, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewFetchError(imageURL, 0, fmt.Errorf("unsupported URL scheme %q", u.Scheme))
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errors.NewFetchError(imageURL, 0, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewFetchError(imageURL, 0, err)
	}
	defer resp.Body.Close()

	// Check response status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.NewFetchError(imageURL, resp.StatusCode, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	if resp.ContentLength > f.maxBytes {
		return nil, errors.NewFetchError(imageURL, resp.StatusCode,
			fmt.Errorf("image size exceeds maximum: %d > %d bytes", resp.ContentLength, f.maxBytes))
	}

	// Read one byte past the limit so an oversize body without
	// Content-Length is still detected.
	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, errors.NewFetchError(imageURL, resp.StatusCode, err)
	}
	if int64(len(data)) > f.maxBytes {
		return nil, errors.NewFetchError(imageURL, resp.StatusCode,
			fmt.Errorf("image size exceeds maximum of %d bytes", f.maxBytes))
	}

	return data, nil
}

// toOpaqueRGBA copies img into a fresh RGBA at origin (0,0), composited over
// black so every pixel has alpha 255.
func toOpaqueRGBA(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.Black, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Over)
	return dst
}
