/**
 * Image Codec for the Poster Worker
 *
 * JPEG encoding for cache entries and HTTP responses.
 */

package processor

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// DefaultJPEGQuality matches the quality posters were historically cached at.
const DefaultJPEGQuality = 95

// EncodeJPEG encodes img for the cache and for HTTP responses.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.NewEncodeError("jpeg", err)
	}
	return buf.Bytes(), nil
}
