/**
 * Poster cache store
 *
 * Content-addressed persistence for processed posters. Entries are named by
 * a digest of the source URL, written once and never rewritten.
 */

package storage

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"image"
	"regexp"
	"time"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

// EntryExtension is the file extension (and format) of cached posters.
const EntryExtension = "jpg"

// EntryContentType is the MIME type of cached posters.
const EntryContentType = "image/jpeg"

// Pipeline outcomes as recorded in the ledger and the index.
const (
	OutcomeCached    = "cached"
	OutcomeProcessed = "processed"
	OutcomeOriginal  = "original"
	OutcomeFailed    = "failed"
)

// Store is a key-value store of encoded processed posters.
type Store interface {
	// Exists reports whether an entry for key has been written.
	Exists(ctx context.Context, key string) (bool, error)
	// Read returns the entry bytes, or a NOT_FOUND error if absent.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write persists data under key. Writing a key that already exists is a
	// no-op; readers never observe partially written data.
	Write(ctx context.Context, key string, data []byte) error
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

// ValidateKey rejects keys that could escape the cache namespace.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) {
		return errors.NewInvalidKeyError(key)
	}
	return nil
}

// KeyFor is the canonical cache key of a poster URL: the lowercase hex MD5 of
// the URL string exactly as given.
func KeyFor(posterURL string) string {
	sum := md5.Sum([]byte(posterURL))
	return hex.EncodeToString(sum[:])
}

// PosterRecord describes one pipeline run for the ledger and the index.
type PosterRecord struct {
	Key          string
	URL          string
	Outcome      string
	Regions      int
	Detections   int
	Duration     time.Duration
	ErrorCode    string
	ErrorMessage string
	Image        image.Image // Result raster; nil when unavailable
}
