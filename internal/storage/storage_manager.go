/**
 * Storage Manager for the Poster Worker
 *
 * Coordinates the optional bookkeeping stores: the PostgreSQL ledger of
 * pipeline runs and the Qdrant similar-poster index.
 */

package storage

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/adverant/nexus/poster-worker/internal/logging"
)

// Ledger records pipeline runs
type Ledger interface {
	RecordRun(ctx context.Context, record *PosterRecord) error
}

// PosterIndex indexes processed posters
type PosterIndex interface {
	IndexPoster(ctx context.Context, key, posterURL, outcome string, img image.Image) error
}

// StorageManager fans records out to the ledger and the index
type StorageManager struct {
	ledger Ledger
	index  PosterIndex
	logger *logging.Logger
}

// NewStorageManager creates a storage manager; ledger and index may be nil.
func NewStorageManager(ledger Ledger, index PosterIndex, logger *logging.Logger) *StorageManager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StorageManager{ledger: ledger, index: index, logger: logger}
}

// RecordPoster writes record to every configured store. The index only
// receives processed posters that carry an image. All stores are attempted
// even if one fails.
func (sm *StorageManager) RecordPoster(ctx context.Context, record *PosterRecord) error {
	if record == nil {
		return fmt.Errorf("record is required")
	}

	var failures []string

	if sm.ledger != nil {
		if err := sm.ledger.RecordRun(ctx, record); err != nil {
			sm.logger.Warn("ledger write failed", "key", record.Key, "error", err)
			failures = append(failures, err.Error())
		}
	}

	if sm.index != nil && record.Image != nil && record.Outcome == OutcomeProcessed {
		if err := sm.index.IndexPoster(ctx, record.Key, record.URL, record.Outcome, record.Image); err != nil {
			sm.logger.Warn("poster index write failed", "key", record.Key, "error", err)
			failures = append(failures, err.Error())
		}
	}

	if len(failures) > 0 {
		return fmt.Errorf("failed to record poster %s: %s", record.Key, strings.Join(failures, "; "))
	}
	return nil
}
