/**
 * File Cache Store for the Poster Worker
 *
 * Keeps processed posters as files in a directory, written atomically under
 * a per-key file lock.
 */

package storage

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/adverant/nexus/poster-worker/internal/errors"
	"github.com/adverant/nexus/poster-worker/internal/logging"
)

const lockRetryDelay = 25 * time.Millisecond

// FileStore keeps one <key>.jpg file per entry in a directory. Writes go to a
// temp file that is renamed into place under a per-key file lock, so readers
// only ever see complete files, across goroutines and processes.
type FileStore struct {
	dir    string
	logger *logging.Logger
}

// NewFileStore creates a store rooted at dir. The directory is created on
// first write.
func NewFileStore(dir string, logger *logging.Logger) *FileStore {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &FileStore{dir: dir, logger: logger}
}

// Path returns the file an entry for key is stored in.
func (s *FileStore) Path(key string) string {
	return filepath.Join(s.dir, key+"."+EntryExtension)
}

func (s *FileStore) lockPath(key string) string {
	return filepath.Join(s.dir, ".locks", key+".lock")
}

// Exists reports whether the entry file is present.
func (s *FileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ValidateKey(key); err != nil {
		return false, err
	}
	_, err := os.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, errors.NewCacheIOError(key, "stat", err)
}

// Read returns the entry contents.
func (s *FileStore) Read(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NewNotFoundError(key)
		}
		return nil, errors.NewCacheIOError(key, "read", err)
	}
	return data, nil
}

// Write persists data unless an entry already exists.
func (s *FileStore) Write(ctx context.Context, key string, data []byte) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	// Ensure cache and lock directories exist
	if err := os.MkdirAll(filepath.Dir(s.lockPath(key)), 0o755); err != nil {
		return errors.NewCacheIOError(key, "mkdir", err)
	}

	lock := flock.New(s.lockPath(key))
	locked, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return errors.NewCacheIOError(key, "lock", err)
	}
	if !locked {
		return errors.NewCacheIOError(key, "lock", fmt.Errorf("lock %s not acquired", s.lockPath(key)))
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("failed to release cache lock", "key", key, "error", err)
		}
	}()

	finalPath := s.Path(key)
	if _, err := os.Stat(finalPath); err == nil {
		s.logger.Debug("cache entry already present, skipping write", "key", key)
		return nil
	}

	// Write atomically via temp file
	tmp, err := os.CreateTemp(s.dir, "."+key+".*.tmp")
	if err != nil {
		return errors.NewCacheIOError(key, "create temp", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return errors.NewCacheIOError(key, "write temp", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return errors.NewCacheIOError(key, "sync temp", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewCacheIOError(key, "close temp", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return errors.NewCacheIOError(key, "chmod temp", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath) // cleanup on failure
		return errors.NewCacheIOError(key, "rename", err)
	}

	s.logger.Debug("cache entry written", "key", key, "bytes", len(data), "path", finalPath)
	return nil
}
