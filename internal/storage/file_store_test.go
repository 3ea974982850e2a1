package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

func TestFileStoreWriteRead(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	s := NewFileStore(dir, nil)
	ctx := context.Background()
	key := KeyFor("https://example.com/p.jpg")

	ok, err := s.Exists(ctx, key)
	if err != nil || ok {
		t.Fatalf("Exists on empty store = %v, %v", ok, err)
	}
	if _, err := s.Read(ctx, key); !errors.Is(err, errors.ErrorNotFound) {
		t.Fatalf("Read missing = %v, want NOT_FOUND", err)
	}

	if err := s.Write(ctx, key, []byte("jpeg-bytes")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if ok, _ := s.Exists(ctx, key); !ok {
		t.Fatal("entry missing after write")
	}
	data, err := s.Read(ctx, key)
	if err != nil || string(data) != "jpeg-bytes" {
		t.Fatalf("Read = %q, %v", data, err)
	}

	if want := filepath.Join(dir, key+".jpg"); s.Path(key) != want {
		t.Errorf("Path = %q, want %q", s.Path(key), want)
	}
	if _, err := os.Stat(s.Path(key)); err != nil {
		t.Errorf("entry file: %v", err)
	}
}

func TestFileStoreNeverRewrites(t *testing.T) {
	s := NewFileStore(t.TempDir(), nil)
	ctx := context.Background()
	key := "poster"

	if err := s.Write(ctx, key, []byte("first")); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(ctx, key, []byte("second")); err != nil {
		t.Fatal(err)
	}
	data, _ := s.Read(ctx, key)
	if string(data) != "first" {
		t.Errorf("entry rewritten: %q", data)
	}
}

func TestFileStoreConcurrentWrites(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	key := "contended"
	payload := bytes.Repeat([]byte{0xAB}, 64<<10)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Separate stores stand in for separate worker processes.
			if err := NewFileStore(dir, nil).Write(ctx, key, payload); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Write: %v", err)
	}

	data, err := NewFileStore(dir, nil).Read(ctx, key)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, payload) {
		t.Errorf("entry corrupted: %d bytes", len(data))
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestFileStoreRejectsInvalidKeys(t *testing.T) {
	dir := t.TempDir()
	s := NewFileStore(dir, nil)
	ctx := context.Background()

	for _, key := range []string{"../escape", "", "a/b"} {
		if err := s.Write(ctx, key, []byte("x")); !errors.Is(err, errors.ErrorInvalidKey) {
			t.Errorf("Write(%q) = %v", key, err)
		}
		if _, err := s.Exists(ctx, key); !errors.Is(err, errors.ErrorInvalidKey) {
			t.Errorf("Exists(%q) = %v", key, err)
		}
		if _, err := s.Read(ctx, key); !errors.Is(err, errors.ErrorInvalidKey) {
			t.Errorf("Read(%q) = %v", key, err)
		}
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.jpg")); err == nil {
		t.Error("write escaped the cache directory")
	}
}

func TestFileStoreUnwritableDirectory(t *testing.T) {
	base := t.TempDir()
	blocker := filepath.Join(base, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewFileStore(filepath.Join(blocker, "cache"), nil)
	err := s.Write(context.Background(), "k", []byte("x"))
	if !errors.Is(err, errors.ErrorCacheIOFailed) {
		t.Fatalf("Write under a file = %v, want CACHE_IO_FAILED", err)
	}
}

func ExampleFileStore_Path() {
	s := NewFileStore("/var/cache/posters", nil)
	fmt.Println(s.Path("6c1d6a7b"))
	// Output: /var/cache/posters/6c1d6a7b.jpg
}
