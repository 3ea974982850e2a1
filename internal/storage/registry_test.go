package storage

import (
	"context"
	"testing"

	"github.com/adverant/nexus/poster-worker/internal/errors"
)

func TestMemoryRegistry(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()
	url := "https://example.com/p.jpg"
	key := KeyFor(url)

	if _, ok, err := r.Lookup(ctx, key); ok || err != nil {
		t.Fatalf("Lookup on empty registry = %v, %v", ok, err)
	}
	if err := r.Register(ctx, key, url); err != nil {
		t.Fatalf("Register: %v", err)
	}
	got, ok, err := r.Lookup(ctx, key)
	if err != nil || !ok || got != url {
		t.Fatalf("Lookup = %q, %v, %v", got, ok, err)
	}
}

func TestMemoryRegistryRejects(t *testing.T) {
	r := NewMemoryRegistry()
	ctx := context.Background()

	if err := r.Register(ctx, "../x", "https://example.com/p.jpg"); !errors.Is(err, errors.ErrorInvalidKey) {
		t.Errorf("invalid key accepted: %v", err)
	}
	if err := r.Register(ctx, "abc", "  "); err == nil {
		t.Error("blank URL accepted")
	}
}
