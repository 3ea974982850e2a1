package storage

import (
	"context"
	"fmt"
	"image"
	"strings"
	"testing"
)

type fakeLedger struct {
	records []*PosterRecord
	err     error
}

func (l *fakeLedger) RecordRun(ctx context.Context, record *PosterRecord) error {
	l.records = append(l.records, record)
	return l.err
}

type fakeIndex struct {
	keys []string
	err  error
}

func (i *fakeIndex) IndexPoster(ctx context.Context, key, posterURL, outcome string, img image.Image) error {
	i.keys = append(i.keys, key)
	return i.err
}

func TestStorageManagerRecordsProcessed(t *testing.T) {
	ledger, index := &fakeLedger{}, &fakeIndex{}
	sm := NewStorageManager(ledger, index, nil)

	rec := &PosterRecord{Key: "k1", URL: "u", Outcome: OutcomeProcessed, Image: image.NewRGBA(image.Rect(0, 0, 4, 4))}
	if err := sm.RecordPoster(context.Background(), rec); err != nil {
		t.Fatalf("RecordPoster: %v", err)
	}
	if len(ledger.records) != 1 || len(index.keys) != 1 || index.keys[0] != "k1" {
		t.Errorf("ledger=%d index=%v", len(ledger.records), index.keys)
	}
}

func TestStorageManagerSkipsIndexForFallbacks(t *testing.T) {
	ledger, index := &fakeLedger{}, &fakeIndex{}
	sm := NewStorageManager(ledger, index, nil)
	ctx := context.Background()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for _, rec := range []*PosterRecord{
		{Key: "a", Outcome: OutcomeOriginal, Image: img},
		{Key: "b", Outcome: OutcomeFailed},
		{Key: "c", Outcome: OutcomeProcessed},
	} {
		if err := sm.RecordPoster(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if len(ledger.records) != 3 {
		t.Errorf("ledger got %d records, want 3", len(ledger.records))
	}
	if len(index.keys) != 0 {
		t.Errorf("index got %v, want none", index.keys)
	}
}

func TestStorageManagerAttemptsEveryStore(t *testing.T) {
	ledger := &fakeLedger{err: fmt.Errorf("db down")}
	index := &fakeIndex{err: fmt.Errorf("qdrant down")}
	sm := NewStorageManager(ledger, index, nil)

	rec := &PosterRecord{Key: "k", Outcome: OutcomeProcessed, Image: image.NewRGBA(image.Rect(0, 0, 1, 1))}
	err := sm.RecordPoster(context.Background(), rec)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "db down") || !strings.Contains(err.Error(), "qdrant down") {
		t.Errorf("error does not name both failures: %v", err)
	}
	if len(index.keys) != 1 {
		t.Error("index not attempted after ledger failure")
	}
}

func TestStorageManagerWithoutStores(t *testing.T) {
	sm := NewStorageManager(nil, nil, nil)
	if err := sm.RecordPoster(context.Background(), &PosterRecord{Key: "k", Outcome: OutcomeProcessed}); err != nil {
		t.Fatalf("RecordPoster: %v", err)
	}
	if err := sm.RecordPoster(context.Background(), nil); err == nil {
		t.Error("nil record accepted")
	}
}
