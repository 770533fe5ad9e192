package jobstore

import (
	"context"
	"errors"
	"testing"

	"media-ingest/internal/model"
)

func TestFSStorePutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	rec := model.NewTranscodeJob("/data/in.mkv", "user-1")
	rec.Status = model.StatusCompleted
	rec.Percent = 100
	rec.StreamURL = "https://cdn.example/m/index.m3u8"
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !ok {
		t.Fatalf("record not found")
	}
	if got != rec {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, rec)
	}
}

func TestFSStoreSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	rec := model.NewTranscodeJob("/data/in.mkv", "user-2")
	rec.Status = model.StatusCompleted
	rec.Percent = 100
	rec.StreamURL = "https://cdn.example/m/index.m3u8"
	if err := store.Put(ctx, rec); err != nil {
		t.Fatal(err)
	}

	// A fresh store over the same directory stands in for a restarted process.
	reopened, err := NewFSStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	got, ok, err := reopened.Get(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatalf("record lost across restart")
	}
	if got.StreamURL != rec.StreamURL || got.Percent != 100 {
		t.Fatalf("stale record after restart: %+v", got)
	}
}

func TestFSStoreGetMissingID(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_, ok, err := store.Get(context.Background(), "no-such-id")
	if err != nil {
		t.Fatalf("missing id should not error: %v", err)
	}
	if ok {
		t.Fatalf("expected not found")
	}
}

func TestFSStoreRejectsPathEscapingIDs(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"", "../evil", `..\evil`, "a/b"} {
		rec := model.Record{ID: id, Kind: model.KindTranscode, Status: model.StatusInitial}
		err := store.Put(context.Background(), rec)
		var perr *PersistenceError
		if err == nil || !errors.As(err, &perr) {
			t.Fatalf("id %q: expected persistence error, got %v", id, err)
		}
	}
}
