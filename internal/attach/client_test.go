package attach

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"media-ingest/internal/packer"
)

func writeTestFiles(t *testing.T, names ...string) packer.Batch {
	t.Helper()
	dir := t.TempDir()
	var batch packer.Batch
	for _, name := range names {
		path := filepath.Join(dir, name)
		content := []byte("payload-" + name)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatal(err)
		}
		batch = append(batch, packer.File{Path: path, Size: int64(len(content))})
	}
	return batch
}

func descriptorHost(t *testing.T, reorder bool) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		parts := r.MultipartForm.File["files[]"]
		descs := make([]Descriptor, 0, len(parts))
		for i, p := range parts {
			descs = append(descs, Descriptor{
				ID:       fmt.Sprintf("att-%d", i),
				Filename: p.Filename,
				URL:      "https://host.example/att/" + p.Filename,
				Size:     p.Size,
			})
		}
		if reorder {
			for i, j := 0, len(descs)-1; i < j; i, j = i+1, j-1 {
				descs[i], descs[j] = descs[j], descs[i]
			}
		}
		_ = json.NewEncoder(w).Encode(descs)
	}))
}

func TestUploadReturnsDescriptorsInInputOrder(t *testing.T) {
	srv := descriptorHost(t, true) // host responds in reversed order
	defer srv.Close()

	batch := writeTestFiles(t, "seg_00001.ts", "seg_00002.ts", "seg_00003.ts")
	client, err := New(Options{Endpoint: srv.URL, Backoff: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	descs, err := client.Upload(context.Background(), batch)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if len(descs) != len(batch) {
		t.Fatalf("got %d descriptors, want %d", len(descs), len(batch))
	}
	for i, d := range descs {
		want := filepath.Base(batch[i].Path)
		if d.Filename != want {
			t.Errorf("descriptor %d: got %q, want %q", i, d.Filename, want)
		}
		if d.URL == "" {
			t.Errorf("descriptor %d: empty url", i)
		}
	}
}

func TestUploadRetriesTransientFailureThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	inner := descriptorHost(t, false)
	defer inner.Close()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			return
		}
		inner.Config.Handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	batch := writeTestFiles(t, "seg_00001.ts")
	client, err := New(Options{Endpoint: srv.URL, Retries: 1, Backoff: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	descs, err := client.Upload(context.Background(), batch)
	if err != nil {
		t.Fatalf("upload should succeed on second attempt: %v", err)
	}
	if len(descs) != 1 {
		t.Fatalf("got %d descriptors", len(descs))
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 attempts, got %d", got)
	}
}

func TestUploadExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	batch := writeTestFiles(t, "seg_00001.ts")
	client, err := New(Options{Endpoint: srv.URL, Retries: 1, Backoff: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Upload(context.Background(), batch)
	var uploadErr *UploadError
	if !errors.As(err, &uploadErr) {
		t.Fatalf("expected UploadError, got %v", err)
	}
	if uploadErr.Attempts != 2 {
		t.Fatalf("expected 2 attempts recorded, got %d", uploadErr.Attempts)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 requests, got %d", got)
	}
}

func TestUploadRejectsIncompleteDescriptorSet(t *testing.T) {
	cases := []struct {
		name string
		fn   func(descs []Descriptor) []Descriptor
	}{
		{"missing descriptor", func(d []Descriptor) []Descriptor { return d[:len(d)-1] }},
		{"empty url", func(d []Descriptor) []Descriptor { d[0].URL = ""; return d }},
		{"wrong filename", func(d []Descriptor) []Descriptor { d[0].Filename = "other.ts"; return d }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := r.ParseMultipartForm(32 << 20); err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				parts := r.MultipartForm.File["files[]"]
				descs := make([]Descriptor, 0, len(parts))
				for i, p := range parts {
					descs = append(descs, Descriptor{
						ID:       fmt.Sprintf("att-%d", i),
						Filename: p.Filename,
						URL:      "https://host.example/att/" + p.Filename,
						Size:     p.Size,
					})
				}
				_ = json.NewEncoder(w).Encode(tc.fn(descs))
			}))
			defer srv.Close()

			batch := writeTestFiles(t, "seg_00001.ts", "seg_00002.ts")
			client, err := New(Options{Endpoint: srv.URL, Retries: -1, Backoff: time.Millisecond}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := client.Upload(context.Background(), batch); err == nil {
				t.Fatalf("expected upload to fail")
			}
		})
	}
}
