package cli

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req["source_path"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{"error": "source_path is required"})
			return
		}
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "job-123"})
	})
	mux.HandleFunc("POST /api/v1/acquisitions", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{"job_id": "acq-456"})
	})
	mux.HandleFunc("GET /api/v1/jobs/job-123", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"id": "job-123", "kind": "transcode", "status": "processing", "percent": 42,
		})
	})
	mux.HandleFunc("GET /api/v1/jobs/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"error": "job not found"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEnqueueCommand(t *testing.T) {
	srv := newFakeService(t)
	if err := runEnqueue([]string{"--addr", srv.URL, "--source", "/data/ep1.mkv", "--json"}); err != nil {
		t.Fatalf("runEnqueue: %v", err)
	}
	if err := runEnqueue([]string{"--addr", srv.URL}); err == nil {
		t.Fatal("expected error without --source")
	}
}

func TestAcquireCommand(t *testing.T) {
	srv := newFakeService(t)
	if err := runAcquire([]string{"--addr", srv.URL, "--ref", "magnet:?xt=urn:btih:abc", "--json"}); err != nil {
		t.Fatalf("runAcquire: %v", err)
	}
	if err := runAcquire([]string{"--addr", srv.URL}); err == nil {
		t.Fatal("expected error without --ref")
	}
}

func TestStatusCommand(t *testing.T) {
	srv := newFakeService(t)
	if err := runStatus([]string{"--addr", srv.URL, "--id", "job-123", "--json"}); err != nil {
		t.Fatalf("runStatus: %v", err)
	}

	err := runStatus([]string{"--addr", srv.URL, "--id", "missing"})
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Fatalf("status for missing job: %v", err)
	}
}

func TestFetchJob(t *testing.T) {
	srv := newFakeService(t)
	rec, err := fetchJob(srv.URL, "job-123")
	if err != nil {
		t.Fatalf("fetchJob: %v", err)
	}
	if rec.ID != "job-123" || rec.Status != "processing" || rec.Percent != 42 {
		t.Fatalf("rec = %+v", rec)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if err := Run([]string{"frobnicate"}); err == nil {
		t.Fatal("expected error for unknown command")
	}
	if err := Run(nil); err != nil {
		t.Fatalf("bare invocation should print usage, got %v", err)
	}
}
