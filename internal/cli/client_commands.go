package cli

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"media-ingest/internal/config"
	"media-ingest/internal/model"
)

const defaultServerAddr = "http://localhost:8080"

var apiClient = &http.Client{Timeout: 30 * time.Second}

func runEnqueue(args []string) error {
	fs := flag.NewFlagSet("enqueue", flag.ContinueOnError)
	addr := fs.String("addr", defaultServerAddr, "ingestion service address")
	source := fs.String("source", "", "path to the input video file")
	owner := fs.String("owner", "", "owner identifier recorded on the job")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	src := strings.TrimSpace(*source)
	if src == "" {
		return fmt.Errorf("--source is required")
	}
	if abs, err := filepath.Abs(src); err == nil {
		src = abs
	}

	id, err := postJob(*addr, "/api/v1/jobs", map[string]string{
		"source_path": src,
		"owner":       *owner,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]string{"job_id": id})
	}
	fmt.Printf("job_id: %s\n", id)
	fmt.Printf("next: media-ingest watch --id %s\n", id)
	return nil
}

func runAcquire(args []string) error {
	fs := flag.NewFlagSet("acquire", flag.ContinueOnError)
	addr := fs.String("addr", defaultServerAddr, "ingestion service address")
	ref := fs.String("ref", "", "magnet link or path to a .torrent file")
	owner := fs.String("owner", "", "owner identifier recorded on the job")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	r := strings.TrimSpace(*ref)
	if r == "" {
		return fmt.Errorf("--ref is required")
	}
	if !strings.HasPrefix(r, "magnet:") {
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
	}

	id, err := postJob(*addr, "/api/v1/acquisitions", map[string]string{
		"source_ref": r,
		"owner":      *owner,
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]string{"job_id": id})
	}
	fmt.Printf("job_id: %s\n", id)
	fmt.Printf("next: media-ingest watch --id %s\n", id)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	addr := fs.String("addr", defaultServerAddr, "ingestion service address")
	id := fs.String("id", "", "job id")
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(*id) == "" {
		return fmt.Errorf("--id is required")
	}

	rec, err := fetchJob(*addr, *id)
	if err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(rec)
	}
	fmt.Printf("id: %s\n", rec.ID)
	fmt.Printf("kind: %s\n", rec.Kind)
	fmt.Printf("status: %s\n", rec.Status)
	fmt.Printf("percent: %d\n", rec.Percent)
	if rec.StreamURL != "" {
		fmt.Printf("stream_url: %s\n", rec.StreamURL)
	}
	if rec.LastError != "" {
		fmt.Printf("last_error: %s\n", rec.LastError)
	}
	return nil
}

func runVersion(args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "print JSON output")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *jsonOut {
		return printJSON(map[string]string{"version": config.Version})
	}
	fmt.Println(config.Version)
	return nil
}

func postJob(addr, path string, body map[string]string) (string, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return "", err
	}
	resp, err := apiClient.Post(strings.TrimRight(addr, "/")+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("contact service at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("service answered %s: %s", resp.Status, readAPIError(resp.Body))
	}
	var out struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	return out.JobID, nil
}

func fetchJob(addr, id string) (model.Record, error) {
	resp, err := apiClient.Get(strings.TrimRight(addr, "/") + "/api/v1/jobs/" + id)
	if err != nil {
		return model.Record{}, fmt.Errorf("contact service at %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Record{}, fmt.Errorf("service answered %s: %s", resp.Status, readAPIError(resp.Body))
	}
	var rec model.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return model.Record{}, fmt.Errorf("decode response: %w", err)
	}
	return rec, nil
}

func readAPIError(r io.Reader) string {
	var out struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&out); err == nil && out.Error != "" {
		return out.Error
	}
	return "no detail"
}
