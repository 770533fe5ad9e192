// Package attach uploads chunk batches to the remote attachment host.
// One multipart request per batch; transient failures are retried a bounded
// number of times with a fixed backoff before UploadError surfaces.
package attach

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"media-ingest/internal/metrics"
	"media-ingest/internal/packer"
)

// Descriptor is the host's per-file receipt. Only the subset the pipeline
// needs is retained.
type Descriptor struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
}

// UploadError means every attempt for one batch failed.
type UploadError struct {
	Attempts int
	Err      error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload failed after %d attempt(s): %v", e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

type Options struct {
	// Endpoint receives the multipart POST.
	Endpoint string
	// AuthToken, when set, is sent as a bearer token.
	AuthToken string
	// Retries is the number of attempts after the first. Defaults to 1;
	// negative disables retries entirely.
	Retries int
	// Backoff is the fixed wait between attempts. Defaults to 5s.
	Backoff time.Duration
	// HTTPClient defaults to a client with a 2 minute timeout.
	HTTPClient *http.Client
}

type Client struct {
	endpoint  string
	authToken string
	retries   int
	backoff   time.Duration
	http      *http.Client
	logger    *slog.Logger
}

func New(opts Options, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, fmt.Errorf("attachment host endpoint is required")
	}
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	if opts.Retries == 0 {
		retries = 1
	}
	backoff := opts.Backoff
	if backoff <= 0 {
		backoff = 5 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:  opts.Endpoint,
		authToken: opts.AuthToken,
		retries:   retries,
		backoff:   backoff,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// Upload sends one batch and returns one descriptor per input file, in
// input order. The host does not guarantee response order, so descriptors
// are matched back by filename; basenames within a batch must be unique.
func (c *Client) Upload(ctx context.Context, files packer.Batch) ([]Descriptor, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("empty batch")
	}

	attempts := c.retries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			metrics.UploadRetries.Inc()
			c.logger.Warn("retrying batch upload",
				"attempt", attempt, "of", attempts, "backoff", c.backoff, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, &UploadError{Attempts: attempt - 1, Err: ctx.Err()}
			case <-time.After(c.backoff):
			}
		}

		descs, err := c.uploadOnce(ctx, files)
		if err == nil {
			return descs, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, &UploadError{Attempts: attempt, Err: lastErr}
		}
	}
	return nil, &UploadError{Attempts: attempts, Err: lastErr}
}

func (c *Client) uploadOnce(ctx context.Context, files packer.Batch) ([]Descriptor, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		if err := appendFilePart(writer, f.Path); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("attachment host returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	var descs []Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&descs); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return matchDescriptors(files, descs)
}

func appendFilePart(writer *multipart.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	part, err := writer.CreateFormFile("files[]", filepath.Base(path))
	if err != nil {
		return fmt.Errorf("create form part for %s: %w", path, err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return fmt.Errorf("copy %s into request: %w", path, err)
	}
	return nil
}

// matchDescriptors pairs the host's response with the input files by
// filename and re-emits descriptors in input order.
func matchDescriptors(files packer.Batch, descs []Descriptor) ([]Descriptor, error) {
	if len(descs) != len(files) {
		return nil, fmt.Errorf("host returned %d descriptor(s) for %d file(s)", len(descs), len(files))
	}
	byName := make(map[string]Descriptor, len(descs))
	for _, d := range descs {
		if strings.TrimSpace(d.URL) == "" {
			return nil, fmt.Errorf("descriptor for %q has empty url", d.Filename)
		}
		if _, dup := byName[d.Filename]; dup {
			return nil, fmt.Errorf("duplicate descriptor for %q", d.Filename)
		}
		byName[d.Filename] = d
	}

	ordered := make([]Descriptor, 0, len(files))
	for _, f := range files {
		name := filepath.Base(f.Path)
		d, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("no descriptor returned for %q", name)
		}
		ordered = append(ordered, d)
	}
	return ordered, nil
}
