// Package pipeline contains the two single-concurrency FIFO job runners:
// the transcode-upload queue and the acquisition queue that feeds it.
package pipeline

import (
	"context"
	"errors"

	"media-ingest/internal/attach"
	"media-ingest/internal/packer"
	"media-ingest/internal/segment"
)

// ErrNotFound is returned by Status for an unknown job id.
var ErrNotFound = errors.New("job not found")

// Segmenter slices one input file into a manifest plus segments, sending
// fractional progress on the channel and closing it before returning.
type Segmenter interface {
	Segment(ctx context.Context, inputPath, outputDir string, progress chan<- float64) (segment.Result, error)
}

// Uploader sends one batch to the attachment host.
type Uploader interface {
	Upload(ctx context.Context, files packer.Batch) ([]attach.Descriptor, error)
}

// Acquirer resolves a remote source reference into a local file, sending
// fractional progress on the channel and closing it before returning.
type Acquirer interface {
	Acquire(ctx context.Context, sourceRef, targetDir string, progress chan<- float64) (string, error)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
