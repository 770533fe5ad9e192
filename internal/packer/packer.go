// Package packer groups local files into upload batches that fit the
// attachment host's per-request byte and item ceilings.
package packer

import (
	"fmt"
	"sort"
)

type File struct {
	Path string
	Size int64
}

// Batch is an ordered group of files for one upload call.
type Batch []File

func (b Batch) Bytes() int64 {
	var total int64
	for _, f := range b {
		total += f.Size
	}
	return total
}

// OversizedFileError reports a file that can never fit a batch. The packer
// does not split files; the caller has to reject such input.
type OversizedFileError struct {
	Path     string
	Size     int64
	MaxBytes int64
}

func (e *OversizedFileError) Error() string {
	return fmt.Sprintf("file %s (%d bytes) exceeds batch limit of %d bytes", e.Path, e.Size, e.MaxBytes)
}

// Pack sorts files ascending by size and fills batches greedily. Each
// batch stays strictly under maxBatchBytes and at or under maxBatchCount.
// Ascending order favors balanced fill and keeps one large file from
// stalling a batch of small ones.
func Pack(files []File, maxBatchBytes int64, maxBatchCount int) ([]Batch, error) {
	if maxBatchBytes <= 0 {
		return nil, fmt.Errorf("maxBatchBytes must be positive, got %d", maxBatchBytes)
	}
	if maxBatchCount <= 0 {
		return nil, fmt.Errorf("maxBatchCount must be positive, got %d", maxBatchCount)
	}
	if len(files) == 0 {
		return nil, nil
	}

	sorted := make([]File, len(files))
	copy(sorted, files)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size < sorted[j].Size
	})

	var batches []Batch
	var current Batch
	var currentBytes int64

	for _, f := range sorted {
		if f.Size >= maxBatchBytes {
			return nil, &OversizedFileError{Path: f.Path, Size: f.Size, MaxBytes: maxBatchBytes}
		}
		if len(current) > 0 && (currentBytes+f.Size >= maxBatchBytes || len(current) >= maxBatchCount) {
			batches = append(batches, current)
			current = nil
			currentBytes = 0
		}
		current = append(current, f)
		currentBytes += f.Size
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}
