package model

import (
	"time"

	"github.com/google/uuid"
)

// Kind distinguishes the two job families that share one store.
type Kind string

const (
	KindTranscode   Kind = "transcode"
	KindAcquisition Kind = "acquisition"
)

// Record is the canonical persisted job state, keyed by ID. Transcode
// jobs and acquisition jobs share the shape; fields that do not apply to
// a kind stay empty.
type Record struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	Status     string `json:"status"`
	Percent    int    `json:"percent"`
	Owner      string `json:"owner"`
	SourcePath string `json:"source_path,omitempty"`
	SourceRef  string `json:"source_ref,omitempty"`
	StreamURL  string `json:"stream_url,omitempty"`
	ChildJobID string `json:"child_job_id,omitempty"`
	LastError  string `json:"last_error,omitempty"`
	CreatedAt  string `json:"created_at"`
	UpdatedAt  string `json:"updated_at,omitempty"`
}

func NewTranscodeJob(sourcePath, owner string) Record {
	return Record{
		ID:         uuid.New().String(),
		Kind:       KindTranscode,
		Status:     StatusInitial,
		Owner:      owner,
		SourcePath: sourcePath,
		CreatedAt:  time.Now().UTC().Format(time.RFC3339),
	}
}

func NewAcquisitionJob(sourceRef, owner string) Record {
	return Record{
		ID:        uuid.New().String(),
		Kind:      KindAcquisition,
		Status:    StatusInitial,
		Owner:     owner,
		SourceRef: sourceRef,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
}

// Terminal reports whether the record reached a final state. Terminal
// records never transition again; a failed job is resubmitted as a new one.
func (r Record) Terminal() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}

func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
}
