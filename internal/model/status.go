package model

import "fmt"

// Transcode job lifecycle.
const (
	StatusInitial    = "initial"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Acquisition job lifecycle. Initial and failed are shared with the
// transcode lifecycle on purpose: both families start and fail the same way.
const (
	StatusDownloading = "downloading"
	StatusDownloaded  = "downloaded"
)

// Both state machines are forward-only: nothing ever returns to initial,
// and completed/failed/downloaded never regress.
var transcodeTransitions = map[string]map[string]bool{
	StatusInitial: {
		StatusProcessing: true,
		StatusFailed:     true,
	},
	StatusProcessing: {
		StatusProcessing: true,
		StatusCompleted:  true,
		StatusFailed:     true,
	},
	StatusCompleted: {},
	StatusFailed:    {},
}

var acquisitionTransitions = map[string]map[string]bool{
	StatusInitial: {
		StatusDownloading: true,
		StatusFailed:      true,
	},
	StatusDownloading: {
		StatusDownloading: true,
		StatusDownloaded:  true,
		StatusFailed:      true,
	},
	StatusDownloaded: {
		StatusFailed: true, // child enqueue can still fail after the download
	},
	StatusFailed: {},
}

func transitions(kind Kind) map[string]map[string]bool {
	if kind == KindAcquisition {
		return acquisitionTransitions
	}
	return transcodeTransitions
}

func CanTransition(kind Kind, from, to string) bool {
	next, ok := transitions(kind)[from]
	if !ok {
		return false
	}
	return next[to]
}

// Transition moves the record to toStatus after validating the edge and
// stamps UpdatedAt. Percent is left to the caller: the bands differ per phase.
func Transition(r *Record, toStatus string) error {
	if !CanTransition(r.Kind, r.Status, toStatus) {
		return fmt.Errorf("invalid %s status transition: %q -> %q (id=%s)", r.Kind, r.Status, toStatus, r.ID)
	}
	r.Status = toStatus
	r.Touch()
	return nil
}
