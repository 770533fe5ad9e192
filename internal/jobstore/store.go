// Package jobstore persists job records so status survives a process
// restart and can be read from a process that did not run the job.
package jobstore

import (
	"context"
	"fmt"

	"media-ingest/internal/model"
)

// Store is a durable id -> record map. Put is an upsert; the owning queue
// is the only writer for a given id, so last-writer-wins is fine.
type Store interface {
	Put(ctx context.Context, rec model.Record) error
	Get(ctx context.Context, id string) (model.Record, bool, error)
}

// PersistenceError marks a store write or read failure. Mid-run write
// failures are logged and tolerated so a flaky store does not abort a
// transcode, but the error must stay recognizable because it means the
// visible status may be stale.
type PersistenceError struct {
	Op  string
	ID  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("job store %s for %s: %v", e.Op, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
