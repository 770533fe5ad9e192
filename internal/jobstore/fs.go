package jobstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"media-ingest/internal/fsio"
	"media-ingest/internal/model"
)

// FSStore keeps one JSON file per job under dir. Writes go through an
// atomic rename so a concurrent reader never sees a torn record.
type FSStore struct {
	dir string
}

func NewFSStore(dir string) (*FSStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("job store directory is required")
	}
	if err := fsio.Mkdir(dir); err != nil {
		return nil, err
	}
	return &FSStore{dir: dir}, nil
}

func (s *FSStore) Put(_ context.Context, rec model.Record) error {
	path, err := s.recordPath(rec.ID)
	if err != nil {
		return &PersistenceError{Op: "put", ID: rec.ID, Err: err}
	}
	if err := fsio.WriteJSON(path, rec); err != nil {
		return &PersistenceError{Op: "put", ID: rec.ID, Err: err}
	}
	return nil
}

func (s *FSStore) Get(_ context.Context, id string) (model.Record, bool, error) {
	path, err := s.recordPath(id)
	if err != nil {
		return model.Record{}, false, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	var rec model.Record
	if err := fsio.ReadJSON(path, &rec); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Record{}, false, nil
		}
		return model.Record{}, false, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	return rec, true, nil
}

// recordPath rejects ids that would escape the store directory. Ids are
// generated UUIDs, so anything else is a caller bug.
func (s *FSStore) recordPath(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("job id is required")
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("invalid job id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}
