package jobstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"media-ingest/internal/model"
)

// RedisStore keeps one hash per job under "<prefix><id>". Every write is a
// single HSet upsert, so status can be read by any process sharing the
// Redis instance.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisStore{client: client, prefix: "ingest:job:"}, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Put(ctx context.Context, rec model.Record) error {
	fields := map[string]interface{}{
		"id":           rec.ID,
		"kind":         string(rec.Kind),
		"status":       rec.Status,
		"percent":      rec.Percent,
		"owner":        rec.Owner,
		"source_path":  rec.SourcePath,
		"source_ref":   rec.SourceRef,
		"stream_url":   rec.StreamURL,
		"child_job_id": rec.ChildJobID,
		"last_error":   rec.LastError,
		"created_at":   rec.CreatedAt,
		"updated_at":   rec.UpdatedAt,
	}
	if err := s.client.HSet(ctx, s.prefix+rec.ID, fields).Err(); err != nil {
		return &PersistenceError{Op: "put", ID: rec.ID, Err: err}
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (model.Record, bool, error) {
	fields, err := s.client.HGetAll(ctx, s.prefix+id).Result()
	if err != nil {
		return model.Record{}, false, &PersistenceError{Op: "get", ID: id, Err: err}
	}
	if len(fields) == 0 {
		return model.Record{}, false, nil
	}

	percent, err := strconv.Atoi(fields["percent"])
	if err != nil {
		return model.Record{}, false, &PersistenceError{Op: "get", ID: id, Err: fmt.Errorf("bad percent %q: %w", fields["percent"], err)}
	}

	rec := model.Record{
		ID:         fields["id"],
		Kind:       model.Kind(fields["kind"]),
		Status:     fields["status"],
		Percent:    percent,
		Owner:      fields["owner"],
		SourcePath: fields["source_path"],
		SourceRef:  fields["source_ref"],
		StreamURL:  fields["stream_url"],
		ChildJobID: fields["child_job_id"],
		LastError:  fields["last_error"],
		CreatedAt:  fields["created_at"],
		UpdatedAt:  fields["updated_at"],
	}
	return rec, true, nil
}
