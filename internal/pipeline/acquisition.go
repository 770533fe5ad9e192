package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"media-ingest/internal/jobstore"
	"media-ingest/internal/metrics"
	"media-ingest/internal/model"
)

const queueLabelAcquisition = "acquisition"

// EnqueueFunc hands an acquired file to the transcode-upload queue and
// returns the child job id.
type EnqueueFunc func(ctx context.Context, sourcePath, owner string) (string, error)

// AcquisitionConfig holds the tunables for an acquisition queue.
type AcquisitionConfig struct {
	// DownloadDir is the root under which each job gets its own payload
	// directory. Downloaded files stay in place for the transcode job.
	DownloadDir string
}

// AcquisitionQueue downloads remote sources one at a time in submission
// order and chains each finished download into the transcode-upload queue.
type AcquisitionQueue struct {
	cfg          AcquisitionConfig
	store        jobstore.Store
	acq          Acquirer
	enqueueChild EnqueueFunc
	logger       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	backlog []model.Record
	active  bool
}

// NewAcquisitionQueue validates the config and returns an idle queue.
func NewAcquisitionQueue(cfg AcquisitionConfig, store jobstore.Store, acq Acquirer, enqueueChild EnqueueFunc, logger *slog.Logger) (*AcquisitionQueue, error) {
	if strings.TrimSpace(cfg.DownloadDir) == "" {
		return nil, fmt.Errorf("acquisition queue: download dir is required")
	}
	if store == nil || acq == nil || enqueueChild == nil {
		return nil, fmt.Errorf("acquisition queue: store, acquirer and child enqueue are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return nil, fmt.Errorf("acquisition queue: create download dir: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &AcquisitionQueue{
		cfg:          cfg,
		store:        store,
		acq:          acq,
		enqueueChild: enqueueChild,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// Enqueue registers a new acquisition for sourceRef and returns its id.
func (q *AcquisitionQueue) Enqueue(ctx context.Context, sourceRef, owner string) (string, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return "", fmt.Errorf("enqueue acquisition: source ref is required")
	}

	rec := model.NewAcquisitionJob(sourceRef, owner)
	if err := q.store.Put(ctx, rec); err != nil {
		return "", err
	}

	q.mu.Lock()
	q.backlog = append(q.backlog, rec)
	metrics.QueueBacklog.WithLabelValues(queueLabelAcquisition).Set(float64(len(q.backlog)))
	if !q.active {
		q.active = true
		q.wg.Add(1)
		go q.runLoop()
	}
	q.mu.Unlock()

	q.logger.Info("acquisition job enqueued", "job_id", rec.ID)
	return rec.ID, nil
}

// Status reads the persisted record for id and, once a child transcode job
// exists, folds its progress into the upper half of the percent range. A
// terminal child state is surfaced as the acquisition's own.
func (q *AcquisitionQueue) Status(ctx context.Context, id string) (model.Record, error) {
	rec, ok, err := q.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if !ok {
		return model.Record{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	if rec.ChildJobID == "" || rec.Status == model.StatusFailed {
		return rec, nil
	}

	child, ok, err := q.store.Get(ctx, rec.ChildJobID)
	if err != nil {
		return model.Record{}, err
	}
	if !ok {
		return model.Record{}, fmt.Errorf("child job %s of acquisition %s: %w", rec.ChildJobID, id, ErrNotFound)
	}

	view := rec
	switch child.Status {
	case model.StatusCompleted:
		view.Status = model.StatusCompleted
		view.Percent = 100
		view.StreamURL = child.StreamURL
	case model.StatusFailed:
		view.Status = model.StatusFailed
		view.Percent = 0
		view.LastError = child.LastError
	default:
		view.Percent = 50 + child.Percent/2
	}
	return view, nil
}

// Close stops the worker and waits for the in-flight job to wind down.
func (q *AcquisitionQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

func (q *AcquisitionQueue) runLoop() {
	defer q.wg.Done()
	metrics.ActiveJobs.WithLabelValues(queueLabelAcquisition).Set(1)
	defer metrics.ActiveJobs.WithLabelValues(queueLabelAcquisition).Set(0)

	for {
		q.mu.Lock()
		if len(q.backlog) == 0 || q.ctx.Err() != nil {
			q.active = false
			q.mu.Unlock()
			return
		}
		rec := q.backlog[0]
		q.backlog = q.backlog[1:]
		metrics.QueueBacklog.WithLabelValues(queueLabelAcquisition).Set(float64(len(q.backlog)))
		q.mu.Unlock()

		start := time.Now()
		if err := q.runJob(rec); err != nil {
			metrics.JobsFailed.WithLabelValues(queueLabelAcquisition).Inc()
			q.logger.Error("acquisition job failed",
				"job_id", rec.ID, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		} else {
			q.logger.Info("acquisition handed off",
				"job_id", rec.ID, "elapsed", time.Since(start).Round(time.Millisecond))
		}
	}
}

func (q *AcquisitionQueue) persist(rec model.Record) {
	if err := q.store.Put(q.ctx, rec); err != nil {
		q.logger.Error("persist job state", "job_id", rec.ID, "status", rec.Status, "error", err)
	}
}

func (q *AcquisitionQueue) fail(rec *model.Record, cause error) {
	rec.LastError = truncate(cause.Error(), maxStoredErrorLen)
	if err := model.Transition(rec, model.StatusFailed); err != nil {
		q.logger.Error("mark job failed", "job_id", rec.ID, "error", err)
	}
	rec.Percent = 0
	q.persist(*rec)
}

func (q *AcquisitionQueue) runJob(rec model.Record) (err error) {
	defer func() {
		if err != nil {
			q.fail(&rec, err)
		}
	}()

	if err = model.Transition(&rec, model.StatusDownloading); err != nil {
		return err
	}
	q.persist(rec)

	targetDir := filepath.Join(q.cfg.DownloadDir, rec.ID)

	// The download occupies the 0-50 band of the composed percent.
	progressCh := make(chan float64, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for f := range progressCh {
			p := int(f * 50)
			if p > 50 {
				p = 50
			}
			if p > rec.Percent {
				rec.Percent = p
				rec.Touch()
				q.persist(rec)
			}
		}
	}()

	path, acqErr := q.acq.Acquire(q.ctx, rec.SourceRef, targetDir, progressCh)
	<-done
	if acqErr != nil {
		return acqErr
	}

	if err = model.Transition(&rec, model.StatusDownloaded); err != nil {
		return err
	}
	if rec.Percent < 50 {
		rec.Percent = 50
	}
	q.persist(rec)

	childID, childErr := q.enqueueChild(q.ctx, path, rec.Owner)
	if childErr != nil {
		return fmt.Errorf("enqueue transcode for %s: %w", rec.ID, childErr)
	}
	rec.ChildJobID = childID
	rec.Touch()
	q.persist(rec)
	return nil
}
