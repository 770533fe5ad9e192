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
	"media-ingest/internal/manifest"
	"media-ingest/internal/metrics"
	"media-ingest/internal/model"
	"media-ingest/internal/packer"
)

const (
	defaultMaxBatchBytes = 25 << 20
	defaultMaxBatchCount = 10

	queueLabelTranscode = "transcode"

	maxStoredErrorLen = 1200
)

// TranscodeConfig holds the tunables for a transcode-upload queue.
type TranscodeConfig struct {
	// WorkDir is the root under which each job gets its own segment directory.
	WorkDir string
	// MaxBatchBytes caps the summed segment size per upload batch.
	// Zero selects the 25 MiB default.
	MaxBatchBytes int64
	// MaxBatchCount caps the number of files per upload batch.
	// Zero selects the default of 10.
	MaxBatchCount int
}

// TranscodeQueue runs transcode-upload jobs one at a time in submission
// order. Every state change is persisted before the job advances, so a
// restarted process can answer Status for jobs it no longer runs.
type TranscodeQueue struct {
	cfg    TranscodeConfig
	store  jobstore.Store
	seg    Segmenter
	up     Uploader
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	backlog []model.Record
	active  bool
}

// NewTranscodeQueue validates the config and returns an idle queue. The
// worker goroutine is started lazily by the first Enqueue.
func NewTranscodeQueue(cfg TranscodeConfig, store jobstore.Store, seg Segmenter, up Uploader, logger *slog.Logger) (*TranscodeQueue, error) {
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, fmt.Errorf("transcode queue: work dir is required")
	}
	if store == nil || seg == nil || up == nil {
		return nil, fmt.Errorf("transcode queue: store, segmenter and uploader are required")
	}
	if cfg.MaxBatchBytes == 0 {
		cfg.MaxBatchBytes = defaultMaxBatchBytes
	}
	if cfg.MaxBatchCount == 0 {
		cfg.MaxBatchCount = defaultMaxBatchCount
	}
	if cfg.MaxBatchBytes < 0 || cfg.MaxBatchCount < 0 {
		return nil, fmt.Errorf("transcode queue: batch limits must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, fmt.Errorf("transcode queue: create work dir: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TranscodeQueue{
		cfg:    cfg,
		store:  store,
		seg:    seg,
		up:     up,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Enqueue registers a new job for sourcePath and returns its id. The job
// record is persisted before the id is handed out; a persistence failure
// here fails the call instead of producing an untracked job.
func (q *TranscodeQueue) Enqueue(ctx context.Context, sourcePath, owner string) (string, error) {
	sourcePath = strings.TrimSpace(sourcePath)
	if sourcePath == "" {
		return "", fmt.Errorf("enqueue transcode: source path is required")
	}
	if _, err := os.Stat(sourcePath); err != nil {
		return "", fmt.Errorf("enqueue transcode: source %s: %w", sourcePath, err)
	}

	rec := model.NewTranscodeJob(sourcePath, owner)
	if err := q.store.Put(ctx, rec); err != nil {
		return "", err
	}

	q.mu.Lock()
	q.backlog = append(q.backlog, rec)
	metrics.QueueBacklog.WithLabelValues(queueLabelTranscode).Set(float64(len(q.backlog)))
	if !q.active {
		q.active = true
		q.wg.Add(1)
		go q.runLoop()
	}
	q.mu.Unlock()

	q.logger.Info("transcode job enqueued", "job_id", rec.ID, "source", sourcePath)
	return rec.ID, nil
}

// Status reads the persisted record for id. It goes through the store so
// that jobs from a previous process incarnation remain visible.
func (q *TranscodeQueue) Status(ctx context.Context, id string) (model.Record, error) {
	rec, ok, err := q.store.Get(ctx, id)
	if err != nil {
		return model.Record{}, err
	}
	if !ok {
		return model.Record{}, fmt.Errorf("job %s: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Close stops the worker and waits for the in-flight job to wind down.
func (q *TranscodeQueue) Close() {
	q.cancel()
	q.wg.Wait()
}

func (q *TranscodeQueue) runLoop() {
	defer q.wg.Done()
	metrics.ActiveJobs.WithLabelValues(queueLabelTranscode).Set(1)
	defer metrics.ActiveJobs.WithLabelValues(queueLabelTranscode).Set(0)

	for {
		q.mu.Lock()
		if len(q.backlog) == 0 || q.ctx.Err() != nil {
			q.active = false
			q.mu.Unlock()
			return
		}
		rec := q.backlog[0]
		q.backlog = q.backlog[1:]
		metrics.QueueBacklog.WithLabelValues(queueLabelTranscode).Set(float64(len(q.backlog)))
		q.mu.Unlock()

		start := time.Now()
		if err := q.runJob(rec); err != nil {
			metrics.JobsFailed.WithLabelValues(queueLabelTranscode).Inc()
			q.logger.Error("transcode job failed",
				"job_id", rec.ID, "elapsed", time.Since(start).Round(time.Millisecond), "error", err)
		} else {
			metrics.JobsCompleted.WithLabelValues(queueLabelTranscode).Inc()
			q.logger.Info("transcode job completed",
				"job_id", rec.ID, "elapsed", time.Since(start).Round(time.Millisecond))
		}
	}
}

// persist writes the current record state. Mid-run persistence failures are
// logged and tolerated so a flaky store does not abort a long transcode.
func (q *TranscodeQueue) persist(rec model.Record) {
	if err := q.store.Put(q.ctx, rec); err != nil {
		q.logger.Error("persist job state", "job_id", rec.ID, "status", rec.Status, "error", err)
	}
}

func (q *TranscodeQueue) fail(rec *model.Record, cause error) {
	rec.LastError = truncate(cause.Error(), maxStoredErrorLen)
	if err := model.Transition(rec, model.StatusFailed); err != nil {
		q.logger.Error("mark job failed", "job_id", rec.ID, "error", err)
	}
	rec.Percent = 0
	rec.StreamURL = ""
	q.persist(*rec)
}

func (q *TranscodeQueue) runJob(rec model.Record) (err error) {
	defer func() {
		if err != nil {
			q.fail(&rec, err)
		}
	}()

	if err = model.Transition(&rec, model.StatusProcessing); err != nil {
		return err
	}
	q.persist(rec)

	workDir := filepath.Join(q.cfg.WorkDir, rec.ID)

	// Segmentation occupies the 0-50 band. The consumer goroutine owns the
	// record until the progress channel closes and done is observed.
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

	res, segErr := q.seg.Segment(q.ctx, rec.SourcePath, workDir, progressCh)
	<-done
	if segErr != nil {
		return segErr
	}
	if rec.Percent < 50 {
		rec.Percent = 50
		rec.Touch()
		q.persist(rec)
	}

	batches, err := packer.Pack(res.Segments, q.cfg.MaxBatchBytes, q.cfg.MaxBatchCount)
	if err != nil {
		return err
	}

	urlByName := make(map[string]string, len(res.Segments))
	total := len(res.Segments)
	uploaded := 0
	for _, batch := range batches {
		descs, upErr := q.up.Upload(q.ctx, batch)
		if upErr != nil {
			return upErr
		}
		for _, d := range descs {
			urlByName[d.Filename] = d.URL
		}
		uploaded += len(batch)
		p := 50 + uploaded*50/total
		if p > rec.Percent {
			rec.Percent = p
			rec.Touch()
			q.persist(rec)
		}
	}

	if err = manifest.Rewrite(res.ManifestPath, urlByName); err != nil {
		return err
	}

	info, statErr := os.Stat(res.ManifestPath)
	if statErr != nil {
		return fmt.Errorf("stat rewritten manifest: %w", statErr)
	}
	descs, upErr := q.up.Upload(q.ctx, packer.Batch{{Path: res.ManifestPath, Size: info.Size()}})
	if upErr != nil {
		return upErr
	}
	rec.StreamURL = descs[0].URL

	if err = model.Transition(&rec, model.StatusCompleted); err != nil {
		return err
	}
	rec.Percent = 100
	q.persist(rec)

	if rmErr := os.RemoveAll(workDir); rmErr != nil {
		q.logger.Warn("remove job work dir", "job_id", rec.ID, "error", rmErr)
	}
	return nil
}
