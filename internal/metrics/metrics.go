// Package metrics registers the pipeline's Prometheus collectors.
// HTTP metrics live in the API middleware; business metrics are updated
// from the queues and adapters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCompleted counts jobs that reached a terminal completed state,
	// labeled by queue ("transcode" or "acquisition").
	JobsCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_completed_total",
			Help: "Jobs that reached the completed state",
		},
		[]string{"queue"},
	)

	// JobsFailed counts jobs that reached the failed state.
	JobsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ingest_jobs_failed_total",
			Help: "Jobs that reached the failed state",
		},
		[]string{"queue"},
	)

	// QueueBacklog is the number of jobs waiting behind the active one.
	QueueBacklog = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_queue_backlog",
			Help: "Jobs queued and not yet started",
		},
		[]string{"queue"},
	)

	// ActiveJobs is 0 or 1 per queue; each queue runs one job at a time.
	ActiveJobs = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ingest_active_jobs",
			Help: "Jobs currently being processed",
		},
		[]string{"queue"},
	)

	// UploadRetries counts attachment upload attempts beyond the first.
	UploadRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ingest_upload_retries_total",
			Help: "Attachment upload retry attempts",
		},
	)

	// SegmentationDuration observes wall time of the external segmenter.
	SegmentationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ingest_segmentation_duration_seconds",
			Help:    "Duration of segmentation runs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)
)
