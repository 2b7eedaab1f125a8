package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediagallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Thumbnail metrics
var (
	ThumbnailsGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_thumbnails_generated_total",
			Help: "Thumbnails written, by media type and outcome",
		},
		[]string{"media_type", "result"}, // "ok", "placeholder", "failed"
	)

	ThumbnailDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediagallery_thumbnail_duration_seconds",
			Help:    "Time to render one thumbnail",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"media_type"},
	)
)

// Import metrics
var (
	MediaImported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_media_imported_total",
			Help: "Media rows created, by import source",
		},
		[]string{"source"}, // "monitor", "upload"
	)

	AlbumsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_albums_created_total",
			Help: "Album rows created, by source",
		},
		[]string{"source"}, // "monitor", "upload", "user"
	)

	ImportErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_import_errors_total",
			Help: "Non-fatal errors hit while importing",
		},
		[]string{"source"},
	)

	MonitorRunsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediagallery_monitor_runs_total",
			Help: "Total number of folder monitor runs",
		},
	)
)

// Trash metrics
var (
	TrashOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_trash_operations_total",
			Help: "Image deletions and restores, by operation",
		},
		[]string{"operation"}, // "soft", "force", "restore", "purge"
	)

	TrashSweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediagallery_trash_sweep_duration_seconds",
			Help:    "Duration of trash sweeps",
			Buckets: prometheus.DefBuckets,
		},
	)

	TrashSweepLastRunTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediagallery_trash_sweep_last_run_timestamp",
			Help: "Unix timestamp of the last trash sweep",
		},
	)

	AlbumsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediagallery_albums_deleted_total",
			Help: "Albums removed through the deletion cascade",
		},
	)

	FilesystemErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediagallery_filesystem_errors_total",
			Help: "File operations that failed without failing the request",
		},
		[]string{"operation"},
	)
)
