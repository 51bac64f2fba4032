package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnapshotsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_snapshots_fetched_total",
		Help: "The total number of hourly snapshots acquired",
	}, []string{"source"})

	SnapshotFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_snapshot_fetch_failures_total",
		Help: "The total number of failed snapshot fetch attempts",
	}, []string{"reason"})

	CooldownsEntered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_cooldowns_entered_total",
		Help: "The total number of rate-limit cooldowns entered",
	}, []string{"level"})

	CredentialRotations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trendpulse_credential_rotations_total",
		Help: "The total number of credential pool rotations after a failure",
	})

	EnrichmentTopics = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trendpulse_enrichment_topics_total",
		Help: "The total number of topics processed by the enrichment batch",
	}, []string{"status"})

	EnrichmentBatchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trendpulse_enrichment_batch_duration_seconds",
		Help:    "Duration in seconds of one enrichment batch run",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	})

	ClassifierRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "trendpulse_classifier_request_duration_seconds",
		Help:    "Duration of classifier requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	ArchiveTopics = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trendpulse_archive_topics",
		Help: "Number of topic records in the most recently touched daily archive",
	}, []string{"date"})

	PendingHours = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trendpulse_pending_hours",
		Help: "Number of pending (date, hour) pairs seen by the last monitor tick",
	})
)
