package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// BuildsSubmitted counts accepted build submissions.
	BuildsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildforge_builds_submitted_total",
			Help: "Total number of accepted build submissions",
		},
	)

	// BuildsConcluded counts builds entering a terminal state.
	BuildsConcluded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildforge_builds_concluded_total",
			Help: "Total number of builds by terminal state",
		},
		[]string{"state"},
	)

	// BuildDuration tracks wall time from build start to conclusion.
	BuildDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buildforge_build_duration_seconds",
			Help:    "Duration of builds from start to terminal state",
			Buckets: prometheus.ExponentialBuckets(15, 2, 10), // 15s to ~2h
		},
	)

	// QueueWait tracks how long the worker sat idle waiting for the next
	// queued build.
	QueueWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "buildforge_queue_wait_seconds",
			Help:    "Time spent waiting on the build queue between builds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8), // 1s to ~4.5h
		},
	)

	// BuildsActive tracks builds currently being processed by the worker.
	BuildsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "buildforge_builds_active",
			Help: "Number of builds currently being processed",
		},
	)

	// RateLimitRejections counts submissions refused by admission control.
	RateLimitRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildforge_ratelimit_rejections_total",
			Help: "Total number of submissions rejected by the rate limiter",
		},
	)

	// StaleArtifactsRemoved counts artifact directories garbage-collected
	// by the cleaner.
	StaleArtifactsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "buildforge_stale_artifacts_removed_total",
			Help: "Total number of stale artifact directories removed",
		},
	)

	// MetadataCacheHits counts metadata lookups served without a checkout.
	MetadataCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "buildforge_metadata_cache_hits_total",
			Help: "Metadata cache lookups by result",
		},
		[]string{"result"},
	)
)
