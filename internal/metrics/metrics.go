// Package metrics provides Prometheus metrics for the sync pipeline and API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "synchronicity"

var (
	// SyncTotal counts sync passes by outcome.
	SyncTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_total",
			Help:      "Total number of feed sync passes",
		},
		[]string{"status"},
	)

	// SyncDuration measures sync pass duration.
	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of feed sync passes in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	ArticlesSynced = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "articles_synced",
			Help:      "Number of articles in the last successful sync",
		},
	)

	ExtractionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "extraction_failures_total",
			Help:      "Feed entries dropped because extraction failed",
		},
	)

	// CacheLookups counts cache reads by namespace and result (hit, miss, error).
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	ImageOptimizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_optimizations_total",
			Help:      "Image optimizations by outcome",
		},
		[]string{"status"},
	)

	// JobsTotal counts background jobs by kind and outcome.
	JobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by kind and outcome",
		},
		[]string{"kind", "status"},
	)
)

// RecordSync records the outcome of a sync pass.
func RecordSync(status string, seconds float64, articles, dropped int) {
	SyncTotal.WithLabelValues(status).Inc()
	SyncDuration.Observe(seconds)
	if status == "success" {
		ArticlesSynced.Set(float64(articles))
	}
	if dropped > 0 {
		ExtractionFailures.Add(float64(dropped))
	}
}

// RecordCacheLookup records a cache read.
func RecordCacheLookup(namespace, result string) {
	CacheLookups.WithLabelValues(namespace, result).Inc()
}

// RecordImage records an image optimization outcome.
func RecordImage(status string) {
	ImageOptimizations.WithLabelValues(status).Inc()
}

// RecordJob records a background job outcome.
func RecordJob(kind, status string) {
	JobsTotal.WithLabelValues(kind, status).Inc()
}
