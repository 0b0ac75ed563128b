// metrics.go - Prometheus counters for the enrichment pipeline

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ExtractionAttempts counts individual model-generate calls.
	// outcome: success, retryable_error, terminal_error, parse_error
	ExtractionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizmanager_extraction_attempts_total",
		Help: "Vision-model generate calls by model and outcome.",
	}, []string{"model", "outcome"})

	// EnrichmentTasks counts completed background tasks.
	// outcome: enriched, unchanged, failed, dropped
	EnrichmentTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizmanager_enrichment_tasks_total",
		Help: "Background enrichment tasks by outcome.",
	}, []string{"outcome"})

	// NotificationDispatches counts webhook dispatch attempts.
	// outcome: success, failure, unconfigured
	NotificationDispatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bizmanager_notification_dispatches_total",
		Help: "Webhook dispatch attempts by payload type and outcome.",
	}, []string{"type", "outcome"})

	// EnrichmentQueueDepth tracks the buffered task queue.
	EnrichmentQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bizmanager_enrichment_queue_depth",
		Help: "Enrichment tasks currently waiting in the queue.",
	})
)
