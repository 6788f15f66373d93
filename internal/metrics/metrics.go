// Package metrics holds the Prometheus collectors for import, enrichment and
// contact sync. Collectors register with the default registry, which serve
// exposes at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "leads"

var (
	// EnrichSteps counts enrichment step outcomes by step and status.
	EnrichSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrich",
		Name:      "steps_total",
		Help:      "Enrichment step outcomes by step and status.",
	}, []string{"step", "status"}) // status: ok, empty, failed, skipped, disabled

	// EnrichStepDuration observes wall time per enrichment step.
	EnrichStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "enrich",
		Name:      "step_duration_seconds",
		Help:      "Wall time of each enrichment step.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"step"})

	// EnrichCache counts enrichment cache lookups by result.
	EnrichCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "enrich",
		Name:      "cache_lookups_total",
		Help:      "Enrichment cache lookups by result.",
	}, []string{"result"}) // result: hit, miss, error

	// ProviderCalls counts external provider calls by provider and result.
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "provider",
		Name:      "calls_total",
		Help:      "External provider calls by provider and result.",
	}, []string{"provider", "result"}) // result: ok, error

	// ImportRows counts imported rows by outcome.
	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "rows_total",
		Help:      "Imported rows by outcome.",
	}, []string{"outcome"})

	// ImportBatchDuration observes wall time per import batch.
	ImportBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "import",
		Name:      "batch_duration_seconds",
		Help:      "Wall time of each import batch.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	})

	// LeadsRescored counts leads whose score or stage changed on rescore.
	LeadsRescored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "scoring",
		Name:      "leads_rescored_total",
		Help:      "Leads whose score, stage or level changed on rescore.",
	})

	// SyncMembers counts contacts pushed to sync targets by target and result.
	SyncMembers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sync",
		Name:      "members_total",
		Help:      "Contacts pushed to sync targets by target and result.",
	}, []string{"target", "result"}) // result: created, updated, error
)
