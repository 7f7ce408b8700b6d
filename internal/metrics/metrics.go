// Package metrics exposes Prometheus instruments for the fetch/cache pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockdash_cache_hits_total",
		Help: "Series cache lookups served from a live entry",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockdash_cache_misses_total",
		Help: "Series cache lookups that required a fetch",
	})

	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockdash_cache_evictions_total",
		Help: "Expired entries removed by the cache sweeper",
	})

	FetchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdash_fetch_outcomes_total",
		Help: "Provider fetches by outcome (data, empty, failed)",
	}, []string{"provider", "outcome"})

	FetchLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockdash_fetch_latency_seconds",
		Help:    "Latency of provider fetches",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})

	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockdash_pipeline_runs_total",
		Help: "Pipeline runs by final status",
	}, []string{"status"})
)
