package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FMIFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantaaweather_fmi_fetches_total",
			Help: "Total FMI observation feed fetches",
		},
		[]string{"status"},
	)

	FMIFetchLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vantaaweather_fmi_fetch_latency_seconds",
			Help:    "FMI feed fetch latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ParametersParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantaaweather_parameters_parsed_total",
			Help: "Total parameters with a valid reading in parsed feeds",
		},
		[]string{"param"},
	)

	CacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vantaaweather_cache_results_total",
			Help: "Snapshot requests by cache outcome (hit, refresh, stale, cold_error)",
		},
		[]string{"result"},
	)
)
