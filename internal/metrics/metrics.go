// Package metrics holds the Prometheus collectors for profile extraction runs
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "riverprofile"

var (
	Segments = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "network_segments",
		Help:      "Segments ingested in the most recent run.",
	})

	AmbiguousLinks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ambiguous_links_total",
		Help:      "Flow links resolved by tie-break because several segments started at the same point.",
	})

	RiversExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rivers_extracted_total",
		Help:      "Rivers whose profile was built and handed to the sinks.",
	})

	RiversFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rivers_failed_total",
		Help:      "Rivers abandoned, by reason.",
	}, []string{"reason"})

	VerticesMissing = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "vertices_missing_total",
		Help:      "Profile vertices with no raster data, by attribute.",
	}, []string{"attribute"})

	SampleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sample_duration_seconds",
		Help:      "Latency of point sampler calls.",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"raster"})

	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sink_errors_total",
		Help:      "Profiles a sink failed to persist.",
	}, []string{"sink"})
)
