package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "conflictlens_requests_total",
			Help: "Total API requests by endpoint and status",
		},
		[]string{"endpoint", "status"},
	)

	RequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "conflictlens_request_latency_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	ForecastsEnriched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conflictlens_forecasts_enriched_total",
			Help: "Total enriched forecast records produced",
		},
	)

	CoordinatesSynthesized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conflictlens_coordinates_synthesized_total",
			Help: "Total grid coordinates derived synthetically (no source row)",
		},
	)

	IntervalsSynthesized = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "conflictlens_intervals_synthesized_total",
			Help: "Total records without a real 90% uncertainty interval",
		},
	)

	DatasetRowsLoaded = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "conflictlens_dataset_rows_loaded",
			Help: "Rows loaded per source dataset",
		},
		[]string{"dataset"},
	)
)
