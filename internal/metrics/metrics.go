// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlerItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_items_total",
			Help: "Feed items processed, labeled by source and outcome.",
		},
		[]string{"source", "outcome"},
	)

	crawlerSourcesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crawler_sources_total",
			Help: "Sources visited by the crawler, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	fetchRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "fetch_retries_total",
			Help: "Retries performed by the HTTP fetcher.",
		},
	)

	imageIngestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "image_ingest_total",
			Help: "Image ingestion results, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	jobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "job_duration_seconds",
			Help:    "Duration of scheduled jobs.",
			Buckets: []float64{0.5, 1, 5, 15, 60, 300, 900, 3600},
		},
		[]string{"job", "status"},
	)

	clickEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "click_events_dropped_total",
			Help: "Click events dropped because the buffer was full.",
		},
	)
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem counts one processed feed item.
func ObserveItem(source, outcome string) {
	crawlerItemsTotal.WithLabelValues(source, outcome).Inc()
}

func ObserveSource(outcome string) {
	crawlerSourcesTotal.WithLabelValues(outcome).Inc()
}

func ObserveFetchRetry() {
	fetchRetriesTotal.Inc()
}

func ObserveImage(outcome string) {
	imageIngestTotal.WithLabelValues(outcome).Inc()
}

// ObserveJob records how long a scheduled job ran.
func ObserveJob(job string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	jobDurationSeconds.WithLabelValues(job, status).Observe(d.Seconds())
}

func ObserveClickDropped() {
	clickEventsDroppedTotal.Inc()
}
