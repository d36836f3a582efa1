// Package metrics exposes Prometheus counters and histograms for the
// ingest and worker servers, using the same client_golang library the
// teacher uses to query Prometheus, inverted here to exposition: this
// process is a target being scraped rather than a scraper.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the set of Prometheus collectors registered by either
// server binary.
type Metrics struct {
	Registry *prometheus.Registry

	EventsIngested   prometheus.Counter
	IngestRejected   *prometheus.CounterVec
	JobsClaimed      prometheus.Counter
	JobsDone         prometheus.Counter
	JobsFailed       prometheus.Counter
	DetectorDuration prometheus.Histogram
	DetectorMode     *prometheus.CounterVec
}

// New constructs and registers a fresh Metrics set against its own
// registry so concurrent test instances never collide on the default
// global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		EventsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscale_events_ingested_total",
			Help: "Number of events accepted by the ingest endpoint.",
		}),
		IngestRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscale_ingest_rejected_total",
			Help: "Number of ingest requests rejected, by reason.",
		}, []string{"reason"}),
		JobsClaimed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscale_jobs_claimed_total",
			Help: "Number of jobs claimed by the worker loop.",
		}),
		JobsDone: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscale_jobs_done_total",
			Help: "Number of jobs completed successfully.",
		}),
		JobsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "autoscale_jobs_failed_total",
			Help: "Number of jobs that ended in the failed state.",
		}),
		DetectorDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoscale_detector_duration_seconds",
			Help:    "Wall time spent running the plateau detector and consensus refiner per job.",
			Buckets: prometheus.DefBuckets,
		}),
		DetectorMode: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscale_detector_mode_total",
			Help: "Number of detector results, by mode.",
		}, []string{"mode"}),
	}

	reg.MustRegister(
		m.EventsIngested, m.IngestRejected, m.JobsClaimed,
		m.JobsDone, m.JobsFailed, m.DetectorDuration, m.DetectorMode,
	)
	return m
}

// Handler returns the HTTP handler to mount at /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
