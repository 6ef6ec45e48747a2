package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for check runs and background jobs.
type Metrics struct {
	runs      *prometheus.CounterVec
	failures  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	rows      *prometheus.CounterVec
	documents *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddRows counts report rows by check status.
func (m *Metrics) AddRows(status string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.rows.WithLabelValues(status).Add(float64(count))
}

// AddDocuments counts documents by outcome (renamed, unrenameable, failed).
func (m *Metrics) AddDocuments(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.documents.WithLabelValues(outcome).Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicecheck_jobs_total",
		Help: "Total check and rename executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicecheck_jobs_failures_total",
		Help: "Total failures observed for check and rename executions.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "invoicecheck_job_duration_seconds",
		Help:    "Duration in seconds of check and rename executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicecheck_report_rows_total",
		Help: "Reconciliation report rows grouped by check status.",
	}, []string{"status"})
	documents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "invoicecheck_documents_total",
		Help: "Processed documents grouped by outcome.",
	}, []string{"outcome"})
	registerer.MustRegister(runs, failures, duration, rows, documents)
	return &Metrics{runs: runs, failures: failures, duration: duration, rows: rows, documents: documents}
}
