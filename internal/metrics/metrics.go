// Package metrics exposes run results as Prometheus metrics. The harness
// is a batch job, so metrics are written to a node_exporter textfile
// rather than served.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yes1688/arkprobe/internal/report"
)

const namespace = "arkprobe"

// Recorder holds the metrics of one process. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	registry *prometheus.Registry

	casesTotal   *prometheus.CounterVec   // by status and priority
	attempts     prometheus.Counter       // HTTP attempts including retries
	caseDuration *prometheus.HistogramVec // by priority
	passRate     prometheus.Gauge
	lastRun      prometheus.Gauge

	loadRequests *prometheus.CounterVec // by result (success/failure)
	loadLatency  prometheus.Histogram
}

// New creates a Recorder with its own registry.
func New() (*Recorder, error) {
	m := &Recorder{
		registry: prometheus.NewRegistry(),

		casesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "cases_total",
			Help:      "Cases executed, by final status and priority",
		}, []string{"status", "priority"}),

		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "attempts_total",
			Help:      "HTTP attempts made, including retries",
		}),

		caseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "case_duration_seconds",
			Help:      "Wall time per executed case, including retries",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"priority"}),

		passRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "pass_rate",
			Help:      "Pass rate of the last run (passed / executed)",
		}),

		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_finished_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),

		loadRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "requests_total",
			Help:      "Load smoke requests, by result",
		}, []string{"result"}),

		loadLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "load",
			Name:      "request_duration_seconds",
			Help:      "Load smoke request latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	collectors := []prometheus.Collector{
		m.casesTotal, m.attempts, m.caseDuration, m.passRate, m.lastRun, m.loadRequests, m.loadLatency,
	}

	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register: %w", err)
		}
	}

	return m, nil
}

// Registry returns the underlying registry.
func (m *Recorder) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// ObserveOutcome records one finished case.
func (m *Recorder) ObserveOutcome(o report.Outcome) {
	if m == nil {
		return
	}

	m.casesTotal.WithLabelValues(string(o.Status), string(o.Priority)).Inc()
	m.attempts.Add(float64(o.Attempts))

	if o.Status != report.StatusSkipped {
		m.caseDuration.WithLabelValues(string(o.Priority)).Observe(o.Elapsed.Seconds())
	}
}

// ObserveRun records the summary of a finished run.
func (m *Recorder) ObserveRun(s report.Summary) {
	if m == nil {
		return
	}

	m.passRate.Set(s.PassRate)
	m.lastRun.Set(float64(s.FinishedAt.Unix()))
}

// ObserveLoadRequest records one load smoke request.
func (m *Recorder) ObserveLoadRequest(ok bool, elapsed time.Duration) {
	if m == nil {
		return
	}

	result := "failure"
	if ok {
		result = "success"
	}

	m.loadRequests.WithLabelValues(result).Inc()
	m.loadLatency.Observe(elapsed.Seconds())
}

// WriteTextfile writes every metric to path in the Prometheus text format.
// The write is atomic, so a node_exporter scrape never sees a partial file.
func (m *Recorder) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("metrics: writing %s: %w", path, err)
	}

	return nil
}
