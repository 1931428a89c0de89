// Package metrics holds the Prometheus instruments for the daemon.
// Registration goes through promauto so the default registry picks
// everything up and promhttp serves it from the API.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobRuns counts scheduled job outcomes. Result is one of
	// ok, failed, expired.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_job_runs_total",
		Help: "Total scheduled job runs by outcome",
	}, []string{"job", "result"})

	// JobSkips counts ticks dropped because the previous run of the
	// same job was still in flight.
	JobSkips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_job_skips_total",
		Help: "Total job triggers skipped due to an overlapping run",
	}, []string{"job"})

	// JobDuration observes wall time of completed job runs.
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "forestwatch_job_duration_seconds",
		Help:    "Job run duration",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	}, []string{"job"})

	// AlertsCreated counts alerts newly created by detectors.
	// Deduplicated create attempts are not counted.
	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_alerts_created_total",
		Help: "Total alerts created by category and severity",
	}, []string{"category", "severity"})

	// OpenAlerts tracks the number of unresolved alerts.
	OpenAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forestwatch_open_alerts",
		Help: "Current number of unresolved alerts",
	})

	// Notifications counts per-recipient delivery attempts. Outcome is
	// one of sent, failed, skipped.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "forestwatch_notifications_total",
		Help: "Total per-recipient notification deliveries by channel and outcome",
	}, []string{"channel", "outcome"})
)
