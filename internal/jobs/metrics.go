package jobs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for the job service.
type Metrics struct {
	Submitted  *prometheus.CounterVec
	Rejected   *prometheus.CounterVec
	Finished   *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	QueueDepth prometheus.Gauge
}

// NewMetrics creates job metrics registered with reg. A nil reg leaves them
// unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Submitted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finplan_jobs_submitted_total",
			Help: "Jobs accepted for execution",
		}, []string{"type"}),
		Rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finplan_jobs_rejected_total",
			Help: "Job submissions refused",
		}, []string{"reason"}), // "invalid", "queue_full", "closed"
		Finished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finplan_jobs_finished_total",
			Help: "Jobs that reached a terminal status",
		}, []string{"type", "status"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finplan_job_duration_seconds",
			Help:    "Time from job start to terminal status",
			Buckets: prometheus.DefBuckets,
		}, []string{"type"}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "finplan_jobs_queue_depth",
			Help: "Jobs waiting for a worker",
		}),
	}
}
