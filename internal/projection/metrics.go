package projection

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus instruments for the engine.
//
//   - finplan_projection_calculations_total{type,outcome}
//   - finplan_projection_duration_seconds{type}
//   - finplan_projection_queue_depth
type Metrics struct {
	Calculations *prometheus.CounterVec
	Duration     *prometheus.HistogramVec
	QueueDepth   prometheus.Gauge
}

// NewMetrics creates engine metrics registered with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Calculations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finplan_projection_calculations_total",
				Help: "Total projection messages processed",
			},
			[]string{"type", "outcome"}, // outcome: "result" or "error"
		),
		Duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finplan_projection_duration_seconds",
				Help:    "Time spent computing a projection",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"type"},
		),
		QueueDepth: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "finplan_projection_queue_depth",
				Help: "Messages waiting for a projection worker",
			},
		),
	}
}

func typeLabel(t MessageType) string {
	if t.Valid() {
		return string(t)
	}
	return "unknown"
}
