package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registry operations.
type Metrics struct {
	// Operation outcomes by op ("init", "resolve", "register") and result
	Operations *prometheus.CounterVec

	// Operation latency by op
	Latency *prometheus.HistogramVec

	// Nodes inspected by each authorization walk
	WalkSteps prometheus.Histogram

	// Journal appends that failed after the catalog committed
	JournalFailures prometheus.Counter
}

// New creates a Metrics instance registered with reg. A nil reg registers
// with the default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		Operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_operations_total",
			Help: "Total registry operations by operation and result",
		}, []string{"op", "result"}),

		Latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namereg_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"op"}),

		WalkSteps: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "namereg_authz_walk_steps",
			Help:    "Nodes inspected per authorization walk",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16, 32, 64},
		}),

		JournalFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "namereg_journal_failures_total",
			Help: "Journal appends that failed after the mutation committed",
		}),
	}
}

// ObserveOperation records one operation's result label and duration.
func (m *Metrics) ObserveOperation(op, result string, d time.Duration) {
	if m != nil {
		m.Operations.WithLabelValues(op, result).Inc()
		m.Latency.WithLabelValues(op).Observe(d.Seconds())
	}
}

// ObserveWalk records the length of one authorization walk.
func (m *Metrics) ObserveWalk(steps int) {
	if m != nil && steps > 0 {
		m.WalkSteps.Observe(float64(steps))
	}
}

// IncrementJournalFailure counts a journal append that failed.
func (m *Metrics) IncrementJournalFailure() {
	if m != nil {
		m.JournalFailures.Inc()
	}
}
