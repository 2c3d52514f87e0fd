package exec

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the dispatcher's prometheus collectors. A nil *Metrics
// records nothing.
type Metrics struct {
	batches  *prometheus.CounterVec
	txs      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		batches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbb",
			Subsystem: "exec",
			Name:      "batches_total",
			Help:      "Dispatched transaction batches.",
		}, []string{"mode", "outcome"}),
		txs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pbb",
			Subsystem: "exec",
			Name:      "transactions_total",
			Help:      "Transactions by dispatch outcome.",
		}, []string{"mode", "outcome"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pbb",
			Subsystem: "exec",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent executing one batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}, []string{"mode"}),
	}
}

func (m *Metrics) observeBatch(mode Mode, err error, start time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	m.batches.WithLabelValues(mode.String(), outcome).Inc()
	m.duration.WithLabelValues(mode.String()).Observe(time.Since(start).Seconds())
}

func (m *Metrics) addTxs(mode Mode, outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.txs.WithLabelValues(mode.String(), outcome).Add(float64(n))
}
