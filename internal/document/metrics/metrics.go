// Package metrics provides observability for the document workflow.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks workflow throughput and signing latency.
type Metrics struct {
	DocumentsCreated   prometheus.Counter
	DocumentsCompleted prometheus.Counter
	SignaturesRecorded prometheus.Counter
	TokensRedeemed     prometheus.Counter
	SignDuration       prometheus.Histogram
}

// New registers and returns the document module metrics.
func New() *Metrics {
	return &Metrics{
		DocumentsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_documents_created_total",
			Help: "Total number of documents created",
		}),
		DocumentsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_documents_completed_total",
			Help: "Total number of documents that reached completed status",
		}),
		SignaturesRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_signatures_recorded_total",
			Help: "Total number of signatures recorded across both pipelines",
		}),
		TokensRedeemed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "paraph_tokens_redeemed_total",
			Help: "Total number of verification tokens redeemed by remote recipients",
		}),
		SignDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "paraph_sign_duration_seconds",
			Help:    "Duration of signature recording operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// ObserveSign records the duration of a signature recording operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSign(start time.Time) {
	m.SignDuration.Observe(time.Since(start).Seconds())
}
