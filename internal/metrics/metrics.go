// Package metrics provides Prometheus metrics for newsie sync operations.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "newsie"

// Metrics holds the sync collectors. A nil *Metrics records nothing.
type Metrics struct {
	// OpsTotal counts engine operations by op and result.
	OpsTotal *prometheus.CounterVec
	// OpDuration measures engine operation duration.
	OpDuration *prometheus.HistogramVec
	// ArticlesIngested counts articles persisted by add and refresh.
	ArticlesIngested prometheus.Counter
	// FeedsNotModified counts refreshes answered with 304.
	FeedsNotModified prometheus.Counter
}

// New registers the collectors with reg. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OpsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sync_operations_total",
				Help:      "Total number of sync engine operations",
			},
			[]string{"op", "result"},
		),
		OpDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "sync_operation_duration_seconds",
				Help:      "Duration of sync engine operations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		ArticlesIngested: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "articles_ingested_total",
				Help:      "Total number of articles stored",
			},
		),
		FeedsNotModified: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feeds_not_modified_total",
				Help:      "Refreshes skipped because the server returned 304",
			},
		),
	}
}

// RecordOp records one operation with its result label and start time.
func (m *Metrics) RecordOp(op, result string, start time.Time) {
	if m == nil {
		return
	}
	m.OpsTotal.WithLabelValues(op, result).Inc()
	m.OpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RecordIngested adds n to the ingested article count.
func (m *Metrics) RecordIngested(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ArticlesIngested.Add(float64(n))
}

func (m *Metrics) RecordNotModified() {
	if m == nil {
		return
	}
	m.FeedsNotModified.Inc()
}
