package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "apotekpos"

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_orders_total",
			Help: "Processed orders by outcome",
		},
		[]string{"outcome"},
	)

	UnitsDeductedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_units_deducted_total",
			Help: "Total units deducted from batches by completed sales",
		},
	)

	BatchesExpiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_batches_expired_total",
			Help: "Batches removed because they were expired when touched",
		},
	)
)

const (
	OrderOutcomeCompleted = "completed"
	OrderOutcomeRejected  = "rejected"
	OrderOutcomeFailed    = "failed"
)

// RecordOrder increments the order counter for the given outcome.
func RecordOrder(outcome string) {
	OrdersTotal.WithLabelValues(outcome).Inc()
}
