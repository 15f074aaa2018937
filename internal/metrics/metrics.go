package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CheckoutsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dukapos_checkouts_total",
		Help: "Total number of completed checkouts",
	}, []string{"payment_method", "status"})

	CheckoutFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dukapos_checkout_failures_total",
		Help: "Total number of failed checkouts",
	}, []string{"step"})

	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dukapos_settlements_total",
		Help: "Total number of balance settlement payments recorded",
	})

	BalancesClearedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dukapos_balances_cleared_total",
		Help: "Total number of customer balances fully cleared",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dukapos_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dukapos_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)
