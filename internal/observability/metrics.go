// README: Prometheus metrics for dispatch operations and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesRequestedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rideflow", Name: "rides_requested_total", Help: "Total ride requests accepted into the system"})
	ClaimsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideflow", Name: "claims_total", Help: "Driver claim attempts by outcome"},
		[]string{"result"},
	)
	SettlementsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rideflow", Name: "settlements_total", Help: "Completed-ride settlements"})
	DriversOnline = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rideflow", Name: "drivers_online", Help: "Drivers currently marked available"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "rideflow", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "rideflow",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
