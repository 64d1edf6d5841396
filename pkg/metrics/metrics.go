// Package metrics provides Prometheus metrics for the Data Connect client.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Requests counts calls to the client, labelled by HTTP method. Retries of
	// the same call are not counted again.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataconnect_requests_total",
		Help: "Total number of Data Connect API calls",
	}, []string{"method"})

	// RequestErrors counts calls that exhausted their retry budget.
	RequestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataconnect_request_errors_total",
		Help: "Total number of Data Connect API calls that failed after all retries",
	}, []string{"method"})

	// Attempts counts individual HTTP exchanges by response status.
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dataconnect_attempts_total",
		Help: "Total number of HTTP attempts against the Data Connect API",
	}, []string{"method", "status"})

	// TokenExchanges counts successful token exchanges.
	TokenExchanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dataconnect_token_exchanges_total",
		Help: "Total number of successful OAuth2 token exchanges",
	})

	// AttemptDuration tracks how long a single HTTP exchange takes
	AttemptDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "dataconnect_attempt_duration_seconds",
		Help:    "Duration of a single Data Connect HTTP attempt in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method"})

	// SeriesPoints tracks the number of points returned per report
	SeriesPoints = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dataconnect_series_points",
		Help: "Number of points in the last series returned for a report",
	}, []string{"report"})
)
