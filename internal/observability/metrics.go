// Package observability registers the client's Prometheus collectors.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	apiRequestCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "api",
		Name:      "requests_total",
		Help:      "Activity API calls grouped by operation and outcome kind.",
	}, []string{"operation", "outcome"})

	apiRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "fitness_client",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "Latency of activity API calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	sessionApplyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "session",
		Name:      "token_writes_total",
		Help:      "Token notifications reaching the session store, by result (applied, duplicate, logout).",
	}, []string{"result"})

	staleResponseCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "fitness_client",
		Subsystem: "view",
		Name:      "stale_responses_total",
		Help:      "Fetch results discarded because a newer request superseded them.",
	}, []string{"controller"})

	lastTokenRefreshGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "fitness_client",
		Subsystem: "identity",
		Name:      "last_token_refresh_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful token refresh.",
	})
)

func init() {
	prometheus.MustRegister(apiRequestCounter, apiRequestDuration, sessionApplyCounter, staleResponseCounter, lastTokenRefreshGauge)
}

// ObserveRequest records one activity API call. outcome is "ok" or an error kind name.
func ObserveRequest(operation, outcome string, elapsed time.Duration) {
	apiRequestCounter.WithLabelValues(operation, outcome).Inc()
	apiRequestDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordSessionWrite counts a session store write attempt.
func RecordSessionWrite(result string) {
	sessionApplyCounter.WithLabelValues(result).Inc()
}

// RecordStaleResponse counts a dropped fetch result.
func RecordStaleResponse(controller string) {
	staleResponseCounter.WithLabelValues(controller).Inc()
}

// RecordTokenRefresh updates the refresh watermark gauge.
func RecordTokenRefresh(ts time.Time) {
	if ts.IsZero() {
		return
	}
	lastTokenRefreshGauge.Set(float64(ts.Unix()))
}
