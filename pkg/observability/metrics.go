// Package observability provides Prometheus metrics, health probes,
// and OpenTelemetry tracing for the session manager.
package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sessionStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorai_session_starts_total",
			Help: "Session start attempts by agent and outcome",
		},
		[]string{"agent", "status"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentorai_active_sessions",
			Help: "Number of non-terminal sessions",
		},
	)

	transcriptEntriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorai_transcript_entries_total",
			Help: "Transcript entries appended by role",
		},
		[]string{"role"},
	)

	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mentorai_deliveries_total",
			Help: "Webhook delivery attempts by trigger and outcome",
		},
		[]string{"trigger", "status"},
	)

	deliveryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mentorai_delivery_duration_seconds",
			Help:    "Webhook delivery duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	spooledRecords = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "mentorai_spooled_records",
			Help: "Conversation records awaiting re-delivery",
		},
	)

	initOnce sync.Once
)

// InitMetrics registers the Prometheus metrics exactly once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sessionStartsTotal,
			activeSessions,
			transcriptEntriesTotal,
			deliveriesTotal,
			deliveryDuration,
			spooledRecords,
		)
	})
}

// MetricsHandler returns an HTTP handler for Prometheus metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStart records a session start outcome.
func RecordSessionStart(agent, status string) {
	sessionStartsTotal.WithLabelValues(agent, status).Inc()
}

// SetActiveSessions sets the active sessions gauge.
func SetActiveSessions(count int) {
	activeSessions.Set(float64(count))
}

// RecordTranscriptEntry records a transcript append.
func RecordTranscriptEntry(role string) {
	transcriptEntriesTotal.WithLabelValues(role).Inc()
}

// RecordDelivery records a webhook delivery attempt.
func RecordDelivery(trigger, status string, duration time.Duration) {
	deliveriesTotal.WithLabelValues(trigger, status).Inc()
	deliveryDuration.WithLabelValues(trigger).Observe(duration.Seconds())
}

// SetSpooledRecords sets the spooled records gauge.
func SetSpooledRecords(count int) {
	spooledRecords.Set(float64(count))
}
