package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offmarket_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offmarket_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Evaluation metrics
	EvaluationRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offmarket_evaluation_runs_total",
			Help: "Total number of alert evaluation runs",
		},
		[]string{"status"}, // status: success, failed, skipped
	)

	EvaluationRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "offmarket_evaluation_run_duration_seconds",
			Help:    "Time taken by one evaluation run",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	AlertsEvaluatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offmarket_alerts_evaluated_total",
			Help: "Total number of alerts compared against the current price",
		},
	)

	AlertsTriggeredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offmarket_alerts_triggered_total",
			Help: "Total number of alerts whose price condition was met",
		},
	)

	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offmarket_notifications_total",
			Help: "Total number of price drop emails attempted",
		},
		[]string{"status"}, // status: sent, failed
	)

	AlertWriteFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offmarket_alert_write_failures_total",
			Help: "Total number of failed triggered-state writes",
		},
	)

	// Event publishing
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offmarket_events_published_total",
			Help: "Total number of alert events published",
		},
		[]string{"sink", "status"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offmarket_websocket_clients",
			Help: "Current number of connected websocket clients",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offmarket_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)
