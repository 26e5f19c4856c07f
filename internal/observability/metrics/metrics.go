package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "requestdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_request_transitions_total",
		Help: "Request status transitions by source and target status",
	}, []string{"from", "to"})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_notifications_created_total",
		Help: "Persisted notifications by type and result",
	}, []string{"type", "result"})

	notificationPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_notification_pushes_total",
		Help: "Live notification pushes by result (delivered, offline, failed)",
	}, []string{"result"})

	liveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "requestdesk_live_connections",
		Help: "Users holding a live notification channel",
	})

	mailSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_mail_sent_total",
		Help: "Outbound mail by template and result",
	}, []string{"template", "result"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "requestdesk_circuit_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
	}, []string{"name"})

	blobOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_blob_operations_total",
		Help: "Blob store operations by backend, operation and result",
	}, []string{"backend", "op", "result"})

	authEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "requestdesk_auth_events_total",
		Help: "Authentication events by kind and result",
	}, []string{"event", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveTransition counts one status history append.
func ObserveTransition(from, to string) {
	if from == "" {
		from = "none"
	}
	requestTransitions.WithLabelValues(from, to).Inc()
}

func ObserveNotificationCreated(kind, result string) {
	notificationsCreated.WithLabelValues(kind, result).Inc()
}

func ObservePush(result string) {
	notificationPushes.WithLabelValues(result).Inc()
}

// SetLiveConnections sets the live channel gauge.
func SetLiveConnections(count int) {
	if count < 0 {
		count = 0
	}
	liveConnections.Set(float64(count))
}

func ObserveMail(template, result string) {
	mailSent.WithLabelValues(template, result).Inc()
}

func SetBreakerState(name string, state int) {
	breakerState.WithLabelValues(name).Set(float64(state))
}

func ObserveBlob(backend, op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	blobOperations.WithLabelValues(backend, op, result).Inc()
}

func ObserveAuth(event, result string) {
	authEvents.WithLabelValues(event, result).Inc()
}
