package telemetry

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus primitives scraped from /metrics.
type Metrics struct {
	apiRequests     *prometheus.CounterVec
	apiDuration     *prometheus.HistogramVec
	handlerDuration *prometheus.HistogramVec
	receiveErrors   *prometheus.CounterVec
}

// NewMetrics registers the collectors on reg and returns them.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_api_requests_total",
		Help: "Counts API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_api_duration_seconds",
		Help:    "API request latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	handlerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_notification_handler_duration_seconds",
		Help:    "Notification handler durations by queue and outcome.",
		Buckets: prometheus.DefBuckets,
	}, []string{"queue", "outcome"})

	receiveErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "console_notification_receive_errors_total",
		Help: "Counts failed queue receive calls.",
	}, []string{"queue"})

	if reg != nil {
		reg.MustRegister(apiRequests, apiDuration, handlerDuration, receiveErrors)
	}

	return &Metrics{
		apiRequests:     apiRequests,
		apiDuration:     apiDuration,
		handlerDuration: handlerDuration,
		receiveErrors:   receiveErrors,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, strconv.Itoa(status)).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordHandler observes one notification handler invocation.
func (m *Metrics) RecordHandler(queue, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.handlerDuration.WithLabelValues(sanitizeLabel(queue), sanitizeLabel(outcome)).Observe(duration.Seconds())
}

// RecordReceiveError counts a failed receive call against a queue.
func (m *Metrics) RecordReceiveError(queue string) {
	if m == nil {
		return
	}
	m.receiveErrors.WithLabelValues(sanitizeLabel(queue)).Inc()
}

func sanitizeLabel(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	return value
}
