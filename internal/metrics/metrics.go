// Package metrics exposes the prometheus collectors for the marketplace
// core.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	httpInFlight  prometheus.Gauge
	transitions   *prometheus.CounterVec
	notifications prometheus.Counter
	chatMessages  prometheus.Counter
	wsSessions    prometheus.Gauge
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_http_requests_in_flight",
			Help: "Requests currently being served.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_application_transitions_total",
			Help: "Application status transitions by target status.",
		}, []string{"target"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_notifications_total",
			Help: "Durable notifications written.",
		}),
		chatMessages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "marketplace_chat_messages_total",
			Help: "Chat messages persisted.",
		}),
		wsSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketplace_chat_live_sessions",
			Help: "Open live chat subscriptions on this instance.",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests, m.httpDuration, m.httpInFlight,
		m.transitions, m.notifications, m.chatMessages, m.wsSessions,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// IncrementInFlight marks a request as in flight.
func (m *Metrics) IncrementInFlight() { m.httpInFlight.Inc() }

// DecrementInFlight marks a request as done.
func (m *Metrics) DecrementInFlight() { m.httpInFlight.Dec() }

// RecordTransition records an application status transition.
func (m *Metrics) RecordTransition(target string) {
	m.transitions.WithLabelValues(target).Inc()
}

// RecordNotification records one durable notification write.
func (m *Metrics) RecordNotification() { m.notifications.Inc() }

// RecordChatMessage records one persisted chat message.
func (m *Metrics) RecordChatMessage() { m.chatMessages.Inc() }

// LiveSessionOpened tracks a new live chat subscription.
func (m *Metrics) LiveSessionOpened() { m.wsSessions.Inc() }

// LiveSessionClosed tracks a released live chat subscription.
func (m *Metrics) LiveSessionClosed() { m.wsSessions.Dec() }
