package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the billing engine collectors.
type Metrics struct {
	WebhookEventsTotal    *prometheus.CounterVec
	WebhookDuration       *prometheus.HistogramVec
	RegistrationsTotal    *prometheus.CounterVec
	NotificationsEnqueued *prometheus.CounterVec
	ProviderRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicefox_billing_webhook_events_total",
				Help: "Webhook deliveries by outcome",
			},
			[]string{"outcome"},
		),
		WebhookDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "invoicefox_billing_webhook_duration_seconds",
				Help:    "Webhook handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),
		RegistrationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicefox_registrations_total",
				Help: "Account registrations by initial tier",
			},
			[]string{"tier"},
		),
		NotificationsEnqueued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicefox_notifications_enqueued_total",
				Help: "Billing notifications enqueued by type",
			},
			[]string{"type"},
		),
		ProviderRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "invoicefox_billing_provider_requests_total",
				Help: "Outbound billing provider requests by operation and status",
			},
			[]string{"operation", "status"},
		),
	}

	registry.MustRegister(
		m.WebhookEventsTotal,
		m.WebhookDuration,
		m.RegistrationsTotal,
		m.NotificationsEnqueued,
		m.ProviderRequestsTotal,
	)
	return m
}

// ObserveWebhook records one webhook delivery.
func (m *Metrics) ObserveWebhook(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(outcome).Inc()
	m.WebhookDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (m *Metrics) ObserveRegistration(tier string) {
	if m == nil {
		return
	}
	m.RegistrationsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveNotification(noticeType string) {
	if m == nil {
		return
	}
	m.NotificationsEnqueued.WithLabelValues(noticeType).Inc()
}

func (m *Metrics) ObserveProviderRequest(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderRequestsTotal.WithLabelValues(operation, status).Inc()
}

var (
	registry = prometheus.NewRegistry()
	defaultM = func() *Metrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		return NewMetrics(registry)
	}()
)

// Default returns the process-wide collectors.
func Default() *Metrics {
	return defaultM
}

// Handler exposes the process-wide registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
