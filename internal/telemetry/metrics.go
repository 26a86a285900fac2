package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// WebhookMetrics holds Prometheus metrics for the billing event feed.
// All methods are safe to call on a nil receiver.
type WebhookMetrics struct {
	WebhookReceived  *prometheus.CounterVec
	WebhookProcessed *prometheus.CounterVec
	WebhookFailed    *prometheus.CounterVec
	WebhookLatency   *prometheus.HistogramVec
	SignatureRejects prometheus.Counter
	LookupMisses     *prometheus.CounterVec
	IntegrityFaults  *prometheus.CounterVec
	CheckoutsStarted prometheus.Counter
	StripeAPIErrors  *prometheus.CounterVec
}

// NewWebhookMetrics creates and registers the webhook metrics with reg.
// A nil reg registers with prometheus.DefaultRegisterer.
func NewWebhookMetrics(reg prometheus.Registerer, namespace string) *WebhookMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	if namespace == "" {
		namespace = "mesa"
	}
	factory := promauto.With(reg)
	subsystem := "billing"

	return &WebhookMetrics{
		WebhookReceived: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_received_total",
				Help:      "Verified webhook events received, by event type",
			},
			[]string{"event_type"},
		),
		WebhookProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_processed_total",
				Help:      "Webhook events processed, by event type and outcome",
			},
			[]string{"event_type", "outcome"}, // outcome: applied, skipped, lookup_miss, unhandled, failed
		),
		WebhookFailed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_failed_total",
				Help:      "Webhook events rejected with a non-2xx response",
			},
			[]string{"event_type", "reason"},
		),
		WebhookLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_duration_seconds",
				Help:      "Time spent applying a webhook event",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"event_type"},
		),
		SignatureRejects: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "webhook_signature_rejected_total",
				Help:      "Webhook requests rejected before parsing because the signature did not verify",
			},
		),
		LookupMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscription_lookup_miss_total",
				Help:      "Events whose lookup key matched no subscription record",
			},
			[]string{"family"},
		),
		IntegrityFaults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "subscription_integrity_faults_total",
				Help:      "Scoped writes that matched more than one subscription record",
			},
			[]string{"family"},
		),
		CheckoutsStarted: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "checkout_sessions_created_total",
				Help:      "Subscription checkout sessions created",
			},
		),
		StripeAPIErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "stripe_api_errors_total",
				Help:      "Failed Stripe API calls, by operation",
			},
			[]string{"operation"},
		),
	}
}

func (m *WebhookMetrics) Received(eventType string) {
	if m == nil {
		return
	}
	m.WebhookReceived.WithLabelValues(eventType).Inc()
}

// Observe records the outcome and latency of one event.
func (m *WebhookMetrics) Observe(eventType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.WebhookProcessed.WithLabelValues(eventType, outcome).Inc()
	m.WebhookLatency.WithLabelValues(eventType).Observe(d.Seconds())
}

func (m *WebhookMetrics) Failed(eventType, reason string) {
	if m == nil {
		return
	}
	m.WebhookFailed.WithLabelValues(eventType, reason).Inc()
}

func (m *WebhookMetrics) SignatureRejected() {
	if m == nil {
		return
	}
	m.SignatureRejects.Inc()
}

func (m *WebhookMetrics) LookupMiss(family string) {
	if m == nil {
		return
	}
	m.LookupMisses.WithLabelValues(family).Inc()
}

func (m *WebhookMetrics) IntegrityFault(family string) {
	if m == nil {
		return
	}
	m.IntegrityFaults.WithLabelValues(family).Inc()
}

func (m *WebhookMetrics) CheckoutStarted() {
	if m == nil {
		return
	}
	m.CheckoutsStarted.Inc()
}

func (m *WebhookMetrics) StripeError(operation string) {
	if m == nil {
		return
	}
	m.StripeAPIErrors.WithLabelValues(operation).Inc()
}
