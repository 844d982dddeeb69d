package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of the billing core. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Payment metrics
	PaymentsInitialized *prometheus.CounterVec
	PaymentsVerified    *prometheus.CounterVec
	GatewayDuration     *prometheus.HistogramVec

	// Webhook metrics
	WebhooksTotal *prometheus.CounterVec

	// Ledger and entitlement metrics
	CreditDebits       *prometheus.CounterVec
	EntitlementDenials *prometheus.CounterVec

	// Background job metrics
	JobsTotal     *prometheus.CounterVec
	SchedulerRuns *prometheus.CounterVec
}

// New creates and registers all metrics on a private registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PaymentsInitialized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_payments_initialized_total",
				Help: "Payment initializations by invoice type and outcome",
			},
			[]string{"type", "outcome"},
		),
		PaymentsVerified: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_payments_verified_total",
				Help: "Payment verifications by invoice type and outcome",
			},
			[]string{"type", "outcome"},
		),
		GatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "certfox_gateway_request_duration_seconds",
				Help:    "Payment gateway request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		WebhooksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_webhooks_total",
				Help: "Received payment webhooks by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		CreditDebits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_credit_debits_total",
				Help: "Credit ledger debits by outcome",
			},
			[]string{"outcome"},
		),
		EntitlementDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_entitlement_denials_total",
				Help: "Denied entitlement checks by check kind",
			},
			[]string{"check"},
		),
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_jobs_total",
				Help: "Background jobs by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		SchedulerRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "certfox_scheduler_runs_total",
				Help: "Scheduled task runs by task and outcome",
			},
			[]string{"task", "outcome"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PaymentsInitialized,
		m.PaymentsVerified,
		m.GatewayDuration,
		m.WebhooksTotal,
		m.CreditDebits,
		m.EntitlementDenials,
		m.JobsTotal,
		m.SchedulerRuns,
	)
	return m
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics instance
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New()
	})
	return defaultMetrics
}

// Registry exposes the underlying registry, e.g. for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) PaymentInitialized(invoiceType, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsInitialized.WithLabelValues(invoiceType, outcome).Inc()
}

func (m *Metrics) PaymentVerified(invoiceType, outcome string) {
	if m == nil {
		return
	}
	m.PaymentsVerified.WithLabelValues(invoiceType, outcome).Inc()
}

// ObserveGateway records the duration of a gateway call started at start
func (m *Metrics) ObserveGateway(operation string, start time.Time) {
	if m == nil {
		return
	}
	m.GatewayDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) Webhook(event, outcome string) {
	if m == nil {
		return
	}
	m.WebhooksTotal.WithLabelValues(event, outcome).Inc()
}

func (m *Metrics) CreditDebit(outcome string) {
	if m == nil {
		return
	}
	m.CreditDebits.WithLabelValues(outcome).Inc()
}

func (m *Metrics) EntitlementDenied(check string) {
	if m == nil {
		return
	}
	m.EntitlementDenials.WithLabelValues(check).Inc()
}

func (m *Metrics) Job(jobType, outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(jobType, outcome).Inc()
}

func (m *Metrics) SchedulerRun(task, outcome string) {
	if m == nil {
		return
	}
	m.SchedulerRuns.WithLabelValues(task, outcome).Inc()
}
