package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for Mailflock
type Metrics struct {
	// Delivery counters
	EmailsSentTotal   *prometheus.CounterVec
	EmailsFailedTotal *prometheus.CounterVec

	// Batch metrics
	BatchesStartedTotal    prometheus.Counter
	BatchesRunning         prometheus.Gauge
	BatchDurationSeconds   prometheus.Histogram
	BatchRecipientsTotal   prometheus.Counter

	// Sender pool
	SendersEligible prometheus.Gauge

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		EmailsSentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailflock_emails_sent_total",
				Help: "Total number of successfully delivered emails",
			},
			[]string{"sender"},
		),
		EmailsFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailflock_emails_failed_total",
				Help: "Total number of failed delivery attempts",
			},
			[]string{"sender", "error_kind"},
		),

		BatchesStartedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailflock_batches_started_total",
				Help: "Total number of batches started",
			},
		),
		BatchesRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailflock_batches_running",
				Help: "Number of batches currently running",
			},
		),
		BatchDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailflock_batch_duration_seconds",
				Help:    "Batch run duration in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),
		BatchRecipientsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "mailflock_batch_recipients_total",
				Help: "Total number of recipients processed across all batches",
			},
		),

		SendersEligible: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailflock_senders_eligible",
				Help: "Number of senders currently eligible to send",
			},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailflock_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailflock_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.EmailsSentTotal,
		m.EmailsFailedTotal,
		m.BatchesStartedTotal,
		m.BatchesRunning,
		m.BatchDurationSeconds,
		m.BatchRecipientsTotal,
		m.SendersEligible,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// EmailSent records a successful delivery. Implements batch.Observer.
func (m *Metrics) EmailSent(senderEmail string) {
	m.EmailsSentTotal.WithLabelValues(senderEmail).Inc()
}

// EmailFailed records a failed delivery attempt. Implements batch.Observer.
func (m *Metrics) EmailFailed(senderEmail, kind string) {
	m.EmailsFailedTotal.WithLabelValues(senderEmail, kind).Inc()
}

// BatchFinished records a completed batch. Implements batch.Observer.
func (m *Metrics) BatchFinished(duration time.Duration, sent, failed int) {
	m.BatchDurationSeconds.Observe(duration.Seconds())
	m.BatchRecipientsTotal.Add(float64(sent + failed))
	m.BatchesRunning.Dec()
}

// BatchStarted records the start of a batch run and the size of the eligible
// sender pool it begins with.
func (m *Metrics) BatchStarted(eligibleSenders int) {
	m.BatchesStartedTotal.Inc()
	m.BatchesRunning.Inc()
	m.SendersEligible.Set(float64(eligibleSenders))
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}
