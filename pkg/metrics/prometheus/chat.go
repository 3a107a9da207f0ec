// Package prometheus contains the Prometheus-backed implementations of the
// metric interfaces defined in pkg/metrics.
//
// Importing this package (typically with a blank import from the server
// start command) registers the constructors with pkg/metrics; collectors are
// then created lazily through metrics.NewChatMetrics and friends once the
// registry exists.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/parrotchat/parrot/pkg/metrics"
)

func init() {
	metrics.RegisterChatMetricsConstructor(NewChatMetrics)
	metrics.RegisterReplicationMetricsConstructor(NewReplicationMetrics)
}

// chatMetrics is the Prometheus implementation of metrics.ChatMetrics.
type chatMetrics struct {
	requests          *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	requestsInFlight  *prometheus.GaugeVec
	activeConnections prometheus.Gauge
	connsAccepted     prometheus.Counter
	connsClosed       prometheus.Counter
	connsForceClosed  prometheus.Counter
	accounts          prometheus.Gauge
	loggedIn          prometheus.Gauge
	delivered         prometheus.Counter
	queuedRecipients  prometheus.Gauge
	queuedMessages    prometheus.Gauge
}

// NewChatMetrics creates a new Prometheus-backed ChatMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewChatMetrics() metrics.ChatMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &chatMetrics{
		requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "parrot_requests_total",
				Help: "Total number of client requests by operation and response status",
			},
			[]string{"op", "status"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "parrot_request_duration_milliseconds",
				Help: "Duration of client request processing in milliseconds",
				Buckets: []float64{
					0.05, // in-memory fast path
					0.1,
					0.5,
					1,    // one store append
					5,    // replication round trip
					10,
					50,
					100,
					500, // slow or contended round
				},
			},
			[]string{"op"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "parrot_requests_in_flight",
				Help: "Number of client requests currently being processed",
			},
			[]string{"op"},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_connections_active",
				Help: "Current number of open TCP connections (clients and peers)",
			},
		),
		connsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_connections_accepted_total",
				Help: "Total number of accepted TCP connections",
			},
		),
		connsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_connections_closed_total",
				Help: "Total number of closed TCP connections",
			},
		),
		connsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_connections_force_closed_total",
				Help: "Total number of connections force-closed after shutdown timeout",
			},
		),
		accounts: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_accounts",
				Help: "Number of registered accounts",
			},
		),
		loggedIn: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_logins_active",
				Help: "Number of accounts currently logged in",
			},
		),
		delivered: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "parrot_messages_delivered_total",
				Help: "Total number of queued messages pushed to recipients",
			},
		),
		queuedRecipients: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_queued_recipients",
				Help: "Number of recipients with undelivered messages",
			},
		),
		queuedMessages: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "parrot_queued_messages",
				Help: "Total number of undelivered messages across all recipients",
			},
		),
	}
}

func (m *chatMetrics) RecordRequest(op string, status string, duration time.Duration) {
	m.requests.WithLabelValues(op, status).Inc()
	m.requestDuration.WithLabelValues(op).Observe(float64(duration.Microseconds()) / 1000.0)
}

func (m *chatMetrics) RecordRequestStart(op string) {
	m.requestsInFlight.WithLabelValues(op).Inc()
}

func (m *chatMetrics) RecordRequestEnd(op string) {
	m.requestsInFlight.WithLabelValues(op).Dec()
}

func (m *chatMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *chatMetrics) RecordConnectionAccepted() {
	m.connsAccepted.Inc()
}

func (m *chatMetrics) RecordConnectionClosed() {
	m.connsClosed.Inc()
}

func (m *chatMetrics) RecordConnectionForceClosed() {
	m.connsForceClosed.Inc()
}

func (m *chatMetrics) SetAccounts(count int) {
	m.accounts.Set(float64(count))
}

func (m *chatMetrics) SetLoggedIn(count int) {
	m.loggedIn.Set(float64(count))
}

func (m *chatMetrics) RecordDelivered(count int) {
	m.delivered.Add(float64(count))
}

func (m *chatMetrics) SetQueueDepth(recipients, messages int) {
	m.queuedRecipients.Set(float64(recipients))
	m.queuedMessages.Set(float64(messages))
}
