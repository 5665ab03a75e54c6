package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Transfer outcome label values.
const (
	OutcomeCompleted         = "completed"
	OutcomeInvalidAmount     = "invalid_amount"
	OutcomeSelfTransfer      = "self_transfer"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeError             = "error"
)

// Metrics holds the Prometheus collectors for the bank. It is passed
// explicitly to the components that record metrics.
type Metrics struct {
	transfersTotal       *prometheus.CounterVec
	transferAmount       prometheus.Histogram
	accountsOpened       prometheus.Counter
	activeMonitors       prometheus.Gauge
	monitorEvents        prometheus.Counter
	notificationFailures *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_transfers_total",
				Help: "Total number of transfer attempts by outcome",
			},
			[]string{"outcome"},
		),
		transferAmount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bank_transfer_amount_xts",
				Help:    "Amount moved by completed transfers in XTS",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		accountsOpened: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bank_accounts_opened_total",
				Help: "Total number of accounts created by the ledger",
			},
		),
		activeMonitors: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "bank_active_monitors",
				Help: "Number of transaction monitors currently waiting on an account",
			},
		),
		monitorEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bank_monitor_events_total",
				Help: "Total number of transactions delivered to monitors",
			},
		),
		notificationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bank_notification_failures_total",
				Help: "Total number of transfer notifications that could not be delivered",
			},
			[]string{"kind"},
		),
	}
}

// RecordTransfer counts a transfer attempt. amount is observed only for
// completed transfers.
func (m *Metrics) RecordTransfer(outcome string, amount int64) {
	if m == nil {
		return
	}
	m.transfersTotal.WithLabelValues(outcome).Inc()
	if outcome == OutcomeCompleted {
		m.transferAmount.Observe(float64(amount))
	}
}

// RecordAccountOpened counts a newly created account.
func (m *Metrics) RecordAccountOpened() {
	if m == nil {
		return
	}
	m.accountsOpened.Inc()
}

// MonitorStarted marks a monitor as active.
func (m *Metrics) MonitorStarted() {
	if m == nil {
		return
	}
	m.activeMonitors.Inc()
}

// MonitorStopped marks a monitor as finished.
func (m *Metrics) MonitorStopped() {
	if m == nil {
		return
	}
	m.activeMonitors.Dec()
}

// RecordMonitorEvent counts a transaction handed to a monitor.
func (m *Metrics) RecordMonitorEvent() {
	if m == nil {
		return
	}
	m.monitorEvents.Inc()
}

// RecordNotificationFailure counts a notification that failed to send.
func (m *Metrics) RecordNotificationFailure(kind string) {
	if m == nil {
		return
	}
	m.notificationFailures.WithLabelValues(kind).Inc()
}
