// Package metrics holds the Prometheus collectors for the server.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

const namespace = "netmiko_mcp"

// Metrics holds all the Prometheus metrics for the server. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	ConnectedSessions  prometheus.Gauge
	RequestsTotal      *prometheus.CounterVec
	AuditWriteErrors   prometheus.Counter
	EventPublishErrors prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total number of device operations by operation and result kind",
		}, []string{"operation", "kind"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of device operations",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"operation"}),
		ConnectedSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_sessions",
			Help:      "Number of live device sessions",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mcp_requests_total",
			Help:      "Total number of MCP requests by method and front-end",
		}, []string{"method", "transport"}),
		AuditWriteErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_write_errors_total",
			Help:      "Total number of audit events that could not be stored",
		}),
		EventPublishErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "event_publish_errors_total",
			Help:      "Total number of device events that could not be published",
		}),
	}
}

// ObserveOperation records the outcome and duration of one operation
func (m *Metrics) ObserveOperation(operation string, kind models.FailureKind, d time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, string(kind)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// SetConnected sets the live session gauge
func (m *Metrics) SetConnected(n int) {
	if m == nil {
		return
	}
	m.ConnectedSessions.Set(float64(n))
}

// IncrementRequests counts one MCP request
func (m *Metrics) IncrementRequests(method, transport string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, transport).Inc()
}

// IncrementAuditWriteErrors counts a failed audit write
func (m *Metrics) IncrementAuditWriteErrors() {
	if m == nil {
		return
	}
	m.AuditWriteErrors.Inc()
}

// IncrementEventPublishErrors counts a failed event publish
func (m *Metrics) IncrementEventPublishErrors() {
	if m == nil {
		return
	}
	m.EventPublishErrors.Inc()
}
