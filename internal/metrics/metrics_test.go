package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ravipendurty/netmiko-mcp-server/pkg/models"
)

func TestMetrics_ObserveOperation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ObserveOperation("connect", models.FailureNone, 20*time.Millisecond)
	m.ObserveOperation("connect", models.FailureAuthentication, time.Second)
	m.ObserveOperation("connect", models.FailureAuthentication, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("connect", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OperationsTotal.WithLabelValues("connect", "authentication")))

	count, err := testutil.GatherAndCount(reg, "netmiko_mcp_operation_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMetrics_Gauges(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.SetConnected(3)
	m.IncrementRequests("tools/call", "stdio")
	m.IncrementAuditWriteErrors()
	m.IncrementEventPublishErrors()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.ConnectedSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("tools/call", "stdio")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditWriteErrors))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventPublishErrors))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("connect", models.FailureNone, time.Second)
		m.SetConnected(1)
		m.IncrementRequests("ping", "http")
		m.IncrementAuditWriteErrors()
		m.IncrementEventPublishErrors()
	})
}
