package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ScanTick("ok")
	m.CheckRun("FinesAlert", "ok", 20*time.Millisecond)
	m.Notice("TelemetryAlert", "sent")
	m.Notice("TelemetryAlert", "sent")
	m.Notice("TelemetryAlert", "suppressed")
	m.DeliveryFailure("unreachable")
	m.UpstreamRequest("telemetry", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.notices.WithLabelValues("TelemetryAlert", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scanTicks.WithLabelValues("ok")))

	expected := `
# HELP valwatch_delivery_failures_total Failed chat deliveries by reason.
# TYPE valwatch_delivery_failures_total counter
valwatch_delivery_failures_total{reason="unreachable"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "valwatch_delivery_failures_total"))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ScanTick("ok")
		m.CheckRun("x", "ok", time.Second)
		m.Notice("x", "sent")
		m.DeliveryFailure("x")
		m.UpstreamRequest("x", "ok")
	})
}
