// Package metrics holds the Prometheus collectors for the scanner, the alert
// checks, delivery and the upstream client. A nil *Metrics is valid and
// records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "valwatch"

type Metrics struct {
	scanTicks        *prometheus.CounterVec
	checkRuns        *prometheus.CounterVec
	checkDuration    *prometheus.HistogramVec
	notices          *prometheus.CounterVec
	deliveryFailures *prometheus.CounterVec
	upstream         *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		scanTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scan_ticks_total",
			Help:      "Scanner ticks by result.",
		}, []string{"result"}),
		checkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "check_runs_total",
			Help:      "Alert check runs by kind and result.",
		}, []string{"kind", "result"}),
		checkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "check_duration_seconds",
			Help:      "Alert check run duration.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"kind"}),
		notices: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notices_total",
			Help:      "Alert notices by kind and outcome (sent, suppressed).",
		}, []string{"kind", "outcome"}),
		deliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Failed chat deliveries by reason.",
		}, []string{"reason"}),
		upstream: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Upstream API request attempts by endpoint and result.",
		}, []string{"endpoint", "result"}),
	}
	if reg != nil {
		reg.MustRegister(m.scanTicks, m.checkRuns, m.checkDuration, m.notices, m.deliveryFailures, m.upstream)
	}
	return m
}

func (m *Metrics) ScanTick(result string) {
	if m == nil {
		return
	}
	m.scanTicks.WithLabelValues(result).Inc()
}

func (m *Metrics) CheckRun(kind, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.checkRuns.WithLabelValues(kind, result).Inc()
	m.checkDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) Notice(kind, outcome string) {
	if m == nil {
		return
	}
	m.notices.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) DeliveryFailure(reason string) {
	if m == nil {
		return
	}
	m.deliveryFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) UpstreamRequest(endpoint, result string) {
	if m == nil {
		return
	}
	m.upstream.WithLabelValues(endpoint, result).Inc()
}
