package coordinator

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/huykn/cache-coordinator/types"
)

// Request outcomes recorded by Metrics.
const (
	outcomeMerged       = "merged"
	outcomeSuperseded   = "superseded"
	outcomeSuppressed   = "suppressed"
	outcomeInvalid      = "invalid"
	outcomeUnconfigured = "unconfigured"
	outcomeClosed       = "closed"
)

// Drain kinds.
const (
	drainKindBatch    = "batch"
	drainKindCritical = "critical"
)

// Metrics holds the Prometheus collectors for a coordinator.
// A nil *Metrics records nothing.
type Metrics struct {
	requests      *prometheus.CounterVec
	drains        *prometheus.CounterVec
	invalidations *prometheus.CounterVec
	pending       prometheus.Gauge
	drainDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the coordinator collectors.
// If reg is nil, it returns nil (no-op metrics).
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		return nil, nil
	}

	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cachecoord_requests_total",
			Help: "Update requests received, by priority and admission outcome.",
		}, []string{"priority", "outcome"}),
		drains: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cachecoord_drains_total",
			Help: "Drains executed, by kind.",
		}, []string{"kind"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cachecoord_invalidations_total",
			Help: "Keys invalidated, by priority and result.",
		}, []string{"priority", "result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cachecoord_pending_requests",
			Help: "Requests waiting for a drain.",
		}),
		drainDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cachecoord_drain_duration_seconds",
			Help:    "Wall time spent in a drain, by kind.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{m.requests, m.drains, m.invalidations, m.pending, m.drainDuration} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register coordinator metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) recordRequest(p types.Priority, outcome string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(p.String(), outcome).Inc()
}

func (m *Metrics) recordDrain(kind string, d time.Duration) {
	if m == nil {
		return
	}
	m.drains.WithLabelValues(kind).Inc()
	m.drainDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) recordInvalidations(p types.Priority, ok, failed int) {
	if m == nil {
		return
	}
	if ok > 0 {
		m.invalidations.WithLabelValues(p.String(), "ok").Add(float64(ok))
	}
	if failed > 0 {
		m.invalidations.WithLabelValues(p.String(), "error").Add(float64(failed))
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
