package monitoring

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sarchlab/clocktree/clock"
)

// Metrics is a clock.Hook that exports what a tree does as Prometheus
// metrics. It uses its own registry so that several trees can be served from
// one process.
type Metrics struct {
	registry *prometheus.Registry

	rate     *prometheus.GaugeVec
	writes   *prometheus.CounterVec
	requests *prometheus.CounterVec
	powered  *prometheus.GaugeVec
	usage    *prometheus.GaugeVec
}

// NewMetrics creates the metric families on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		rate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clocktree_clock_rate_hz",
			Help: "Last known rate of a clock",
		}, []string{"clock"}),
		writes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clocktree_hardware_writes_total",
			Help: "Hardware writes issued, by clock and operation",
		}, []string{"clock", "op"}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "clocktree_requests_total",
			Help: "Consumer requests, by output and result",
		}, []string{"output", "result"}),
		powered: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clocktree_clock_powered",
			Help: "Whether a clock is gated on",
		}, []string{"clock"}),
		usage: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "clocktree_clock_usage",
			Help: "Number of enabled outputs a clock feeds",
		}, []string{"clock"}),
	}
}

// Registry returns the registry the metrics live in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Observe seeds the gauges from a snapshot, so that clocks that never change
// are exported too.
func (m *Metrics) Observe(statuses []clock.NodeStatus) {
	for _, s := range statuses {
		if s.Error == "" {
			m.rate.WithLabelValues(s.Name).Set(float64(s.Rate))
		}

		m.usage.WithLabelValues(s.Name).Set(float64(s.Usage))
	}
}

// Func updates the metrics from a hook invocation.
func (m *Metrics) Func(ctx clock.HookCtx) {
	switch item := ctx.Item.(type) {
	case clock.RateChange:
		m.rate.WithLabelValues(item.Node).Set(float64(item.NewRate))
	case clock.HardwareWrite:
		m.writes.WithLabelValues(item.Node, item.Op).Inc()
	case clock.RequestOutcome:
		m.requests.WithLabelValues(item.Leaf, resultOf(item.Err)).Inc()
	case clock.PowerChange:
		powered := 0.0
		if item.On {
			powered = 1
		}

		m.powered.WithLabelValues(item.Node).Set(powered)
		m.usage.WithLabelValues(item.Node).Set(float64(item.Usage))
	}
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return "granted"
	case errors.Is(err, clock.ErrRequestUnsatisfiable):
		return "unsatisfiable"
	case errors.Is(err, clock.ErrInvalidArgument):
		return "invalid"
	default:
		return "failed"
	}
}
