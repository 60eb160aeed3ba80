package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/wodrt/internal/engine"
	"github.com/roach88/wodrt/internal/events"
	"github.com/roach88/wodrt/internal/ir"
)

const namespace = "wodrt"

// Metrics counts engine activity on its own registry, so several sessions
// in one process (tests, the harness) never collide on the global one.
//
// Metrics implements engine.Observer.
type Metrics struct {
	registry *prometheus.Registry

	eventsHandled    *prometheus.CounterVec
	blocksPushed     *prometheus.CounterVec
	blocksPopped     *prometheus.CounterVec
	compileFailures  prometheus.Counter
	metricsCollected *prometheus.CounterVec
	sessionsEnded    prometheus.Counter
	stackDepth       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them on a new registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		eventsHandled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "events_total",
			Help:      "Input events handled, by event name.",
		}, []string{"event"}),
		blocksPushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "blocks_pushed_total",
			Help:      "Blocks pushed onto the execution stack, by block type.",
		}, []string{"type"}),
		blocksPopped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "blocks_popped_total",
			Help:      "Blocks popped from the execution stack, by block type and span status.",
		}, []string{"type", "status"}),
		compileFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "compiler",
			Name:      "failures_total",
			Help:      "Statement groups that failed to compile.",
		}),
		metricsCollected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "metrics",
			Name:      "collected_total",
			Help:      "Metric values collected, by metric type.",
		}, []string{"metric"}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "sessions_ended_total",
			Help:      "Sessions that ran to completion or were stopped.",
		}),
		stackDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "stack_depth",
			Help:      "Current execution stack depth.",
		}),
	}
	m.registry.MustRegister(
		m.eventsHandled,
		m.blocksPushed,
		m.blocksPopped,
		m.compileFailures,
		m.metricsCollected,
		m.sessionsEnded,
		m.stackDepth,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventHandled(ev events.Event) {
	m.eventsHandled.WithLabelValues(ev.Name).Inc()
}

func (m *Metrics) BlockPushed(b *engine.Block) {
	m.blocksPushed.WithLabelValues(b.Type).Inc()
	m.stackDepth.Inc()
}

func (m *Metrics) BlockPopped(b *engine.Block, rec ir.ExecutionRecord) {
	m.blocksPopped.WithLabelValues(b.Type, string(rec.Status)).Inc()
	m.stackDepth.Dec()
}

func (m *Metrics) MetricEmitted(_ *engine.Block, _ int, rm ir.RuntimeMetric) {
	for _, v := range rm.Values {
		m.metricsCollected.WithLabelValues(string(v.Type)).Inc()
	}
}

func (m *Metrics) CompileFailed(error) {
	m.compileFailures.Inc()
}

func (m *Metrics) SessionEnded(time.Time) {
	m.sessionsEnded.Inc()
}
