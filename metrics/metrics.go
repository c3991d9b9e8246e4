// Package metrics holds the Prometheus collectors shared by every node. Each process creates one
// Metrics and serves it on /metrics
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sortcell"

type Metrics struct {
	registry *prometheus.Registry

	// node command surface
	Commands      *prometheus.CounterVec
	DeviceRunning *prometheus.GaugeVec

	// coordinator
	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	RemoteCalls   *prometheus.CounterVec
	Stopped       prometheus.Gauge

	// emergency stop monitor
	EstopEdges *prometheus.CounterVec

	DNSQueries *prometheus.CounterVec
}

// New registers every collector on a fresh registry along with Go runtime metrics
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "commands_total",
			Help:      "Commands handled by a node, by command and result",
		}, []string{"command", "result"}),
		DeviceRunning: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "node",
			Name:      "device_running",
			Help:      "1 while a device operation is in flight",
		}, []string{"device"}),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "cycles_total",
			Help:      "Completed sort cycles, by material and result",
		}, []string{"material", "result"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of a sort cycle",
			Buckets:   []float64{1, 5, 15, 30, 45, 60, 90, 120, 180},
		}),
		RemoteCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orchestrator",
			Name:      "remote_calls_total",
			Help:      "Calls from the coordinator to other nodes, by node and outcome",
		}, []string{"node", "outcome"}),
		Stopped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stopped",
			Help:      "1 while the stop flag is set",
		}),
		EstopEdges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "estop",
			Name:      "edges_total",
			Help:      "Emergency stop button edges, by resulting state",
		}, []string{"state"}),
		DNSQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dns",
			Name:      "queries_total",
			Help:      "DNS questions answered, by rcode",
		}, []string{"rcode"}),
	}

	m.registry.MustRegister(
		m.Commands,
		m.DeviceRunning,
		m.Cycles,
		m.CycleDuration,
		m.RemoteCalls,
		m.Stopped,
		m.EstopEdges,
		m.DNSQueries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetStopped mirrors the stop flag level
func (m *Metrics) SetStopped(stopped bool) {
	if stopped {
		m.Stopped.Set(1)
		return
	}
	m.Stopped.Set(0)
}
