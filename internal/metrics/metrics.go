// Package metrics exposes scheduler progress as Prometheus collectors.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vk/nodepipe/internal/node"
	"github.com/vk/nodepipe/internal/scheduler"
)

const namespace = "nodepipe"

// Collector records node transitions. It implements scheduler.Observer.
type Collector struct {
	// Transitions counts transitions by target state.
	// Labels: state (running, done, failed, skipped)
	Transitions *prometheus.CounterVec
	// Running is the number of nodes currently executing.
	Running prometheus.Gauge
	// Duration observes wall time of nodes reaching a terminal state after
	// running. Labels: state
	Duration *prometheus.HistogramVec
}

// New registers the collectors on reg. Registering twice on the same
// registerer panics, as with promauto.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_transitions_total",
			Help:      "Total node state transitions by target state",
		}, []string{"state"}),
		Running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_running",
			Help:      "Number of nodes currently running",
		}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_duration_seconds",
			Help:      "Node execution time in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"state"}),
	}
}

// NodeTransition implements scheduler.Observer.
func (c *Collector) NodeTransition(_ context.Context, ev scheduler.Event) {
	c.Transitions.WithLabelValues(ev.To.String()).Inc()
	if ev.To == node.Running {
		c.Running.Inc()
		return
	}
	if ev.From == node.Running {
		c.Running.Dec()
		c.Duration.WithLabelValues(ev.To.String()).Observe(ev.Duration.Seconds())
	}
}
