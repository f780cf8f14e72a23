// Package metrics holds the Prometheus instruments for database probes and
// initialization. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "gamingdb"

// Collector owns a private registry and the probe/init instruments.
type Collector struct {
	registry *prometheus.Registry

	probesTotal   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	initsTotal    *prometheus.CounterVec
}

// NewCollector registers the instruments on registry. If registry is nil a
// fresh one is created with the Go and process collectors attached.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	c := &Collector{
		registry: registry,
		probesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "requests_total",
				Help:      "Health probe requests by route and result.",
			},
			[]string{"route", "result"},
		),
		probeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "probe",
				Name:      "duration_seconds",
				Help:      "Time spent answering a health probe.",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5},
			},
			[]string{"route"},
		),
		initsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "initializer",
				Name:      "runs_total",
				Help:      "Database initializer runs by outcome (created, existing, upgraded, error).",
			},
			[]string{"outcome"},
		),
	}

	registry.MustRegister(c.probesTotal, c.probeDuration, c.initsTotal)
	return c
}

// RecordProbe counts a probe answer and its latency.
func (c *Collector) RecordProbe(route, result string, d time.Duration) {
	if c == nil {
		return
	}
	c.probesTotal.WithLabelValues(route, result).Inc()
	c.probeDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordInit counts one initializer run.
func (c *Collector) RecordInit(outcome string) {
	if c == nil {
		return
	}
	c.initsTotal.WithLabelValues(outcome).Inc()
}

// Handler exposes the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
