// Package metrics exposes adapter, loader and registry metrics in the
// Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/medxwalk/internal/domain/codesystem"
)

const namespace = "medxwalk"

// Sizer reports entity counts per code system.
type Sizer interface {
	Counts() map[codesystem.System]int
}

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	reg *prometheus.Registry

	adapterCalls   *prometheus.CounterVec
	adapterLatency *prometheus.HistogramVec
	loaderRows     *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "calls_total",
			Help:      "Adapter calls by code system, provider, operation and result.",
		}, []string{"system", "provider", "op", "result"}),
		adapterLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "adapter",
			Name:      "call_duration_seconds",
			Help:      "Adapter call latency including throttling waits.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"system", "provider", "op"}),
		loaderRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "rows_total",
			Help:      "Bulk loader rows by outcome.",
		}, []string{"outcome"}),
	}
	m.reg.MustRegister(
		m.adapterCalls,
		m.adapterLatency,
		m.loaderRows,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// ObserveCall implements adapter.Recorder.
func (m *Metrics) ObserveCall(system, provider, op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.adapterCalls.WithLabelValues(system, provider, op, result).Inc()
	m.adapterLatency.WithLabelValues(system, provider, op).Observe(elapsed.Seconds())
}

// ObserveRow implements loader.Observer.
func (m *Metrics) ObserveRow(outcome string) {
	m.loaderRows.WithLabelValues(outcome).Inc()
}

// WatchRegistry exports the entity count of every code system known to s.
func (m *Metrics) WatchRegistry(s Sizer) error {
	return m.reg.Register(&registryCollector{sizer: s})
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// RegisterRoutes mounts GET /metrics.
func (m *Metrics) RegisterRoutes(e *echo.Echo) {
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
}

var registrySizeDesc = prometheus.NewDesc(
	prometheus.BuildFQName(namespace, "registry", "entities"),
	"Entities held in the master registry per code system.",
	[]string{"system"}, nil,
)

type registryCollector struct {
	sizer Sizer
}

func (c *registryCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- registrySizeDesc
}

func (c *registryCollector) Collect(ch chan<- prometheus.Metric) {
	for system, n := range c.sizer.Counts() {
		ch <- prometheus.MustNewConstMetric(registrySizeDesc, prometheus.GaugeValue, float64(n), string(system))
	}
}
