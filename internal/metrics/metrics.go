// Package metrics holds the Prometheus collectors for package loading and
// library lookups. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

type Metrics struct {
	reg *prometheus.Registry

	packages     prometheus.Gauge
	handlers     prometheus.Gauge
	loadsTotal   *prometheus.CounterVec
	loadDuration prometheus.Histogram
	lookupsTotal *prometheus.CounterVec
}

// New returns a fresh registry with process collectors and the library
// metrics registered. Label values are bounded: result and kind only.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		reg: reg,
		packages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pkgstore_library_packages",
			Help: "Number of packages in the library",
		}),
		handlers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pkgstore_library_handlers",
			Help: "Number of targets with a registered handler",
		}),
		loadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkgstore_package_loads_total",
			Help: "Package files loaded, by result",
		}, []string{"result"}),
		loadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pkgstore_package_load_duration_seconds",
			Help:    "Time to read and parse a package file",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		lookupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pkgstore_library_lookups_total",
			Help: "Library lookups by kind and result",
		}, []string{"kind", "result"}),
	}

	reg.MustRegister(m.packages, m.handlers, m.loadsTotal, m.loadDuration, m.lookupsTotal)
	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) ObserveLoad(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.loadsTotal.WithLabelValues(result).Inc()
	m.loadDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookupsTotal.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) SetLibrarySize(packages, handlers int) {
	if m == nil {
		return
	}
	m.packages.Set(float64(packages))
	m.handlers.Set(float64(handlers))
}

// WriteTextfile writes the current values in the text exposition format,
// for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.reg)
}
