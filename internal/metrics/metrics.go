// Package metrics exposes daemon counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pass results.
const (
	ResultOK       = "ok"
	ResultPartial  = "partial"
	ResultFailed   = "failed"
	ResultNoOutput = "no_output"
)

// Metrics holds the daemon's collectors. A nil *Metrics is valid and records
// nothing, which is what a daemon with metrics disabled uses.
type Metrics struct {
	reg *prometheus.Registry

	passes           *prometheus.CounterVec
	passDuration     prometheus.Histogram
	managedLinks     prometheus.Gauge
	syncTicks        prometheus.Counter
	syncDrift        *prometheus.CounterVec
	commands         *prometheus.CounterVec
	externalFailures *prometheus.CounterVec
}

// New builds a registry with the mux collectors plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	reg.MustRegister(collectors.NewGoCollector())
	return &Metrics{
		reg: reg,

		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mux_reconcile_passes_total",
			Help: "Reconciliation passes by result",
		}, []string{"result"}),
		passDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "mux_reconcile_duration_seconds",
			Help:    "Wall time of a reconciliation pass, settle delay included",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		managedLinks: f.NewGauge(prometheus.GaugeOpts{
			Name: "mux_managed_links",
			Help: "Links created by the last reconciliation pass",
		}),
		syncTicks: f.NewCounter(prometheus.CounterOpts{
			Name: "mux_sync_ticks_total",
			Help: "State synchronizer ticks",
		}),
		syncDrift: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mux_sync_drift_total",
			Help: "Externally caused volume or mute changes picked up by the synchronizer",
		}, []string{"channel"}),
		commands: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mux_commands_total",
			Help: "Dispatcher operations by name",
		}, []string{"op"}),
		externalFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mux_external_failures_total",
			Help: "Failed audio server commands by operation",
		}, []string{"op"}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.InstrumentMetricHandler(m.reg, promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))
}

// ObservePass records one reconciliation pass.
func (m *Metrics) ObservePass(result string, took time.Duration, links int) {
	if m == nil {
		return
	}
	m.passes.WithLabelValues(result).Inc()
	m.passDuration.Observe(took.Seconds())
	m.managedLinks.Set(float64(links))
}

// SyncTick counts one synchronizer tick.
func (m *Metrics) SyncTick() {
	if m == nil {
		return
	}
	m.syncTicks.Inc()
}

// SyncDrift counts an external change on channel.
func (m *Metrics) SyncDrift(channel string) {
	if m == nil {
		return
	}
	m.syncDrift.WithLabelValues(channel).Inc()
}

// Command counts a dispatcher operation.
func (m *Metrics) Command(op string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(op).Inc()
}

// ExternalFailure counts a failed audio server command.
func (m *Metrics) ExternalFailure(op string) {
	if m == nil {
		return
	}
	m.externalFailures.WithLabelValues(op).Inc()
}
