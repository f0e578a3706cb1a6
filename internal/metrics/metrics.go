package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects cache metrics on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	syncAttempts  *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	rowsStored    prometheus.Gauge
	deliveries    *prometheus.CounterVec
	notifications prometheus.Counter
}

// New creates a Recorder with Go runtime and process collectors registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Recorder{
		registry: registry,
		syncAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_sync_attempts_total",
			Help: "Sync attempts by terminal state.",
		}, []string{"state"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "forecast_sync_duration_seconds",
			Help:    "Duration of sync attempts that ran to a terminal state.",
			Buckets: prometheus.DefBuckets,
		}),
		rowsStored: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "forecast_rows_stored",
			Help: "Rows written by the last successful sync.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "forecast_live_query_deliveries_total",
			Help: "Result sets pushed to live-query subscribers.",
		}, []string{"locator"}),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "forecast_notifications_total",
			Help: "New-weather notifications signalled.",
		}),
	}

	registry.MustRegister(r.syncAttempts, r.syncDuration, r.rowsStored, r.deliveries, r.notifications)
	return r
}

// Registry exposes the underlying registry, mostly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordSync counts an attempt that ended in state.
func (r *Recorder) RecordSync(state string, d time.Duration) {
	if r == nil {
		return
	}
	r.syncAttempts.WithLabelValues(state).Inc()
	r.syncDuration.Observe(d.Seconds())
}

// RecordRows sets the stored-rows gauge.
func (r *Recorder) RecordRows(n int) {
	if r == nil {
		return
	}
	r.rowsStored.Set(float64(n))
}

// RecordDelivery counts one live-query delivery. kind is "collection" or "item".
func (r *Recorder) RecordDelivery(kind string) {
	if r == nil {
		return
	}
	r.deliveries.WithLabelValues(kind).Inc()
}

// RecordNotification counts one new-weather signal.
func (r *Recorder) RecordNotification() {
	if r == nil {
		return
	}
	r.notifications.Inc()
}
