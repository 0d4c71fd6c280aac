// Package metrics exposes transfer pipeline counters on a private registry.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/do"
)

type Metrics struct {
	registry *prometheus.Registry

	transfers  *prometheus.CounterVec
	duration   prometheus.Histogram
	queueWait  prometheus.Histogram
	inFlight   prometheus.Gauge
	setups     *prometheus.CounterVec
	rejections *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		transfers: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hairswap_transfers_total",
			Help: "Finished transfer requests by outcome",
		}, []string{"outcome"}),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hairswap_transfer_duration_seconds",
			Help:    "Wall-clock time of model transfer calls",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 180, 240, 300, 600},
		}),
		queueWait: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "hairswap_queue_wait_seconds",
			Help:    "Time spent waiting for a free model slot",
			Buckets: prometheus.DefBuckets,
		}),
		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "hairswap_transfers_in_flight",
			Help: "Model transfer calls currently running",
		}),
		setups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hairswap_model_setups_total",
			Help: "Model setup attempts by result",
		}, []string{"result"}),
		rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hairswap_validation_failures_total",
			Help: "Requests rejected by validation, by primary reason",
		}, []string{"reason"}),
	}
}

func NewMetrics(i *do.Injector) (*Metrics, error) {
	return New(), nil
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transfer records a finished request. outcome is "ok" or an error kind.
func (m *Metrics) Transfer(outcome string) {
	if m == nil {
		return
	}
	m.transfers.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Duration(d time.Duration) {
	if m == nil {
		return
	}
	m.duration.Observe(d.Seconds())
}

func (m *Metrics) QueueWait(d time.Duration) {
	if m == nil {
		return
	}
	m.queueWait.Observe(d.Seconds())
}

// Running tracks a model call; call the returned func when it ends.
func (m *Metrics) Running() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}

func (m *Metrics) Setup(ok bool) {
	if m == nil {
		return
	}
	m.setups.WithLabelValues(map[bool]string{true: "ok", false: "failed"}[ok]).Inc()
}

func (m *Metrics) Rejected(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}
