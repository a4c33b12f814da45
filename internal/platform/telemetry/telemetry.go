// Package telemetry exposes the service's Prometheus metrics: HTTP traffic by
// route, partition provisioning outcomes, the size of the partition handle
// cache and login outcomes. Metrics live on a private registry so tests can
// build as many instances as they like.
package telemetry

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "phc"

// Metrics implements db.Observer and middleware.RequestObserver.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	provisions      *prometheus.HistogramVec
	handles         prometheus.Gauge
	constructions   prometheus.Counter
	logins          *prometheus.CounterVec
	events          *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route template and status.",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route template.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		provisions: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "partition_provision_duration_seconds",
			Help:      "Time spent creating a tenant partition, by outcome.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		handles: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "partition_handles",
			Help:      "Partition connection pools currently cached.",
		}),
		constructions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partition_handle_constructions_total",
			Help:      "Partition connection pools built since start.",
		}),
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "logins_total",
			Help:      "Login attempts by path (platform, tenant) and outcome.",
		}, []string{"path", "outcome"}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Lifecycle events by subject and outcome.",
		}, []string{"subject", "outcome"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) ObserveProvision(outcome string, d time.Duration) {
	m.provisions.WithLabelValues(outcome).Observe(d.Seconds())
}

// HandleConstructed counts pool constructions. The partition is not a label;
// tenant count is unbounded.
func (m *Metrics) HandleConstructed(string) {
	m.constructions.Inc()
}

func (m *Metrics) SetHandles(n int) {
	m.handles.Set(float64(n))
}

func (m *Metrics) ObserveLogin(path, outcome string) {
	m.logins.WithLabelValues(path, outcome).Inc()
}

func (m *Metrics) ObservePublish(subject string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.events.WithLabelValues(subject, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
