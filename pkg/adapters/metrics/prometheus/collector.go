package prometheus

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	gatherer prometheus.Gatherer

	partialsReceived  prometheus.Counter
	computes          *prometheus.CounterVec
	computeDuration   *prometheus.HistogramVec
	forwards          *prometheus.CounterVec
	finalsDelivered   prometheus.Counter
	degraded          prometheus.Counter
	pendingRequests   prometheus.Gauge
	rosterSize        prometheus.Gauge
	queueDepth        prometheus.Gauge
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector registered with
// reg. A nil reg uses the default registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	var (
		registerer prometheus.Registerer = prometheus.DefaultRegisterer
		gatherer   prometheus.Gatherer   = prometheus.DefaultGatherer
	)
	if reg != nil {
		registerer, gatherer = reg, reg
	}
	factory := promauto.With(registerer)

	return &Collector{
		gatherer: gatherer,
		partialsReceived: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "periphery_partials_received_total",
				Help: "Total number of partial input bundles received",
			},
		),
		computes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "periphery_computes_total",
				Help: "Total number of shard computations",
			},
			[]string{"status"},
		),
		computeDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "periphery_compute_duration_seconds",
				Help:    "Shard computation duration in seconds",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"status"},
		),
		forwards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "periphery_forwards_total",
				Help: "Total number of output bundles forwarded to peers",
			},
			[]string{"target", "status"},
		),
		finalsDelivered: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "periphery_finals_delivered_total",
				Help: "Total number of requests whose final outputs are complete",
			},
		),
		degraded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "periphery_degraded_total",
				Help: "Total number of deliveries dropped after exhausting retries",
			},
		),
		pendingRequests: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_pending_requests",
				Help: "Number of requests waiting for inputs",
			},
		),
		rosterSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_roster_size",
				Help: "Number of nodes registered with the root",
			},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_queue_depth",
				Help: "Current depth of the task queue",
			},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "periphery_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
	}
}

// Handler serves the collected metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// RecordPartialReceived counts an incoming partial bundle
func (c *Collector) RecordPartialReceived() {
	c.partialsReceived.Inc()
}

// RecordCompute records a shard computation
func (c *Collector) RecordCompute(status string, duration time.Duration) {
	c.computes.WithLabelValues(status).Inc()
	c.computeDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordForward records a delivery to a peer
func (c *Collector) RecordForward(target string, status string) {
	c.forwards.WithLabelValues(target, status).Inc()
}

// RecordFinalDelivered counts a completed final result
func (c *Collector) RecordFinalDelivered() {
	c.finalsDelivered.Inc()
}

// RecordDegraded counts a dropped delivery
func (c *Collector) RecordDegraded() {
	c.degraded.Inc()
}

// SetPendingRequests sets the number of requests waiting for inputs
func (c *Collector) SetPendingRequests(n int) {
	c.pendingRequests.Set(float64(n))
}

// SetRosterSize sets the number of registered nodes
func (c *Collector) SetRosterSize(n int) {
	c.rosterSize.Set(float64(n))
}

// SetQueueDepth sets the current depth of the task queue
func (c *Collector) SetQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}
