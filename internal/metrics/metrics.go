// Package metrics instruments the connection pool and query engine with
// Prometheus collectors, registered on a private registry the same way the
// teacher's metrics.Collector avoids colliding with the default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector holds the Prometheus metrics for a pgwire pool/connection.
type Collector struct {
	Registry *prometheus.Registry

	connectionsActive  prometheus.Gauge
	connectionsIdle    prometheus.Gauge
	connectionsTotal   prometheus.Gauge
	connectionsWaiting prometheus.Gauge
	poolExhausted      prometheus.Counter
	acquireDuration    prometheus.Histogram

	queryDuration *prometheus.HistogramVec
	queriesTotal  *prometheus.CounterVec
	noticesTotal  prometheus.Counter
	bytesFramed   *prometheus.CounterVec
}

// New creates and registers the pool/engine metrics on a fresh registry.
// Safe to call multiple times (e.g. in tests or on config reload) since each
// call owns an independent registry.
func New() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		Registry: reg,
		connectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_pool_connections_active",
			Help: "Number of connections currently checked out of the pool",
		}),
		connectionsIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_pool_connections_idle",
			Help: "Number of idle connections sitting in the pool",
		}),
		connectionsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_pool_connections_total",
			Help: "Total connections currently held by the pool (active + idle)",
		}),
		connectionsWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pgwire_pool_connections_waiting",
			Help: "Number of goroutines currently blocked in Acquire",
		}),
		poolExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_pool_exhausted_total",
			Help: "Number of times Acquire had to wait because the pool was at Max",
		}),
		acquireDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pgwire_pool_acquire_duration_seconds",
			Help:    "Time spent waiting inside Acquire",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgwire_query_duration_seconds",
				Help:    "Duration of a query round trip, from send to final ReadyForQuery",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 16),
			},
			[]string{"kind"}, // "simple" or "extended"
		),
		queriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_queries_total",
				Help: "Total queries executed, labeled by outcome",
			},
			[]string{"kind", "outcome"}, // outcome: "ok" or "error"
		),
		noticesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pgwire_notices_total",
			Help: "Total NoticeResponse messages received from the backend",
		}),
		bytesFramed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgwire_bytes_framed_total",
				Help: "Total bytes framed on the wire, labeled by direction",
			},
			[]string{"direction"}, // "sent" or "received"
		),
	}

	reg.MustRegister(
		c.connectionsActive,
		c.connectionsIdle,
		c.connectionsTotal,
		c.connectionsWaiting,
		c.poolExhausted,
		c.acquireDuration,
		c.queryDuration,
		c.queriesTotal,
		c.noticesTotal,
		c.bytesFramed,
	)

	return c
}

// UpdatePoolStats sets the pool gauges from a pool.Stats snapshot.
func (c *Collector) UpdatePoolStats(active, idle, total, waiting int) {
	c.connectionsActive.Set(float64(active))
	c.connectionsIdle.Set(float64(idle))
	c.connectionsTotal.Set(float64(total))
	c.connectionsWaiting.Set(float64(waiting))
}

// PoolExhausted increments the exhaustion counter; wire this as a pool's
// OnExhausted callback.
func (c *Collector) PoolExhausted() {
	c.poolExhausted.Inc()
}

// AcquireDuration observes the time spent waiting inside Acquire.
func (c *Collector) AcquireDuration(d time.Duration) {
	c.acquireDuration.Observe(d.Seconds())
}

// QueryCompleted records one query's duration and outcome.
func (c *Collector) QueryCompleted(kind string, d time.Duration, err error) {
	c.queryDuration.WithLabelValues(kind).Observe(d.Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.queriesTotal.WithLabelValues(kind, outcome).Inc()
}

// NoticeReceived increments the notice counter.
func (c *Collector) NoticeReceived() {
	c.noticesTotal.Inc()
}

// BytesFramed adds n bytes to the sent or received counter.
func (c *Collector) BytesFramed(direction string, n int) {
	c.bytesFramed.WithLabelValues(direction).Add(float64(n))
}
