// Package metrics exports Prometheus collectors fed from bus events.
package metrics

import (
	"context"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
)

// PoolStats is the view of the worker pool the gauges sample.
type PoolStats interface {
	Running() int
	Waiting() int
}

type Metrics struct {
	reg *prometheus.Registry

	requests   *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	operations *prometheus.CounterVec
	rejections prometheus.Counter
	panics     prometheus.Counter
	queries    *prometheus.CounterVec
}

// New registers the rosterql collectors, together with the Go runtime and
// process collectors, on a fresh registry. pool may be nil.
func New(pool PoolStats) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	m := &Metrics{
		reg: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterql_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rosterql_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterql_graphql_operations_total",
			Help: "Total number of GraphQL operations by type and outcome",
		}, []string{"type", "status"}),
		rejections: f.NewCounter(prometheus.CounterOpts{
			Name: "rosterql_pool_rejections_total",
			Help: "Submissions refused because the worker pool was saturated",
		}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Name: "rosterql_pool_panics_total",
			Help: "Executions that panicked on a worker",
		}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "rosterql_store_queries_total",
			Help: "Statements issued by resolvers against the store",
		}, []string{"query", "status"}),
	}

	if pool != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rosterql_pool_running",
			Help: "Executions currently running on the worker pool",
		}, func() float64 { return float64(pool.Running()) })
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "rosterql_pool_waiting",
			Help: "Submissions waiting for a free worker",
		}, func() float64 { return float64(pool.Waiting()) })
	}
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// Subscribe attaches the collectors to the global bus.
func (m *Metrics) Subscribe() (unsubscribe func()) {
	unsubs := []func(){
		eventbus.Subscribe(func(ctx context.Context, e events.HTTPFinish) {
			path := e.Request.Pattern
			if path == "" {
				path = "unmatched"
			}
			m.requests.WithLabelValues(e.Request.Method, path, strconv.Itoa(e.Status)).Inc()
			m.duration.WithLabelValues(e.Request.Method, path).Observe(e.Duration.Seconds())
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.GraphQLFinish) {
			typ := e.OperationType
			if !e.Valid {
				typ = "invalid"
			} else if typ == "" {
				typ = "unknown"
			}
			status := "ok"
			if len(e.Errors) > 0 {
				status = "error"
			}
			m.operations.WithLabelValues(typ, status).Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolRejected) {
			m.rejections.Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.PoolPanic) {
			m.panics.Inc()
		}),
		eventbus.Subscribe(func(ctx context.Context, e events.StoreQuery) {
			status := "ok"
			if e.Err != nil {
				status = "error"
			}
			m.queries.WithLabelValues(e.Name, status).Inc()
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
