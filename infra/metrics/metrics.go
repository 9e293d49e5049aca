package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Result labels for engine_orders_total and engine_cancels_total.
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
	ResultCanceled = "canceled"
	ResultNotFound = "not_found"
)

// Metrics owns its own registry so tests and multiple engines in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	Orders         *prometheus.CounterVec
	Fills          prometheus.Counter
	FilledQuantity prometheus.Counter
	Cancels        *prometheus.CounterVec
	MatchDuration  prometheus.Histogram
	Books          prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_orders_total",
			Help: "Order submissions by result.",
		}, []string{"result"}),
		Fills: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_fills_total",
			Help: "Fills produced by matching.",
		}),
		FilledQuantity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "engine_filled_quantity_total",
			Help: "Quantity traded across all symbols.",
		}),
		Cancels: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "engine_cancels_total",
			Help: "Cancel requests by result.",
		}, []string{"result"}),
		MatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "engine_match_duration_seconds",
			Help:    "Time spent holding a book lock to match and persist one order.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Books: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "engine_books",
			Help: "Symbols with a live order book.",
		}),
	}

	m.registry.MustRegister(
		m.Orders,
		m.Fills,
		m.FilledQuantity,
		m.Cancels,
		m.MatchDuration,
		m.Books,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveMatch(d time.Duration, fills int, qty int64) {
	m.MatchDuration.Observe(d.Seconds())
	m.Fills.Add(float64(fills))
	m.FilledQuantity.Add(float64(qty))
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
