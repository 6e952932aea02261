// Package metrics exposes Prometheus collectors for HTTP traffic and the
// session and sale lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"automatpos/backend/internal/events"
)

const namespace = "automatpos"

type Collectors struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	inFlight        prometheus.Gauge

	sessionEvents *prometheus.CounterVec
	salesTotal    *prometheus.CounterVec
	salesGross    prometheus.Counter
	receiptMails  *prometheus.CounterVec
	lowStock      prometheus.Counter
}

// New builds a private registry so tests can create as many instances as they need.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served.",
		}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "transitions_total",
			Help:      "Session lifecycle transitions by event.",
		}, []string{"event"}),
		salesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "finalized_total",
			Help:      "Finalize attempts by outcome.",
		}, []string{"outcome"}),
		salesGross: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sales",
			Name:      "gross_cents_total",
			Help:      "Gross revenue of completed sales in cents.",
		}),
		receiptMails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "receipt_emails_total",
			Help:      "Receipt emails by delivery status.",
		}, []string{"status"}),
		lowStock: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inventory",
			Name:      "low_stock_alerts_total",
			Help:      "Products that dropped to or below their minimum stock.",
		}),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.requestDuration,
		c.requestTotal,
		c.inFlight,
		c.sessionEvents,
		c.salesTotal,
		c.salesGross,
		c.receiptMails,
		c.lowStock,
	)
	return c
}

func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Subscribe counts lifecycle events published on the bus.
func (c *Collectors) Subscribe(bus *events.Bus) {
	bus.Listen("*", c.observe)
}

func (c *Collectors) observe(evt events.Event) {
	switch evt.Name {
	case events.SaleCompleted:
		c.salesTotal.WithLabelValues("completed").Inc()
		c.salesGross.Add(float64(evt.Amount))
	case events.SaleFailed:
		c.salesTotal.WithLabelValues("failed").Inc()
	case events.ReceiptEmailed:
		c.receiptMails.WithLabelValues(evt.Attrs["status"]).Inc()
	case events.StockLow:
		c.lowStock.Inc()
	case events.SessionsExpired, events.SessionsArchived:
		c.sessionEvents.WithLabelValues(evt.Name).Add(float64(evt.Count))
	default:
		c.sessionEvents.WithLabelValues(evt.Name).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request duration and count labelled by the matched chi
// route pattern, keeping label cardinality bounded.
func (c *Collectors) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		c.inFlight.Inc()
		defer c.inFlight.Dec()

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := strconv.Itoa(rec.status)
		c.requestDuration.WithLabelValues(r.Method, route, status).Observe(time.Since(start).Seconds())
		c.requestTotal.WithLabelValues(r.Method, route, status).Inc()
	})
}
