package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector owns its registry so several collectors can coexist in tests.
// All recording methods are safe on a nil *Collector.
type Collector struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	InFlightGauge   prometheus.Gauge

	AvailabilityChecksTotal *prometheus.CounterVec
	AppointmentsTotal       *prometheus.CounterVec
	StatusTransitionsTotal  *prometheus.CounterVec
	SlotLockWait            prometheus.Histogram
	CacheLookupsTotal       *prometheus.CounterVec
}

func NewCollector(serviceName string) *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method, path, and status code.",
		}, []string{"method", "path", "status"}),

		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency distribution.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path", "status"}),

		InFlightGauge: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: serviceName,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),

		AvailabilityChecksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "availability_checks_total",
			Help:      "Availability decisions by result and rejection reason.",
		}, []string{"result", "reason"}),

		AppointmentsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "appointments_total",
			Help:      "Appointment write operations by operation and outcome.",
		}, []string{"operation", "outcome"}),

		StatusTransitionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "status_transitions_total",
			Help:      "Applied appointment status transitions.",
		}, []string{"from", "to"}),

		SlotLockWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: serviceName,
			Subsystem: "scheduling",
			Name:      "slot_lock_wait_seconds",
			Help:      "Time spent waiting for a doctor-day slot lock.",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 3.0},
		}),

		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: serviceName,
			Subsystem: "cache",
			Name:      "working_hours_lookups_total",
			Help:      "Working-hours cache lookups by result (hit, miss, error, open).",
		}, []string{"result"}),
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveAvailability(available bool, reason string) {
	if c == nil {
		return
	}
	result := "rejected"
	if available {
		result = "available"
	}
	c.AvailabilityChecksTotal.WithLabelValues(result, reason).Inc()
}

func (c *Collector) ObserveAppointment(operation, outcome string) {
	if c == nil {
		return
	}
	c.AppointmentsTotal.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) ObserveTransition(from, to string) {
	if c == nil {
		return
	}
	c.StatusTransitionsTotal.WithLabelValues(from, to).Inc()
}

func (c *Collector) ObserveLockWait(d time.Duration) {
	if c == nil {
		return
	}
	c.SlotLockWait.Observe(d.Seconds())
}

func (c *Collector) ObserveCacheLookup(result string) {
	if c == nil {
		return
	}
	c.CacheLookupsTotal.WithLabelValues(result).Inc()
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request count, latency and in-flight gauge. The path label is
// the matched mux route template so ids do not explode label cardinality.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.InFlightGauge.Inc()
		defer c.InFlightGauge.Dec()

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := "unmatched"
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		status := strconv.Itoa(rec.status)
		c.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		c.RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
	})
}
