// Package metrics exposes Prometheus collectors for the HTTP surface and
// for simulated business activity.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/warp/harvest-engine/sim"
)

// Command outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	commandsTotal   *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	daysSimulated   *prometheus.CounterVec
	unitsSold       *prometheus.CounterVec
	stockouts       *prometheus.CounterVec
	saleFailures    prometheus.Counter
	eventsStarted   *prometheus.CounterVec
}

// New builds a registry holding every collector.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_commands_total",
			Help: "Business commands by name and outcome.",
		}, []string{"command", "outcome"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "harvest_command_duration_seconds",
			Help:    "Time to load, run and save a business command.",
			Buckets: prometheus.DefBuckets,
		}, []string{"command"}),
		daysSimulated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_days_simulated_total",
			Help: "Simulated days by business kind.",
		}, []string{"kind"}),
		unitsSold: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_units_sold_total",
			Help: "Units sold by business kind.",
		}, []string{"kind"}),
		stockouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_stockouts_total",
			Help: "Product-days where demand exceeded stock.",
		}, []string{"kind"}),
		saleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "harvest_sale_failures_total",
			Help: "Product sales that could not be booked and were skipped.",
		}),
		eventsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harvest_market_events_total",
			Help: "Market events started by business kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.commandsTotal, m.commandDuration,
		m.daysSimulated, m.unitsSold, m.stockouts, m.saleFailures, m.eventsStarted,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the registry for tests and custom collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Middleware records every HTTP request under its chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// ObserveCommand records one command and returns err untouched.
func (m *Metrics) ObserveCommand(command string, start time.Time, err error) error {
	if m == nil {
		return err
	}
	m.commandsTotal.WithLabelValues(command, Outcome(err)).Inc()
	m.commandDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
	return err
}

// ObserveDays records the activity of simulated days.
func (m *Metrics) ObserveDays(kind string, reports []sim.DayReport) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "custom"
	}
	for _, r := range reports {
		m.daysSimulated.WithLabelValues(kind).Inc()
		for _, s := range r.Sales {
			m.unitsSold.WithLabelValues(kind).Add(float64(s.Sold))
			if s.Stockout {
				m.stockouts.WithLabelValues(kind).Inc()
			}
		}
		m.saleFailures.Add(float64(len(r.Failures)))
		m.eventsStarted.WithLabelValues(kind).Add(float64(len(r.EventsStarted)))
	}
}

// Outcome classifies a command error for labelling.
func Outcome(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case sim.IsNotFound(err):
		return OutcomeNotFound
	case sim.IsDomainRejection(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
