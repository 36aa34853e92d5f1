// Package observability exposes the console's Prometheus metrics.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odyssey-erp/odyssey-console/internal/listsync"
)

// Metrics collects Prometheus metrics for the console.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	fetchTotal      *prometheus.CounterVec
	fetchDuration   *prometheus.HistogramVec
	fetchInFlight   *prometheus.GaugeVec
	loadingActive   prometheus.Gauge
}

// NewMetrics initialises the registry and the base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_console_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_console_http_request_duration_seconds",
		Help:    "HTTP request latency per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	fetches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "odyssey_console_list_fetch_total",
		Help: "Settled list fetches by resource and outcome.",
	}, []string{"resource", "outcome"})
	fetchDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "odyssey_console_list_fetch_duration_seconds",
		Help:    "Time from issuing a list fetch until it settled.",
		Buckets: prometheus.DefBuckets,
	}, []string{"resource"})
	inFlight := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "odyssey_console_list_fetch_in_flight",
		Help: "List fetches issued but not yet settled.",
	}, []string{"resource"})
	loading := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "odyssey_console_loading_active",
		Help: "Outstanding loading indicator requests.",
	})
	registry.MustRegister(requests, duration, fetches, fetchDuration, inFlight, loading)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		fetchTotal:      fetches,
		fetchDuration:   fetchDuration,
		fetchInFlight:   inFlight,
		loadingActive:   loading,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
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

// FetchIssued implements listsync.Observer.
func (m *Metrics) FetchIssued(resource string) {
	if m == nil {
		return
	}
	m.fetchInFlight.WithLabelValues(resource).Inc()
}

// FetchSettled implements listsync.Observer.
func (m *Metrics) FetchSettled(resource string, outcome listsync.Outcome, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetchInFlight.WithLabelValues(resource).Dec()
	m.fetchTotal.WithLabelValues(resource, string(outcome)).Inc()
	m.fetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
}

// LoadingGauge is fed by the loading indicator.
func (m *Metrics) LoadingGauge() prometheus.Gauge {
	if m == nil {
		return nil
	}
	return m.loadingActive
}

// Registerer exposes the registry for custom metrics.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
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
