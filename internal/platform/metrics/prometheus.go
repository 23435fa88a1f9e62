package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	stageRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_stage_total",
			Help: "Pipeline stage executions by outcome",
		},
		[]string{"stage", "outcome"},
	)

	providerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "Latency of external provider calls",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider", "status"},
	)

	triageResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "triage_classifications_total",
			Help: "Triage classifications by mode and category",
		},
		[]string{"mode", "category"},
	)

	billsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bills_created_total",
			Help: "Bills created on consultation finalize",
		},
	)

	jobsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_submitted_total",
			Help: "Pipeline jobs submitted by kind",
		},
		[]string{"kind"},
	)
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request counts and latency labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		httpRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.statusCode)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming handlers working behind the middleware.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func RecordStage(stage, outcome string) {
	stageRuns.WithLabelValues(stage, outcome).Inc()
}

func RecordProviderCall(provider string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	providerDuration.WithLabelValues(provider, status).Observe(d.Seconds())
}

func RecordTriage(mode, category string) {
	triageResults.WithLabelValues(mode, category).Inc()
}

func RecordBillCreated() {
	billsCreated.Inc()
}

func RecordJobSubmitted(kind string) {
	jobsQueued.WithLabelValues(kind).Inc()
}
