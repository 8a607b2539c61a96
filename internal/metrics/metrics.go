// Package metrics provides Prometheus instrumentation for the price service.
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
	// IndexRefreshes counts bulk index refresh attempts by outcome (success, failure).
	IndexRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardbored_index_refreshes_total",
		Help: "Bulk price index refresh attempts",
	}, []string{"outcome"})

	// IndexRefreshDuration observes full refresh time.
	IndexRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cardbored_index_refresh_duration_seconds",
		Help:    "Bulk price index refresh duration in seconds",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	})

	// IndexRecords tracks the number of names in the live snapshot.
	IndexRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardbored_index_records",
		Help: "Card names in the current price snapshot",
	})

	// IndexFetchedAt is the Unix time the current snapshot was fetched.
	IndexFetchedAt = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cardbored_index_fetched_at_seconds",
		Help: "Unix time of the current price snapshot",
	})

	// CardLookups counts card resolutions by source and status.
	CardLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardbored_card_lookups_total",
		Help: "Card resolutions by source and status",
	}, []string{"source", "status"})

	// LiveCalls counts outbound per-card calls to the card database.
	LiveCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardbored_live_calls_total",
		Help: "Outbound per-card calls to the card database",
	}, []string{"kind", "result"})

	// SkippedLines counts decklist lines dropped by the parser.
	SkippedLines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cardbored_decklist_skipped_lines_total",
		Help: "Decklist lines that did not match <quantity> <name>",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cardbored_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cardbored_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "route"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request metrics labelled by chi route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		route := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
