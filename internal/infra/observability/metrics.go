// Package observability holds the Prometheus metrics for the back office.
// Everything registers via promauto on the default registry and is exposed
// at /metrics by the API server.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// TransactionsApplied counts applied bon transactions by kind.
var TransactionsApplied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "axstore",
	Subsystem: "bon",
	Name:      "transactions_applied_total",
	Help:      "Total ledger transactions applied, by kind (give/receive).",
}, []string{"kind"})

// ConflictRetries counts compare-and-swap conflicts that forced a re-apply.
var ConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "axstore",
	Subsystem: "bon",
	Name:      "conflict_retries_total",
	Help:      "Total optimistic-concurrency conflicts retried on ledger writes.",
})

// ─── HTTP Metrics ───────────────────────────────────────────────────────────

// RequestDuration observes handler latency by route pattern and status.
var RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "axstore",
	Subsystem: "http",
	Name:      "request_duration_seconds",
	Help:      "HTTP request latency by route and status code.",
	Buckets:   prometheus.DefBuckets,
}, []string{"route", "status"})

// ObserveRequest records one finished HTTP request.
func ObserveRequest(route string, status int, elapsed time.Duration) {
	RequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware instruments an http.Handler with RequestDuration.
// The chi route pattern keeps label cardinality bounded; requests that
// match no route fall back to a fixed label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		ObserveRequest(route, rec.status, time.Since(start))
	})
}
