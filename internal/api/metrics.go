package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/org/passvault/internal/audit"
	"github.com/org/passvault/internal/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passvault_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"method", "path", "status"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "passvault_request_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	credentialsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "passvault_credentials_total",
		Help: "Number of stored credentials.",
	})

	vaultOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "passvault_vault_operations_total",
		Help: "Vault operations by operation and outcome.",
	}, []string{"op", "result"})
)

func init() {
	prometheus.MustRegister(requestsTotal, requestDuration, credentialsTotal, vaultOpsTotal)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// metricsMiddleware records request metrics labelled by route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)

		// Unmatched paths share one label.
		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		dur := time.Since(start).Seconds()
		status := strconv.Itoa(rr.statusCode)
		requestsTotal.WithLabelValues(r.Method, path, status).Inc()
		requestDuration.WithLabelValues(r.Method, path).Observe(dur)
	})
}

type instrumentedAuditor struct {
	next vault.Auditor
}

// InstrumentAuditor counts vault operations by outcome before forwarding them to next.
func InstrumentAuditor(next vault.Auditor) vault.Auditor {
	return &instrumentedAuditor{next: next}
}

func (a *instrumentedAuditor) Record(ctx context.Context, e audit.Event) {
	vaultOpsTotal.WithLabelValues(e.Op, e.Outcome()).Inc()
	if a.next != nil {
		a.next.Record(ctx, e)
	}
}
