// Package metrics exposes the marketplace's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Lifecycle operations by entity, operation and outcome.",
		},
		[]string{"entity", "op", "outcome"},
	)

	notificationsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "notifications",
			Name:      "records_total",
			Help:      "Notification record writes by type and result.",
		},
		[]string{"type", "result"},
	)

	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "notifications",
			Name:      "deliveries_total",
			Help:      "Best-effort notification deliveries by result.",
		},
		[]string{"result"},
	)

	reconcileRepairs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "reconcile",
			Name:      "jobs_total",
			Help:      "In-progress jobs examined by the reconciler, by result.",
		},
		[]string{"result"},
	)

	releasedAmount = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "escrow",
			Name:      "released_amount_total",
			Help:      "Sum of escrow amounts released to freelancers.",
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		transitions,
		notificationsWritten,
		deliveries,
		reconcileRepairs,
		releasedAmount,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &StatusRecorder{ResponseWriter: w, Status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := CanonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)
		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.Status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

// RecordTransition counts one lifecycle operation. outcome is "applied",
// "unchanged" or an error kind.
func RecordTransition(entity, op, outcome string) {
	transitions.WithLabelValues(entity, op, outcome).Inc()
}

// RecordNotification counts a notification record write.
func RecordNotification(notificationType string, ok bool) {
	notificationsWritten.WithLabelValues(notificationType, result(ok)).Inc()
}

// RecordDelivery counts a delivery attempt.
func RecordDelivery(ok bool) {
	deliveries.WithLabelValues(result(ok)).Inc()
}

// RecordReconcile counts one reconciled job. res is "repaired", "unrepairable" or "healthy".
func RecordReconcile(res string) {
	reconcileRepairs.WithLabelValues(res).Inc()
}

// RecordRelease adds a released escrow amount.
func RecordRelease(amount float64) {
	if amount > 0 {
		releasedAmount.Add(amount)
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

// StatusRecorder captures the status code written by a handler.
type StatusRecorder struct {
	http.ResponseWriter
	Status int
}

func (r *StatusRecorder) WriteHeader(code int) {
	r.Status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *StatusRecorder) Write(b []byte) (int, error) {
	if r.Status == 0 {
		r.Status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// CanonicalPath collapses id segments so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	for i, p := range parts {
		if _, err := uuid.Parse(p); err == nil {
			parts[i] = "{id}"
		}
	}
	return "/" + strings.Join(parts, "/")
}
