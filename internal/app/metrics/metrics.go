package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

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

	boostAdmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "boosts",
			Name:      "admissions_total",
			Help:      "Total number of boost admission attempts by outcome.",
		},
		[]string{"outcome"},
	)

	boostTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "boosts",
			Name:      "sweep_transitions_total",
			Help:      "Total number of status transitions applied by the sweeper.",
		},
		[]string{"transition"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "marketplace",
			Subsystem: "boosts",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of sweeper passes.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
	)

	walletEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "marketplace",
			Subsystem: "wallet",
			Name:      "ledger_entries_total",
			Help:      "Total number of ledger entries appended.",
		},
		[]string{"direction"},
	)
)

// Admission outcomes.
const (
	OutcomeAdmitted          = "admitted"
	OutcomeConflict          = "conflict"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeError             = "error"
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		boostAdmissions,
		boostTransitions,
		sweepDuration,
		walletEntries,
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

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordAdmission counts one admission attempt.
func RecordAdmission(outcome string) {
	boostAdmissions.WithLabelValues(outcome).Inc()
}

// RecordSweep records one sweeper pass and its transitions.
func RecordSweep(activated, expired int, duration time.Duration) {
	if activated > 0 {
		boostTransitions.WithLabelValues("activated").Add(float64(activated))
	}
	if expired > 0 {
		boostTransitions.WithLabelValues("expired").Add(float64(expired))
	}
	sweepDuration.Observe(duration.Seconds())
}

// RecordLedgerEntry counts one ledger append.
func RecordLedgerEntry(amount int64) {
	direction := "credit"
	if amount < 0 {
		direction = "debit"
	}
	walletEntries.WithLabelValues(direction).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses id-bearing paths so the label set stays bounded.
func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "boost":
		return "/boost/:id"
	case "boosts", "admin", "wallet", "pricing", "auth", "healthz", "metrics", "add-boost", "update-status":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		return "/" + parts[0] + "/" + parts[1]
	}
	if len(parts) == 2 && parts[1] == "stop" {
		return "/:id/stop"
	}
	return "/:id"
}
