package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "settlement"

var (
	// Registry holds the service's Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "route"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Settlement operations by outcome.",
		},
		[]string{"operation", "result"},
	)

	movedAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "amount_total",
			Help:      "Money moved by successful settlement operations.",
		},
		[]string{"operation"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rate_limited_total",
			Help:      "Settlement requests rejected by the rate limiter.",
		},
		[]string{"operation"},
	)

	publishFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "publish_failures_total",
			Help:      "Events that could not be published.",
		},
		[]string{"routing_key"},
	)

	auditRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Ledger audit runs by outcome.",
		},
		[]string{"success"},
	)

	ledgerGauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "ledger_value",
			Help:      "Ledger figures from the latest audit.",
		},
		[]string{"figure"},
	)

	violationGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "violations",
			Help:      "Invariant violations found by the latest audit.",
		},
		[]string{"kind"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		operations,
		movedAmount,
		rateLimited,
		publishFailures,
		auditRuns,
		ledgerGauges,
		violationGauge,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps next with HTTP metrics. Routes are labelled by their chi
// pattern so ids do not explode label cardinality.
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

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, route, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	})
}

// RecordOperation counts a pay or deposit attempt. amount is added to the moved total
// only for successes.
func RecordOperation(operation, result string, amount float64) {
	operations.WithLabelValues(operation, result).Inc()
	if result == "success" && amount > 0 {
		movedAmount.WithLabelValues(operation).Add(amount)
	}
}

// RecordRateLimited counts a request rejected by the limiter.
func RecordRateLimited(operation string) {
	rateLimited.WithLabelValues(operation).Inc()
}

// RecordPublishFailure counts an event that could not be published.
func RecordPublishFailure(routingKey string) {
	publishFailures.WithLabelValues(routingKey).Inc()
}

// RecordAudit stores the figures of a finished ledger audit. violations maps a
// violation kind to its count; kinds seen earlier but absent now are reset to zero.
func RecordAudit(success bool, totalBalance, outstanding float64, unpaid, accounts int64, violations map[string]int) {
	auditRuns.WithLabelValues(strconv.FormatBool(success)).Inc()
	if !success {
		return
	}
	ledgerGauges.WithLabelValues("total_balance").Set(totalBalance)
	ledgerGauges.WithLabelValues("outstanding_total").Set(outstanding)
	ledgerGauges.WithLabelValues("unpaid_submissions").Set(float64(unpaid))
	ledgerGauges.WithLabelValues("accounts").Set(float64(accounts))

	violationGauge.Reset()
	for kind, n := range violations {
		violationGauge.WithLabelValues(kind).Set(float64(n))
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
