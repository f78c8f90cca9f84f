// Package metrics exposes the Prometheus collectors for the service layer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	ledgerSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "ledger",
			Name:      "submissions_total",
			Help:      "Total number of signed transaction submissions.",
		},
		[]string{"target", "status"},
	)

	ledgerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tunevault",
			Subsystem: "ledger",
			Name:      "call_duration_seconds",
			Help:      "Duration of ledger RPC calls.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		},
		[]string{"target"},
	)

	sagaSteps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "tokenize",
			Name:      "saga_steps_total",
			Help:      "Total number of tokenization saga step executions.",
		},
		[]string{"step", "status"},
	)

	purchases = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "purchase",
			Name:      "buys_total",
			Help:      "Total number of purchase attempts.",
		},
		[]string{"status"},
	)

	oversellRejections = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "purchase",
			Name:      "oversell_rejections_total",
			Help:      "Purchases rejected by the inventory reservation check.",
		},
	)

	quoteFallbacks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "pricing",
			Name:      "quote_fallbacks_total",
			Help:      "Price quotes served from the mirror because the live quote failed.",
		},
	)

	reconcileRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunevault",
			Subsystem: "reconcile",
			Name:      "runs_total",
			Help:      "Total number of mirror reconciliation runs.",
		},
		[]string{"status"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerSubmissions,
		ledgerDuration,
		sagaSteps,
		purchases,
		oversellRejections,
		quoteFallbacks,
		reconcileRuns,
	)
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveLedgerCall records one ledger submission outcome and duration.
func ObserveLedgerCall(target, status string, elapsed time.Duration) {
	ledgerSubmissions.WithLabelValues(target, status).Inc()
	ledgerDuration.WithLabelValues(target).Observe(elapsed.Seconds())
}

// ObserveSagaStep records one saga step outcome.
func ObserveSagaStep(step, status string) {
	sagaSteps.WithLabelValues(step, status).Inc()
}

// ObservePurchase records one purchase outcome.
func ObservePurchase(status string) {
	purchases.WithLabelValues(status).Inc()
}

// ObserveOversellRejection records a purchase stopped by the reservation check.
func ObserveOversellRejection() {
	oversellRejections.Inc()
}

// ObserveQuoteFallback records a quote served from mirrored state.
func ObserveQuoteFallback() {
	quoteFallbacks.Inc()
}

// ObserveReconcileRun records one reconciler run outcome.
func ObserveReconcileRun(status string) {
	reconcileRuns.WithLabelValues(status).Inc()
}
