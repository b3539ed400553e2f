// Package metrics exposes Prometheus counters for the screening pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "commentguard"

var (
	ProviderCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_calls_total",
		Help:      "AI provider calls by phase and outcome.",
	}, []string{"phase", "outcome"})

	RateLimitWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rate_limit_wait_seconds",
		Help:      "Time spent waiting for TPM/RPM headroom before a provider call.",
		Buckets:   []float64{0, 0.5, 1, 5, 15, 30, 60},
	}, []string{"provider"})

	ScanItemsMissing = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_items_missing_total",
		Help:      "Items a scanner left without a usable classification.",
	}, []string{"scanner"})

	ScanRefusals = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scan_refusals_total",
		Help:      "Scanner batches stopped by a safety refusal.",
	}, []string{"scanner"})

	OrchestratorRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orchestrator_retries_total",
		Help:      "Restricted re-fetches issued by the scan orchestrator.",
	})

	PostProcessFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "postprocess_fallbacks_total",
		Help:      "Post-process runs that fell back to placeholder text.",
	})

	CreditsCharged = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_charged_total",
		Help:      "Credits deducted for scan calls.",
	})

	CreditsRefunded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "credits_refunded_total",
		Help:      "Credits returned after failed scan calls.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Outcome labels a provider call result.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
