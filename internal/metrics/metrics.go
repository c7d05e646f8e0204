// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AnalysesTotal counts whole-document analysis requests by outcome.
	AnalysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rootcause",
		Name:      "analyses_total",
		Help:      "Document analyses by outcome.",
	}, []string{"outcome"})

	// SegmentsTotal counts processed segments by outcome
	// (analyzed, cached, deduplicated, failed).
	SegmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rootcause",
		Name:      "segments_total",
		Help:      "Processed log segments by outcome.",
	}, []string{"outcome"})

	// LLMCallsTotal counts model invocations by provider and result.
	LLMCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rootcause",
		Name:      "llm_calls_total",
		Help:      "Model invocations by provider and result.",
	}, []string{"provider", "result"})

	// RateLimitDenialsTotal counts limiter denials by window scope.
	RateLimitDenialsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rootcause",
		Name:      "rate_limit_denials_total",
		Help:      "Rate limiter denials by window scope.",
	}, []string{"scope"})

	// CostUSDTotal accumulates estimated model spend.
	CostUSDTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rootcause",
		Name:      "cost_usd_total",
		Help:      "Estimated cumulative model spend in USD.",
	})

	// AnalysisDuration observes end-to-end document analysis latency.
	AnalysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rootcause",
		Name:      "analysis_duration_seconds",
		Help:      "End-to-end document analysis duration.",
		Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
