// Package metrics exposes Prometheus collectors for the structure pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scaff"

// Metrics groups the pipeline collectors. A nil *Metrics records nothing.
type Metrics struct {
	StructuresTotal  *prometheus.CounterVec
	FailuresTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	LLMCallTotal     *prometheus.CounterVec
	LLMCallDuration  prometheus.Histogram
	AttemptsPerQuery prometheus.Histogram
	CacheEntries     prometheus.Gauge
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StructuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "structures_total",
				Help:      "Structures returned, by source",
			},
			[]string{"source"},
		),
		FailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "failures_total",
				Help:      "Failed requests, by category",
			},
			[]string{"category"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "request_duration_seconds",
				Help:      "Time to answer a request",
				Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"outcome"},
		),
		LLMCallTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_total",
				Help:      "LLM calls, by result",
			},
			[]string{"status"},
		),
		LLMCallDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "llm",
				Name:      "call_duration_seconds",
				Help:      "LLM call duration in seconds",
				Buckets:   []float64{.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		AttemptsPerQuery: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "pipeline",
				Name:      "generation_attempts",
				Help:      "LLM attempts needed per generated request",
				Buckets:   []float64{1, 2, 3, 4, 5, 8},
			},
		),
		CacheEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "entries",
				Help:      "Entries currently held by the structure cache",
			},
		),
	}
}

func (m *Metrics) ObserveStructure(source string, attempts int, d time.Duration) {
	if m == nil {
		return
	}
	m.StructuresTotal.WithLabelValues(source).Inc()
	m.RequestDuration.WithLabelValues("ok").Observe(d.Seconds())
	if attempts > 0 {
		m.AttemptsPerQuery.Observe(float64(attempts))
	}
}

func (m *Metrics) ObserveFailure(category string, d time.Duration) {
	if m == nil {
		return
	}
	m.FailuresTotal.WithLabelValues(category).Inc()
	m.RequestDuration.WithLabelValues("failed").Observe(d.Seconds())
}

func (m *Metrics) ObserveLLMCall(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.LLMCallTotal.WithLabelValues(status).Inc()
	m.LLMCallDuration.Observe(d.Seconds())
}

func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}
