package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Service metrics exposed on /metrics.
var (
	// Pipeline metrics
	TasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deviation_pipeline_tasks_total",
			Help: "Total number of pipeline tasks by final state",
		},
		[]string{"task", "state"}, // state: completed/failed
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deviation_pipeline_task_duration_seconds",
			Help:    "Pipeline task duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1min
		},
		[]string{"task"},
	)

	WavesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deviation_pipeline_waves_total",
			Help: "Total number of executed pipeline waves",
		},
	)

	// Retrieval metrics
	IndexRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "deviation_index_records",
			Help: "Number of records held by the similarity index",
		},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deviation_index_query_duration_seconds",
			Help:    "Similarity query duration in seconds, embedding included",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		},
	)

	RetrievalMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deviation_retrieval_misses_total",
			Help: "Similar records whose content was absent from the record store",
		},
	)

	// LLM metrics
	LLMRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deviation_llm_requests_total",
			Help: "Total number of embedding and completion requests",
		},
		[]string{"provider", "op", "status"},
	)

	LLMRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deviation_llm_request_duration_seconds",
			Help:    "LLM request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider", "op"},
	)
)

// ObserveLLM records the outcome of one provider call.
func ObserveLLM(provider, op string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	LLMRequestsTotal.WithLabelValues(provider, op, status).Inc()
	LLMRequestDuration.WithLabelValues(provider, op).Observe(seconds)
}
