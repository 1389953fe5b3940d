package metrics

import "github.com/prometheus/client_golang/prometheus"

// Retrieval pipeline metrics.
var (
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querent",
			Name:      "search_requests_total",
			Help:      "Total number of retrieval requests by mode",
		},
		[]string{"mode", "status"}, // mode: classic, posneg, deep, deepsense, aggregate, image
	)

	LiveDataFetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querent",
			Name:      "livedata_fetch_total",
			Help:      "Live-data fetch outcomes",
		},
		[]string{"result"}, // success, fetch_error, parse_error, validation_error, validation_rejected, render_error
	)

	SummarizeRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "querent",
			Name:      "summarize_requests_total",
			Help:      "Summarizer call outcomes",
		},
		[]string{"status"},
	)

	SummarizeRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "querent",
			Name:      "summarize_request_duration_seconds",
			Help:      "Summarizer request duration in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers retrieval pipeline metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchRequestsTotal)
	prometheus.MustRegister(LiveDataFetchTotal)
	prometheus.MustRegister(SummarizeRequestsTotal)
	prometheus.MustRegister(SummarizeRequestDuration)
	pipelineMetricsRegistered = true
}
