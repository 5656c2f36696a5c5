package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ranking pipeline metrics.
var (
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_duration_seconds",
			Help:      "Ranking pipeline duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"status"}, // "ok" / "error"
	)

	SearchCandidates = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_candidates",
			Help:      "Candidates returned by the store before re-ranking",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		},
	)

	SearchSerendipitousTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_serendipitous_results_total",
			Help:      "Returned results promoted by contextual multipliers",
		},
	)

	SearchDemoTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_demo_responses_total",
			Help:      "Searches answered with demonstration candidates",
		},
	)

	ArtifactsIndexedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifacts_indexed_total",
			Help:      "Artifacts written to the candidate store",
		},
		[]string{"status"},
	)
)

var searchMetricsRegistered bool

// RegisterSearchMetrics registers ranking pipeline metrics. Must be called once from main.
func RegisterSearchMetrics() {
	if searchMetricsRegistered {
		return
	}
	prometheus.MustRegister(SearchDuration)
	prometheus.MustRegister(SearchCandidates)
	prometheus.MustRegister(SearchSerendipitousTotal)
	prometheus.MustRegister(SearchDemoTotal)
	prometheus.MustRegister(ArtifactsIndexedTotal)
	searchMetricsRegistered = true
}
