package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// Wall-clock time of one full pipeline pass (poll excluded)
	PipelineProcessLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_process_latency_seconds",
		Help:    "Latency of one event pipeline pass",
		Buckets: prometheus.DefBuckets,
	})

	// Terminal outcome of each leased event
	PipelineEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_events_total",
			Help: "Count of processed events by outcome",
		},
		[]string{"outcome"},
	)

	// Version-conflict retries inside the commit path
	PipelineCommitConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_commit_conflicts_total",
		Help: "Optimistic-concurrency conflicts during commit",
	})

	ExtractionRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extraction_retries_total",
		Help: "Retries against the extraction capability",
	})
)

func Init() {
	prometheus.MustRegister(
		PipelineProcessLatency,
		PipelineEventsTotal,
		PipelineCommitConflicts,
		ExtractionRetries,
	)
}
