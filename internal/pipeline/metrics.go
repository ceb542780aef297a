package pipeline

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics (registered once).
var (
	batchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ids_batches_total",
			Help: "Total classification requests by outcome",
		},
		[]string{"outcome"},
	)
	samplesClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ids_samples_classified_total",
			Help: "Total samples classified by predicted label",
		},
		[]string{"label"},
	)
	batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ids_batch_duration_seconds",
			Help:    "Time spent classifying one request",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
	)
	chunksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ids_classifier_chunks_total",
			Help: "Total classifier invocations",
		},
	)
	alertsGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ids_alerts_generated_total",
			Help: "Total security alerts generated",
		},
		[]string{"rule", "severity"},
	)
)

func init() {
	prometheus.MustRegister(batchesTotal)
	prometheus.MustRegister(samplesClassified)
	prometheus.MustRegister(batchDuration)
	prometheus.MustRegister(chunksTotal)
	prometheus.MustRegister(alertsGenerated)
}

const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeEmpty    = "empty"
	outcomeFailed   = "failed"
	outcomeCanceled = "canceled"
)
