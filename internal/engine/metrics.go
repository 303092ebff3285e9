package engine

import "github.com/prometheus/client_golang/prometheus"

const (
	MetricRowsRead           = "rows_read_total"
	MetricObjectsIngested    = "objects_ingested_total"
	MetricSinkFailures       = "sink_failures_total"
	MetricTransformFallbacks = "transform_fallbacks_total"
	MetricMessagesSkipped    = "messages_skipped_total"
	MetricBatchesDispatched  = "batches_dispatched_total"
	MetricStreamRunning      = "stream_running"
)

var CounterRowsRead = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricRowsRead,
		Help:      "Rows read from batch sources and messages parsed from streams.",
	},
	[]string{"object_type"},
)

var CounterObjectsIngested = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricObjectsIngested,
		Help:      "Objects dispatched to the sink, whatever the outcome.",
	},
	[]string{"object_type"},
)

var CounterSinkFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricSinkFailures,
		Help:      "Objects the sink failed to record.",
	},
	[]string{"object_type"},
)

var CounterTransformFallbacks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricTransformFallbacks,
		Help:      "Values kept raw because their transformation failed.",
	},
	[]string{"object_type", "transformation"},
)

var CounterMessagesSkipped = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricMessagesSkipped,
		Help:      "Stream messages skipped because their payload was not a JSON object.",
	},
	[]string{"topic"},
)

var CounterBatchesDispatched = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "phonograph",
		Name:      MetricBatchesDispatched,
		Help:      "Batches dispatched by batch runs.",
	},
	[]string{"object_type"},
)

var GaugeStreamRunning = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "phonograph",
		Name:      MetricStreamRunning,
		Help:      "Number of streaming loops currently running.",
	},
)

func init() {
	prometheus.MustRegister(CounterRowsRead)
	prometheus.MustRegister(CounterObjectsIngested)
	prometheus.MustRegister(CounterSinkFailures)
	prometheus.MustRegister(CounterTransformFallbacks)
	prometheus.MustRegister(CounterMessagesSkipped)
	prometheus.MustRegister(CounterBatchesDispatched)
	prometheus.MustRegister(GaugeStreamRunning)
}
