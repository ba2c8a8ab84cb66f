package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all service metrics
const namespace = "batch_ingestion"

// Registry is the Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// JobsAdmitted counts batches accepted by the submit endpoint
var JobsAdmitted = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_admitted_total",
		Help:      "Total number of batches admitted for processing",
	},
)

// JobsRejected counts batches rejected at admission, by error tag
var JobsRejected = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_rejected_total",
		Help:      "Total number of batches rejected at admission",
	},
	[]string{"reason"},
)

// JobsFinalized counts jobs by how their processing ended ("completed", "unfinalized" or "skipped")
var JobsFinalized = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_finalized_total",
		Help:      "Total number of jobs whose background processing ended",
	},
	[]string{"result"},
)

// RecordOutcomes counts processed records by outcome bucket
var RecordOutcomes = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_outcomes_total",
		Help:      "Total number of processed records by outcome",
	},
	[]string{"outcome"},
)

// InsertRetries counts storage insert attempts that were retried
var InsertRetries = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "insert_retries_total",
		Help:      "Total number of retried record inserts",
	},
)

// JobDuration records the wall-clock time of background processing
var JobDuration = promauto.With(Registry).NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "Background processing duration in seconds",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300, 900},
	},
)

// JobsInFlight tracks detached jobs currently running in this process
var JobsInFlight = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs_in_flight",
		Help:      "Number of detached jobs running in this process",
	},
)
