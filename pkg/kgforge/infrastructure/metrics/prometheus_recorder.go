package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"
	logger "github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the
// metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Batch lifecycle metrics
	batchSubmittedCounter *prometheus.CounterVec
	batchSkippedCounter   *prometheus.CounterVec
	batchFailedCounter    *prometheus.CounterVec
	batchItemsSubmitted   *prometheus.CounterVec
	statusCheckCounter    *prometheus.CounterVec
	batchRetrievedCounter prometheus.Counter
	resultsMaterialized   prometheus.Counter

	// Resolver / loader metrics
	entityCreatedCounter  *prometheus.CounterVec
	disambiguationCounter *prometheus.CounterVec
	loadFailureCounter    prometheus.Counter

	operationDuration *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with a
// private registry carrying Go runtime and process collectors.
func NewPrometheusRecorder() metrics.MetricRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		batchSubmittedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_batch_submitted_total",
			Help: "Total number of batches submitted to the external job API.",
		}, []string{"task"}),
		batchSkippedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_batch_skipped_total",
			Help: "Total number of submissions skipped because all items were already processed.",
		}, []string{"task"}),
		batchFailedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_operation_failed_total",
			Help: "Total number of failed operations by component.",
		}, []string{"component"}),
		batchItemsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_batch_items_submitted_total",
			Help: "Total number of items submitted across batches.",
		}, []string{"task"}),
		statusCheckCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_status_check_total",
			Help: "Total number of status polls by observed status.",
		}, []string{"status"}),
		batchRetrievedCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgforge_batch_retrieved_total",
			Help: "Total number of batches whose results were materialized.",
		}),
		resultsMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgforge_results_materialized_total",
			Help: "Total number of per-item result files written.",
		}),
		entityCreatedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_entity_created_total",
			Help: "Total number of new canonical entities created, by type.",
		}, []string{"type"}),
		disambiguationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "kgforge_entity_disambiguation_total",
			Help: "Total number of mentions merged into existing entities, by type.",
		}, []string{"type"}),
		loadFailureCounter: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "kgforge_load_failure_total",
			Help: "Total number of items that failed to load into the graph.",
		}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgforge_operation_duration_seconds",
			Help:    "Duration of pipeline operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	registry.MustRegister(r.batchSubmittedCounter)
	registry.MustRegister(r.batchSkippedCounter)
	registry.MustRegister(r.batchFailedCounter)
	registry.MustRegister(r.batchItemsSubmitted)
	registry.MustRegister(r.statusCheckCounter)
	registry.MustRegister(r.batchRetrievedCounter)
	registry.MustRegister(r.resultsMaterialized)
	registry.MustRegister(r.entityCreatedCounter)
	registry.MustRegister(r.disambiguationCounter)
	registry.MustRegister(r.loadFailureCounter)
	registry.MustRegister(r.operationDuration)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordBatchSubmitted records a successful batch submission.
func (r *PrometheusRecorder) RecordBatchSubmitted(ctx context.Context, task string, nItems int) {
	r.batchSubmittedCounter.WithLabelValues(task).Inc()
	r.batchItemsSubmitted.WithLabelValues(task).Add(float64(nItems))
	logger.Debugf("Metrics: batch submitted for task '%s' (%d items).", task, nItems)
}

// RecordBatchSkipped records a fully deduplicated submission.
func (r *PrometheusRecorder) RecordBatchSkipped(ctx context.Context, task string) {
	r.batchSkippedCounter.WithLabelValues(task).Inc()
}

// RecordBatchFailed records a failed operation.
func (r *PrometheusRecorder) RecordBatchFailed(ctx context.Context, component string) {
	r.batchFailedCounter.WithLabelValues(component).Inc()
}

// RecordStatusCheck records one status poll.
func (r *PrometheusRecorder) RecordStatusCheck(ctx context.Context, status string) {
	r.statusCheckCounter.WithLabelValues(status).Inc()
}

// RecordBatchRetrieved records a materialized batch.
func (r *PrometheusRecorder) RecordBatchRetrieved(ctx context.Context, nResults int) {
	r.batchRetrievedCounter.Inc()
	r.resultsMaterialized.Add(float64(nResults))
}

// RecordEntityCreated records creation of a new canonical entity.
func (r *PrometheusRecorder) RecordEntityCreated(ctx context.Context, entityType string) {
	r.entityCreatedCounter.WithLabelValues(entityType).Inc()
}

// RecordDisambiguation records a fuzzy merge into an existing entity.
func (r *PrometheusRecorder) RecordDisambiguation(ctx context.Context, entityType string) {
	r.disambiguationCounter.WithLabelValues(entityType).Inc()
}

// RecordLoadFailure records an item that failed to load into the graph.
func (r *PrometheusRecorder) RecordLoadFailure(ctx context.Context) {
	r.loadFailureCounter.Inc()
}

// RecordDuration records the execution time of a named operation.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration) {
	r.operationDuration.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
