// Package metrics defines the metric recording abstraction used by the
// pipeline. A no-op recorder is provided as a fallback; the Prometheus
// implementation lives in the infrastructure layer.
package metrics

import (
	"context"
	"time"
)

// MetricRecorder records operational metrics of the pipeline. Implementations
// must be safe for concurrent use.
type MetricRecorder interface {
	// RecordBatchSubmitted records a successful batch submission with its item count.
	RecordBatchSubmitted(ctx context.Context, task string, nItems int)
	// RecordBatchSkipped records a submission that found nothing left to submit.
	RecordBatchSkipped(ctx context.Context, task string)
	// RecordBatchFailed records a failed operation by component.
	RecordBatchFailed(ctx context.Context, component string)
	// RecordStatusCheck records one status poll and the status it observed.
	RecordStatusCheck(ctx context.Context, status string)
	// RecordBatchRetrieved records a materialized batch and its result count.
	RecordBatchRetrieved(ctx context.Context, nResults int)
	// RecordEntityCreated records creation of a new canonical entity.
	RecordEntityCreated(ctx context.Context, entityType string)
	// RecordDisambiguation records a fuzzy merge of a mention into an existing entity.
	RecordDisambiguation(ctx context.Context, entityType string)
	// RecordLoadFailure records an item that failed to load into the graph.
	RecordLoadFailure(ctx context.Context)
	// RecordDuration records the execution time of a named operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration)
}
