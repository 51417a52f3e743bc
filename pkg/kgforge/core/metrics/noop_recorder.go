package metrics

import (
	"context"
	"time"
)

// NoOpMetricRecorder is an implementation of MetricRecorder that does nothing.
// It is used when metrics are disabled or during testing.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new instance of NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

// RecordBatchSubmitted does nothing.
func (r *NoOpMetricRecorder) RecordBatchSubmitted(ctx context.Context, task string, nItems int) {}

// RecordBatchSkipped does nothing.
func (r *NoOpMetricRecorder) RecordBatchSkipped(ctx context.Context, task string) {}

// RecordBatchFailed does nothing.
func (r *NoOpMetricRecorder) RecordBatchFailed(ctx context.Context, component string) {}

// RecordStatusCheck does nothing.
func (r *NoOpMetricRecorder) RecordStatusCheck(ctx context.Context, status string) {}

// RecordBatchRetrieved does nothing.
func (r *NoOpMetricRecorder) RecordBatchRetrieved(ctx context.Context, nResults int) {}

// RecordEntityCreated does nothing.
func (r *NoOpMetricRecorder) RecordEntityCreated(ctx context.Context, entityType string) {}

// RecordDisambiguation does nothing.
func (r *NoOpMetricRecorder) RecordDisambiguation(ctx context.Context, entityType string) {}

// RecordLoadFailure does nothing.
func (r *NoOpMetricRecorder) RecordLoadFailure(ctx context.Context) {}

// RecordDuration does nothing.
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)
