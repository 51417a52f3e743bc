package track_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/track"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	manifestmem "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/manifest/inmemory"
)

// scriptedJobClient returns a fixed sequence of job statuses.
type scriptedJobClient struct {
	statuses []string
	calls    int
}

func (c *scriptedJobClient) UploadFile(ctx context.Context, filename string, data []byte) (string, error) {
	return "", fmt.Errorf("not supported")
}

func (c *scriptedJobClient) CreateJob(ctx context.Context, inputFileID, endpoint, completionWindow string) (*jobapi.Job, error) {
	return nil, fmt.Errorf("not supported")
}

func (c *scriptedJobClient) GetJob(ctx context.Context, jobID string) (*jobapi.Job, error) {
	status := c.statuses[len(c.statuses)-1]
	if c.calls < len(c.statuses) {
		status = c.statuses[c.calls]
	}
	c.calls++
	job := &jobapi.Job{ID: jobID, Status: status}
	if status == jobapi.JobStatusCompleted {
		job.OutputFileID = "file_out"
	}
	return job, nil
}

func (c *scriptedJobClient) DownloadFile(ctx context.Context, fileID string) ([]byte, error) {
	return nil, fmt.Errorf("not supported")
}

func seedBatch(t *testing.T, manifests *manifestmem.ManifestStore) string {
	t.Helper()
	ctx := context.Background()

	execution, err := manifests.ResolveExecution(ctx, "")
	require.NoError(t, err)
	batch := &model.Batch{
		BatchID:       "job_1",
		LocalID:       "batch_1",
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		NItems:        1,
		OriginalTexts: map[string]string{"doc-1": "text"},
		Task:          "entity_extraction",
	}
	require.NoError(t, manifests.SaveBatch(ctx, execution.ExecutionID, batch))
	return execution.ExecutionID
}

func TestCheckStatusKeepsPendingBatchesSubmitted(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{"in_progress"}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())

	result := tracker.CheckStatus(context.Background(), executionID, "batch_1")

	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, "in_progress", result.ExternalStatus)
	assert.False(t, result.LastChecked.IsZero())

	batch, err := manifests.FindBatch(context.Background(), executionID, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, batch.Status, "pending jobs stay recorded as submitted")
	require.NotNil(t, batch.LastChecked)
}

func TestCheckStatusPersistsTerminalState(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{jobapi.JobStatusCompleted}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())

	result := tracker.CheckStatus(context.Background(), executionID, "batch_1")

	assert.Equal(t, model.StatusCompleted, result.Status)

	batch, err := manifests.FindBatch(context.Background(), executionID, "batch_1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, batch.Status)
	assert.Equal(t, "file_out", batch.OutputFileID)
}

func TestCheckStatusResolvesByExternalID(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{jobapi.JobStatusFailed}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())

	result := tracker.CheckStatus(context.Background(), executionID, "job_1")

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.Equal(t, "batch_1", result.LocalID)
}

func TestCheckStatusUnknownBatchFails(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{"in_progress"}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())

	result := tracker.CheckStatus(context.Background(), executionID, "batch_99")

	assert.Equal(t, model.StatusFailed, result.Status)
	assert.NotEmpty(t, result.Error)
}

func pollPolicy(maxAttempts int) config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:     maxAttempts,
		InitialInterval: 1,
		MaxInterval:     5,
		Factor:          2.0,
	}
}

func TestWaitForCompletionReturnsTerminalStatus(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{"validating", "in_progress", jobapi.JobStatusCompleted}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())
	poller := track.NewPoller(tracker, pollPolicy(10))

	result, err := poller.WaitForCompletion(context.Background(), executionID, "batch_1")

	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 3, client.calls)
}

func TestWaitForCompletionStopsAtAttemptCap(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{"in_progress"}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())
	poller := track.NewPoller(tracker, pollPolicy(3))

	result, err := poller.WaitForCompletion(context.Background(), executionID, "batch_1")

	require.Error(t, err)
	assert.Equal(t, model.StatusPending, result.Status)
	assert.Equal(t, 3, client.calls)
}

func TestWaitForCompletionHonorsContextCancellation(t *testing.T) {
	manifests := manifestmem.NewManifestStore()
	executionID := seedBatch(t, manifests)
	client := &scriptedJobClient{statuses: []string{"in_progress"}}
	tracker := track.NewTracker(manifests, client, metrics.NewNoOpMetricRecorder())
	poller := track.NewPoller(tracker, config.RetryConfig{
		MaxAttempts:     10,
		InitialInterval: 60000,
		Factor:          1.0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := poller.WaitForCompletion(ctx, executionID, "batch_1")
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, client.calls)
}
