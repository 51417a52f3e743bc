// Package track polls external job status and keeps the manifest current.
// Checking status is side-effect-free with respect to results: it never
// downloads output.
package track

import (
	"context"
	"fmt"
	"time"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"

	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "track"

// Tracker classifies external job state and persists it per batch.
type Tracker struct {
	manifests repo.ManifestStore
	client    jobapi.Client
	recorder  metrics.MetricRecorder
}

// NewTracker creates a Tracker from its collaborators.
func NewTracker(manifests repo.ManifestStore, client jobapi.Client, recorder metrics.MetricRecorder) *Tracker {
	return &Tracker{manifests: manifests, client: client, recorder: recorder}
}

// CheckStatus queries the external job once, persists the observed status
// with a last-checked timestamp, and returns a structured status record.
// Repeated polling is cheap and idempotent.
func (t *Tracker) CheckStatus(ctx context.Context, executionID, batchRef string) *model.StatusResult {
	batch, err := t.manifests.FindBatch(ctx, executionID, batchRef)
	if err != nil {
		return t.fail(ctx, batchRef, "failed to resolve batch", err)
	}

	job, err := t.client.GetJob(ctx, batch.BatchID)
	if err != nil {
		return t.fail(ctx, batch.BatchID, "status query failed", err)
	}

	now := time.Now()
	status := jobapi.MapStatus(job.Status)

	batch.LastChecked = &now
	batch.OutputFileID = job.OutputFileID
	batch.ErrorFileID = job.ErrorFileID
	// The batch status field only carries terminal states; a pending job
	// stays recorded as submitted.
	if status != model.StatusPending {
		batch.Status = status
	}
	if err := t.manifests.UpdateBatch(ctx, executionID, batch); err != nil {
		return t.fail(ctx, batch.BatchID, "failed to persist batch status", err)
	}

	t.recorder.RecordStatusCheck(ctx, job.Status)
	logger.Debugf("Batch '%s' (%s) status: %s.", batch.LocalID, batch.BatchID, job.Status)

	return &model.StatusResult{
		Status:         status,
		ExternalStatus: job.Status,
		BatchID:        batch.BatchID,
		LocalID:        batch.LocalID,
		LastChecked:    now,
	}
}

func (t *Tracker) fail(ctx context.Context, batchRef, message string, err error) *model.StatusResult {
	logger.Errorf("%s (batch '%s'): %v", message, batchRef, err)
	t.recorder.RecordBatchFailed(ctx, moduleName)
	return &model.StatusResult{
		Status:  model.StatusFailed,
		BatchID: batchRef,
		Error:   fmt.Sprintf("%s: %s", message, exception.ExtractErrorMessage(err)),
	}
}
