// Package materialize turns a completed batch's raw output artifact into
// one durable result file per item. Retrieval is idempotent: a batch is
// materialized at most once, and malformed model output degrades to a
// raw-output wrapper instead of failing.
package materialize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "materialize"

// resultsDirName is the per-batch directory holding per-item result files.
const resultsDirName = "results"

// outputLine is one record of the job result payload. The response body
// nesting has varied across API versions, so both the flat and the nested
// choices shape are accepted.
type outputLine struct {
	CustomID string         `json:"custom_id"`
	Response responseEnvelope `json:"response"`
}

type responseEnvelope struct {
	Body    *choicesPayload `json:"body"`
	Choices []chatChoice    `json:"choices"`
}

type choicesPayload struct {
	Choices []chatChoice `json:"choices"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

type chatMessage struct {
	Content string `json:"content"`
}

// content returns the first choice's message content from whichever shape
// the envelope carries.
func (e *responseEnvelope) content() (string, bool) {
	if e.Body != nil && len(e.Body.Choices) > 0 {
		return e.Body.Choices[0].Message.Content, true
	}
	if len(e.Choices) > 0 {
		return e.Choices[0].Message.Content, true
	}
	return "", false
}

// Materializer downloads completed-batch output and writes per-item files.
type Materializer struct {
	manifests repo.ManifestStore
	artifacts storageAdapter.Storage
	client    jobapi.Client
	recorder  metrics.MetricRecorder
}

// NewMaterializer creates a Materializer from its collaborators.
func NewMaterializer(
	manifests repo.ManifestStore,
	artifacts storageAdapter.Storage,
	client jobapi.Client,
	recorder metrics.MetricRecorder,
) *Materializer {
	return &Materializer{manifests: manifests, artifacts: artifacts, client: client, recorder: recorder}
}

// Retrieve materializes the batch results. Already-retrieved batches return
// already_retrieved without touching result files; batches that have not
// completed yet return their current status without error.
func (m *Materializer) Retrieve(ctx context.Context, executionID, batchRef string) *model.RetrieveResult {
	batch, err := m.manifests.FindBatch(ctx, executionID, batchRef)
	if err != nil {
		return m.fail(ctx, batchRef, "failed to resolve batch", err)
	}

	if batch.Retrieved {
		logger.Infof("Batch '%s' already retrieved; skipping.", batch.LocalID)
		return &model.RetrieveResult{
			Status:      model.StatusAlreadyRetrieved,
			BatchID:     batch.BatchID,
			LocalID:     batch.LocalID,
			NResults:    batch.NResults,
			ResultsPath: batch.ResultsPath,
		}
	}

	job, err := m.client.GetJob(ctx, batch.BatchID)
	if err != nil {
		return m.fail(ctx, batch.BatchID, "status query failed", err)
	}
	if status := jobapi.MapStatus(job.Status); status != model.StatusCompleted {
		logger.Infof("Batch '%s' not ready for retrieval (status: %s).", batch.LocalID, job.Status)
		return &model.RetrieveResult{
			Status:  status,
			BatchID: batch.BatchID,
			LocalID: batch.LocalID,
		}
	}

	outputFileID := job.OutputFileID
	if outputFileID == "" {
		outputFileID = batch.OutputFileID
	}
	if outputFileID == "" {
		return m.fail(ctx, batch.BatchID, "completed batch has no output file", nil)
	}

	data, err := m.client.DownloadFile(ctx, outputFileID)
	if err != nil {
		return m.fail(ctx, batch.BatchID, "failed to download output artifact", err)
	}

	resultsPath := fmt.Sprintf("%s/%s/%s", executionID, batch.LocalID, resultsDirName)
	nResults := 0
	for _, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		var record outputLine
		if err := json.Unmarshal(line, &record); err != nil {
			logger.Warnf("Skipping malformed output line for batch '%s': %v", batch.LocalID, err)
			continue
		}
		if _, known := batch.OriginalTexts[record.CustomID]; !known {
			logger.Warnf("Skipping output for unknown custom id '%s' in batch '%s'.", record.CustomID, batch.LocalID)
			continue
		}
		content, ok := record.Response.content()
		if !ok {
			logger.Warnf("Skipping output without choices for custom id '%s'.", record.CustomID)
			continue
		}

		parsed := ParseModelOutput(content)
		payload, err := json.MarshalIndent(parsed, "", "  ")
		if err != nil {
			logger.Warnf("Failed to marshal result for custom id '%s': %v", record.CustomID, err)
			continue
		}

		fileName := fmt.Sprintf("result_%s.json", strings.TrimPrefix(record.CustomID, "item_"))
		objectName := resultsPath + "/" + fileName
		if err := m.artifacts.Upload(ctx, objectName, bytes.NewReader(payload)); err != nil {
			return m.fail(ctx, batch.BatchID, fmt.Sprintf("failed to write result file '%s'", objectName), err)
		}
		nResults++
	}

	now := time.Now()
	batch.Retrieved = true
	batch.Status = model.StatusCompleted
	batch.CompletedAt = &now
	batch.ResultsPath = resultsPath
	batch.NResults = nResults
	batch.OutputFileID = outputFileID
	batch.LastChecked = &now
	if err := m.manifests.UpdateBatch(ctx, executionID, batch); err != nil {
		return m.fail(ctx, batch.BatchID, "failed to persist retrieval state", err)
	}

	m.recorder.RecordBatchRetrieved(ctx, nResults)
	logger.Infof("Materialized %d results for batch '%s' under '%s'.", nResults, batch.LocalID, resultsPath)

	return &model.RetrieveResult{
		Status:      model.StatusCompleted,
		BatchID:     batch.BatchID,
		LocalID:     batch.LocalID,
		NResults:    nResults,
		ResultsPath: resultsPath,
	}
}

func (m *Materializer) fail(ctx context.Context, batchRef, message string, err error) *model.RetrieveResult {
	logger.Errorf("%s (batch '%s'): %v", message, batchRef, err)
	m.recorder.RecordBatchFailed(ctx, moduleName)
	return &model.RetrieveResult{
		Status:  model.StatusFailed,
		BatchID: batchRef,
		Error:   fmt.Sprintf("%s: %s", message, exception.ExtractErrorMessage(err)),
	}
}
