// Package submit converts unprocessed (item_id, text) pairs into one
// bounded-size externally submitted job. Deduplication against the manifest
// is exact-match on item id and is the system's sole dedup mechanism.
package submit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	"github.com/kgforge/kgforge/pkg/kgforge/prompt"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "submit"

// requestFileName is the durable per-batch request artifact.
const requestFileName = "requests.jsonl"

// requestLine is one record of the job submission payload.
type requestLine struct {
	CustomID string      `json:"custom_id"`
	Method   string      `json:"method"`
	URL      string      `json:"url"`
	Body     requestBody `json:"body"`
}

type requestBody struct {
	Model    string           `json:"model"`
	Messages []requestMessage `json:"messages"`
}

type requestMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Submitter groups unprocessed items into one batch, persists the request
// artifact, submits the external job, and records the batch in the manifest.
type Submitter struct {
	manifests repo.ManifestStore
	artifacts storageAdapter.Storage
	client    jobapi.Client
	prompts   *prompt.Library
	recorder  metrics.MetricRecorder

	model            string
	endpoint         string
	completionWindow string
	defaultBatchSize int
}

// NewSubmitter creates a Submitter from its collaborators and configuration.
func NewSubmitter(
	manifests repo.ManifestStore,
	artifacts storageAdapter.Storage,
	client jobapi.Client,
	prompts *prompt.Library,
	recorder metrics.MetricRecorder,
	cfg *config.Config,
) *Submitter {
	return &Submitter{
		manifests:        manifests,
		artifacts:        artifacts,
		client:           client,
		prompts:          prompts,
		recorder:         recorder,
		model:            cfg.Kgforge.JobAPI.Model,
		endpoint:         cfg.Kgforge.JobAPI.Endpoint,
		completionWindow: cfg.Kgforge.JobAPI.CompletionWindow,
		defaultBatchSize: cfg.Kgforge.Pipeline.BatchSize,
	}
}

// Submit creates at most one batch from items. Items already recorded in the
// manifest are filtered out; a fully filtered input returns skipped, an
// empty input returns failed. When the filtered list exceeds batchSize it is
// truncated, leaving the remainder for the next invocation.
func (s *Submitter) Submit(ctx context.Context, executionID, task string, items []model.Item, batchSize int) *model.SubmitResult {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = s.defaultBatchSize
	}

	if len(items) == 0 {
		s.recorder.RecordBatchFailed(ctx, moduleName)
		return &model.SubmitResult{
			Status:      model.StatusFailed,
			ExecutionID: executionID,
			Error:       "no input items provided",
		}
	}

	processed, err := s.manifests.ProcessedItemIDs(ctx, executionID)
	if err != nil {
		return s.fail(ctx, executionID, "failed to load processed item ids", err)
	}

	remaining := make([]model.Item, 0, len(items))
	for _, item := range items {
		if item.ID != "" {
			if _, done := processed[item.ID]; done {
				continue
			}
		}
		remaining = append(remaining, item)
	}
	nFiltered := len(items) - len(remaining)

	if len(remaining) == 0 {
		logger.Infof("All %d items of execution '%s' already processed; nothing to submit.", len(items), executionID)
		s.recorder.RecordBatchSkipped(ctx, task)
		return &model.SubmitResult{
			Status:      model.StatusSkipped,
			ExecutionID: executionID,
			NFiltered:   nFiltered,
		}
	}

	if len(remaining) > batchSize {
		logger.Infof("Truncating %d unprocessed items to batch size %d.", len(remaining), batchSize)
		remaining = remaining[:batchSize]
	}

	localID, err := s.manifests.NextLocalBatchID(ctx, executionID)
	if err != nil {
		return s.fail(ctx, executionID, "failed to allocate batch id", err)
	}

	payload, originalTexts, itemIDs, err := s.buildPayload(task, remaining)
	if err != nil {
		return s.fail(ctx, executionID, "failed to build request payload", err)
	}

	artifactPath := fmt.Sprintf("%s/%s/%s", executionID, localID, requestFileName)
	if err := s.artifacts.Upload(ctx, artifactPath, bytes.NewReader(payload)); err != nil {
		return s.fail(ctx, executionID, "failed to persist request artifact", err)
	}

	fileID, err := s.client.UploadFile(ctx, localID+".jsonl", payload)
	if err != nil {
		return s.fail(ctx, executionID, "failed to upload request file", err)
	}

	job, err := s.client.CreateJob(ctx, fileID, s.endpoint, s.completionWindow)
	if err != nil {
		return s.fail(ctx, executionID, "failed to create job", err)
	}

	batch := &model.Batch{
		BatchID:       job.ID,
		LocalID:       localID,
		FileID:        fileID,
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		NItems:        len(remaining),
		OriginalTexts: originalTexts,
		Retrieved:     false,
		Task:          task,
		Model:         s.model,
	}
	if err := s.manifests.SaveBatch(ctx, executionID, batch); err != nil {
		return s.fail(ctx, executionID, "failed to persist batch metadata", err)
	}
	if err := s.manifests.RegisterBatch(ctx, executionID, job.ID, len(remaining), itemIDs); err != nil {
		return s.fail(ctx, executionID, "failed to register batch in manifest", err)
	}

	s.recorder.RecordBatchSubmitted(ctx, task, len(remaining))
	s.recorder.RecordDuration(ctx, "submit", time.Since(start))
	logger.Infof("Submitted batch '%s' (%s) with %d items for execution '%s'.", localID, job.ID, len(remaining), executionID)

	return &model.SubmitResult{
		Status:      model.StatusSubmitted,
		ExecutionID: executionID,
		BatchID:     job.ID,
		LocalID:     localID,
		NItems:      len(remaining),
		NFiltered:   nFiltered,
	}
}

// buildPayload renders one request line per item. Custom ids equal the item
// id when supplied, item_<index> otherwise; the index is positional within
// the submitted slice so results can be re-associated later.
func (s *Submitter) buildPayload(task string, items []model.Item) ([]byte, map[string]string, []string, error) {
	var buf bytes.Buffer
	originalTexts := make(map[string]string, len(items))
	itemIDs := make([]string, 0, len(items))

	for i, item := range items {
		customID := item.ID
		if customID == "" {
			customID = fmt.Sprintf("item_%d", i)
		} else {
			itemIDs = append(itemIDs, item.ID)
		}
		originalTexts[customID] = item.Text

		content, err := s.prompts.Render(task, item.Text)
		if err != nil {
			return nil, nil, nil, err
		}
		line := requestLine{
			CustomID: customID,
			Method:   "POST",
			URL:      s.endpoint,
			Body: requestBody{
				Model:    s.model,
				Messages: []requestMessage{{Role: "user", Content: content}},
			},
		}
		data, err := json.Marshal(line)
		if err != nil {
			return nil, nil, nil, exception.NewBatchError(moduleName, "failed to marshal request line", err, false, false)
		}
		buf.Write(data)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), originalTexts, itemIDs, nil
}

func (s *Submitter) fail(ctx context.Context, executionID, message string, err error) *model.SubmitResult {
	logger.Errorf("%s (execution '%s'): %v", message, executionID, err)
	s.recorder.RecordBatchFailed(ctx, moduleName)
	return &model.SubmitResult{
		Status:      model.StatusFailed,
		ExecutionID: executionID,
		Error:       fmt.Sprintf("%s: %s", message, exception.ExtractErrorMessage(err)),
	}
}
