// Package graphload merges materialized extraction results into the target
// property graph. Entities are committed before the relationships that
// reference them, per-document temp ids are remapped to canonical ids, and a
// failing document never aborts the rest of the batch.
package graphload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"
	"github.com/kgforge/kgforge/pkg/kgforge/resolve"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "graphload"

// loadedMarkerName is written into a batch's results directory after a
// successful load, making re-loads cheap no-ops.
const loadedMarkerName = ".loaded"

// Loader reads per-item result files and merges them into the graph.
type Loader struct {
	manifests repo.ManifestStore
	artifacts storageAdapter.Storage
	graph     repo.GraphStore
	resolver  *resolve.Resolver
	recorder  metrics.MetricRecorder
}

// NewLoader creates a Loader from its collaborators.
func NewLoader(
	manifests repo.ManifestStore,
	artifacts storageAdapter.Storage,
	graph repo.GraphStore,
	resolver *resolve.Resolver,
	recorder metrics.MetricRecorder,
) *Loader {
	return &Loader{manifests: manifests, artifacts: artifacts, graph: graph, resolver: resolver, recorder: recorder}
}

// LoadDocument merges one document's extraction into the graph. Every entity
// is resolved to a canonical id first; relationships whose endpoints did not
// resolve are dropped with a log line rather than failing the document.
func (l *Loader) LoadDocument(ctx context.Context, extraction *model.Extraction) (nEntities, nRelationships int, err error) {
	remap := make(map[string]string, len(extraction.Entities))
	var errs *multierror.Error

	for i := range extraction.Entities {
		entity := &extraction.Entities[i]
		if entity.Name == "" {
			logger.Debugf("Skipping extracted entity without a name (temp id '%s').", entity.TempID)
			continue
		}
		tempID := entity.TempID
		if tempID == "" {
			tempID = fmt.Sprintf("e%d", i)
		}

		canonicalID, resolveErr := l.resolver.Resolve(ctx, entity)
		if resolveErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("entity '%s': %w", entity.Name, resolveErr))
			continue
		}
		remap[tempID] = canonicalID
		nEntities++
	}

	for _, rel := range extraction.Relationships {
		sourceID, sourceOK := remap[rel.SourceID]
		targetID, targetOK := remap[rel.TargetID]
		if !sourceOK || !targetOK {
			logger.Debugf("Dropping relationship '%s' with unresolved endpoint (%s -> %s).",
				rel.Type, rel.SourceID, rel.TargetID)
			continue
		}
		edge := &model.Relationship{
			ID:         uuid.NewString(),
			SourceID:   sourceID,
			TargetID:   targetID,
			Type:       rel.Type,
			Attributes: rel.Attributes,
		}
		if upsertErr := l.graph.UpsertRelationship(ctx, edge); upsertErr != nil {
			errs = multierror.Append(errs, fmt.Errorf("relationship '%s': %w", rel.Type, upsertErr))
			continue
		}
		nRelationships++
	}

	return nEntities, nRelationships, errs.ErrorOrNil()
}

// LoadResults loads every materialized result file of a batch into the
// graph. A batch already marked loaded returns already_loaded without graph
// writes; one document failing to load is recorded and does not stop the
// rest.
func (l *Loader) LoadResults(ctx context.Context, executionID, batchRef string) *model.LoadResult {
	batch, err := l.manifests.FindBatch(ctx, executionID, batchRef)
	if err != nil {
		return l.fail(ctx, batchRef, "failed to resolve batch", err)
	}
	if !batch.Retrieved || batch.ResultsPath == "" {
		logger.Infof("Batch '%s' has no materialized results yet; nothing to load.", batch.LocalID)
		return &model.LoadResult{Status: model.StatusPending}
	}

	markerName := batch.ResultsPath + "/" + loadedMarkerName
	if marker, markerErr := l.artifacts.Download(ctx, markerName); markerErr == nil {
		marker.Close()
		logger.Infof("Batch '%s' already loaded into the graph; skipping.", batch.LocalID)
		return &model.LoadResult{Status: model.StatusAlreadyLoaded}
	}

	result := &model.LoadResult{Status: model.StatusCompleted}
	var errs *multierror.Error

	walkErr := l.artifacts.ListObjects(ctx, batch.ResultsPath, func(objectName string) error {
		base := objectName[strings.LastIndex(objectName, "/")+1:]
		if !strings.HasPrefix(base, "result_") || !strings.HasSuffix(base, ".json") {
			return nil
		}
		result.NItems++

		extraction, docErr := l.readExtraction(ctx, objectName)
		if docErr != nil {
			logger.Warnf("Skipping result file '%s': %v", objectName, docErr)
			result.NFailed++
			l.recorder.RecordLoadFailure(ctx)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", base, docErr))
			return nil
		}
		if extraction == nil {
			// Raw-output wrapper with nothing structured to load.
			return nil
		}

		nEntities, nRelationships, loadErr := l.LoadDocument(ctx, extraction)
		result.NEntities += nEntities
		result.NRelationships += nRelationships
		if loadErr != nil {
			result.NFailed++
			l.recorder.RecordLoadFailure(ctx)
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", base, loadErr))
		}
		return nil
	})
	if walkErr != nil {
		return l.fail(ctx, batch.LocalID, "failed to enumerate result files", walkErr)
	}

	if aggregated := errs.ErrorOrNil(); aggregated != nil {
		result.Error = exception.ExtractErrorMessage(aggregated)
	}
	if markErr := l.artifacts.Upload(ctx, markerName, strings.NewReader("loaded\n")); markErr != nil {
		logger.Warnf("Failed to write loaded marker for batch '%s': %v", batch.LocalID, markErr)
	}

	logger.Infof("Loaded batch '%s': %d items, %d entities, %d relationships, %d failed.",
		batch.LocalID, result.NItems, result.NEntities, result.NRelationships, result.NFailed)
	return result
}

// readExtraction parses one result file. Raw-output wrappers return
// (nil, nil): they are logged and skipped, not failed.
func (l *Loader) readExtraction(ctx context.Context, objectName string) (*model.Extraction, error) {
	reader, err := l.artifacts.Download(ctx, objectName)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("not a JSON object: %w", err)
	}
	if _, isRaw := probe["raw_output"]; isRaw {
		logger.Warnf("Result file '%s' holds unparsed model output; skipping.", objectName)
		return nil, nil
	}

	var extraction model.Extraction
	if err := json.Unmarshal(data, &extraction); err != nil {
		return nil, fmt.Errorf("malformed extraction payload: %w", err)
	}
	return &extraction, nil
}

func (l *Loader) fail(ctx context.Context, batchRef, message string, err error) *model.LoadResult {
	logger.Errorf("%s (batch '%s'): %v", message, batchRef, err)
	l.recorder.RecordBatchFailed(ctx, moduleName)
	return &model.LoadResult{
		Status: model.StatusFailed,
		Error:  fmt.Sprintf("%s: %s", message, exception.ExtractErrorMessage(err)),
	}
}
