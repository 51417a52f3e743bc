package graphload_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	storagelocal "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage/local"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	metrics "github.com/kgforge/kgforge/pkg/kgforge/core/metrics"
	graphmem "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/graph/inmemory"
	manifestmem "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/manifest/inmemory"
	"github.com/kgforge/kgforge/pkg/kgforge/graphload"
	"github.com/kgforge/kgforge/pkg/kgforge/resolve"
)

type loadFixture struct {
	loader      *graphload.Loader
	graph       *graphmem.GraphStore
	manifests   *manifestmem.ManifestStore
	artifacts   storageAdapter.Storage
	executionID string
}

func newLoadFixture(t *testing.T) *loadFixture {
	t.Helper()

	graph := graphmem.NewGraphStore()
	manifests := manifestmem.NewManifestStore()
	artifacts, err := storagelocal.NewLocalAdapter(t.TempDir())
	require.NoError(t, err)
	recorder := metrics.NewNoOpMetricRecorder()
	resolver := resolve.NewResolver(graph, recorder)

	execution, err := manifests.ResolveExecution(context.Background(), "")
	require.NoError(t, err)

	return &loadFixture{
		loader:      graphload.NewLoader(manifests, artifacts, graph, resolver, recorder),
		graph:       graph,
		manifests:   manifests,
		artifacts:   artifacts,
		executionID: execution.ExecutionID,
	}
}

func (f *loadFixture) seedRetrievedBatch(t *testing.T, files map[string]string) {
	t.Helper()
	ctx := context.Background()

	resultsPath := f.executionID + "/batch_1/results"
	batch := &model.Batch{
		BatchID:       "job_1",
		LocalID:       "batch_1",
		CreatedAt:     time.Now(),
		Status:        model.StatusCompleted,
		NItems:        len(files),
		OriginalTexts: map[string]string{},
		Retrieved:     true,
		ResultsPath:   resultsPath,
		NResults:      len(files),
	}
	require.NoError(t, f.manifests.SaveBatch(ctx, f.executionID, batch))

	for name, content := range files {
		require.NoError(t, f.artifacts.Upload(ctx, resultsPath+"/"+name, strings.NewReader(content)))
	}
}

func TestLoadDocumentResolvesAndLinks(t *testing.T) {
	f := newLoadFixture(t)
	ctx := context.Background()

	extraction := &model.Extraction{
		Entities: []model.ExtractedEntity{
			{TempID: "e1", Name: "Acme Corp", Type: "Company"},
			{TempID: "e2", Name: "Jane Smith", Type: "Person"},
		},
		Relationships: []model.ExtractedRelationship{
			{SourceID: "e2", TargetID: "e1", Type: "WORKS_FOR"},
			{SourceID: "e2", TargetID: "e9", Type: "KNOWS"}, // unresolved target
		},
	}

	nEntities, nRelationships, err := f.loader.LoadDocument(ctx, extraction)
	require.NoError(t, err)
	assert.Equal(t, 2, nEntities)
	assert.Equal(t, 1, nRelationships, "relationships with unresolved endpoints are dropped")

	stats, err := f.graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Entities)
	assert.Equal(t, int64(1), stats.Relationships)
}

func TestLoadDocumentCollapsesSameTypeEdges(t *testing.T) {
	f := newLoadFixture(t)
	ctx := context.Background()

	extraction := &model.Extraction{
		Entities: []model.ExtractedEntity{
			{TempID: "e1", Name: "Acme Corp", Type: "Company"},
			{TempID: "e2", Name: "Globex LLC", Type: "Company"},
		},
		Relationships: []model.ExtractedRelationship{
			{SourceID: "e1", TargetID: "e2", Type: "PARTNER_OF", Attributes: map[string]string{"since": "2019"}},
			{SourceID: "e1", TargetID: "e2", Type: "PARTNER_OF", Attributes: map[string]string{"since": "2021"}},
		},
	}

	_, nRelationships, err := f.loader.LoadDocument(ctx, extraction)
	require.NoError(t, err)
	assert.Equal(t, 2, nRelationships)

	rels := f.graph.Relationships()
	require.Len(t, rels, 1)
	assert.Equal(t, "2021", rels[0].Attributes["since"], "last write wins")
}

func TestLoadDocumentMergesRepeatedMentions(t *testing.T) {
	f := newLoadFixture(t)
	ctx := context.Background()

	first := &model.Extraction{
		Entities: []model.ExtractedEntity{{TempID: "e1", Name: "Acme Corp", Type: "Company"}},
	}
	second := &model.Extraction{
		Entities: []model.ExtractedEntity{{TempID: "e1", Name: "Acme Corp", Type: "Company"}},
	}

	_, _, err := f.loader.LoadDocument(ctx, first)
	require.NoError(t, err)
	_, _, err = f.loader.LoadDocument(ctx, second)
	require.NoError(t, err)

	stats, err := f.graph.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Entities, "same mention across documents resolves to one entity")
}

func TestLoadResultsReadsMaterializedFiles(t *testing.T) {
	f := newLoadFixture(t)
	f.seedRetrievedBatch(t, map[string]string{
		"result_1.json": `{
			"entities": [
				{"id": "e1", "name": "Acme Corp", "type": "Company"},
				{"id": "e2", "name": "Jane Smith", "type": "Person"}
			],
			"relationships": [
				{"source_id": "e2", "target_id": "e1", "type": "WORKS_FOR"}
			]
		}`,
		"result_2.json": `{"raw_output": "the model produced no JSON"}`,
	})

	result := f.loader.LoadResults(context.Background(), f.executionID, "batch_1")

	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 2, result.NItems)
	assert.Equal(t, 2, result.NEntities)
	assert.Equal(t, 1, result.NRelationships)
	assert.Equal(t, 0, result.NFailed, "raw output wrappers are skipped, not failed")
}

func TestLoadResultsIsIdempotent(t *testing.T) {
	f := newLoadFixture(t)
	f.seedRetrievedBatch(t, map[string]string{
		"result_1.json": `{"entities": [{"id": "e1", "name": "Acme Corp", "type": "Company"}], "relationships": []}`,
	})

	first := f.loader.LoadResults(context.Background(), f.executionID, "batch_1")
	require.Equal(t, model.StatusCompleted, first.Status)

	second := f.loader.LoadResults(context.Background(), f.executionID, "batch_1")
	assert.Equal(t, model.StatusAlreadyLoaded, second.Status)
}

func TestLoadResultsBeforeRetrievalIsPending(t *testing.T) {
	f := newLoadFixture(t)
	batch := &model.Batch{
		BatchID:       "job_1",
		LocalID:       "batch_1",
		CreatedAt:     time.Now(),
		Status:        model.StatusSubmitted,
		OriginalTexts: map[string]string{},
	}
	require.NoError(t, f.manifests.SaveBatch(context.Background(), f.executionID, batch))

	result := f.loader.LoadResults(context.Background(), f.executionID, "batch_1")
	assert.Equal(t, model.StatusPending, result.Status)
}

func TestLoadResultsCountsMalformedFiles(t *testing.T) {
	f := newLoadFixture(t)
	f.seedRetrievedBatch(t, map[string]string{
		"result_1.json": `{"entities": [{"id": "e1", "name": "Acme Corp", "type": "Company"}], "relationships": []}`,
		"result_2.json": `[1, 2, 3]`,
	})

	result := f.loader.LoadResults(context.Background(), f.executionID, "batch_1")

	assert.Equal(t, model.StatusCompleted, result.Status)
	assert.Equal(t, 1, result.NFailed)
	assert.NotEmpty(t, result.Error)
	assert.Equal(t, 1, result.NEntities)
}
