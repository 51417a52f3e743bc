// Package app assembles the extraction pipeline with uber-fx and drives one
// end-to-end run: submit batches until the input is drained, wait for each
// batch, materialize its results, and merge them into the graph.
package app

import (
	"context"

	"go.uber.org/fx"

	storagelocal "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage/local"
	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	"github.com/kgforge/kgforge/pkg/kgforge/engine"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/materialize"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/submit"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/track"
	"github.com/kgforge/kgforge/pkg/kgforge/export"
	"github.com/kgforge/kgforge/pkg/kgforge/graphload"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/graph"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/jobapi"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/manifest"
	prommetrics "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/metrics"
	"github.com/kgforge/kgforge/pkg/kgforge/itemsource"
	"github.com/kgforge/kgforge/pkg/kgforge/prompt"
	"github.com/kgforge/kgforge/pkg/kgforge/resolve"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// RunParams carries the command-line inputs of one pipeline run.
type RunParams struct {
	EnvFilePath string
	InputPath   string
	IDColumn    string
	TextColumn  string
	ExecutionID string
	Task        string
	BatchSize   int
	// Wait blocks on each submitted batch and loads its results. When false
	// the run only submits and exits; a later run resumes from the manifest.
	Wait bool
}

// RunApplication sets up and runs the pipeline application using uber-fx.
func RunApplication(appCtx context.Context, params RunParams, embeddedConfig config.EmbeddedConfig, embeddedPrompts prompt.EmbeddedPrompts) error {
	app := fx.New(
		fx.Supply(
			embeddedConfig,
			embeddedPrompts,
			params,
			fx.Annotate(params.EnvFilePath, fx.ResultTags(`name:"envFilePath"`)),
			fx.Annotate(
				appCtx,
				fx.As(new(context.Context)),
				fx.ResultTags(`name:"appCtx"`),
			),
		),

		config.Module,
		prommetrics.Module,
		storagelocal.Module,
		jobapi.Module,
		manifest.Module,
		graph.Module,
		engine.Module,

		fx.Provide(prompt.NewLibrary),
		fx.Provide(newItemSource),

		fx.Invoke(fx.Annotate(startPipeline, fx.ParamTags(
			"",              // lc fx.Lifecycle
			"",              // shutdowner fx.Shutdowner
			"",              // pipeline *Pipeline
			"",              // manifests repo.ManifestStore
			`name:"appCtx"`, // appCtx context.Context
		))),
		fx.Provide(NewPipeline),
	)

	app.Run()
	return app.Err()
}

// newItemSource builds the CSV item source from the run parameters.
func newItemSource(params RunParams) itemsource.Source {
	return itemsource.NewCSVSource(params.InputPath, params.IDColumn, params.TextColumn)
}

// startPipeline launches the run in a goroutine and shuts the application
// down when it finishes, mirroring a one-shot batch process.
func startPipeline(
	lc fx.Lifecycle,
	shutdowner fx.Shutdowner,
	pipeline *Pipeline,
	manifests repo.ManifestStore,
	appCtx context.Context,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Errorf("Panic recovered in pipeline execution: %v", r)
					}
					if err := shutdowner.Shutdown(); err != nil {
						logger.Errorf("Failed to shutdown application: %v", err)
					}
				}()

				if err := pipeline.Run(appCtx); err != nil {
					logger.Errorf("Pipeline run failed: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := manifests.Close(); err != nil {
				logger.Warnf("Failed to close manifest store: %v", err)
			}
			logger.Infof("Application is shutting down.")
			return nil
		},
	})
}

// Pipeline drives one run across the stages.
type Pipeline struct {
	params       RunParams
	cfg          *config.Config
	source       itemsource.Source
	manifests    repo.ManifestStore
	graph        repo.GraphStore
	submitter    *submit.Submitter
	poller       *track.Poller
	materializer *materialize.Materializer
	loader       *graphload.Loader
	resolver     *resolve.Resolver
	exporter     *export.Exporter
}

// NewPipeline creates a Pipeline from its collaborators.
func NewPipeline(
	params RunParams,
	cfg *config.Config,
	source itemsource.Source,
	manifests repo.ManifestStore,
	graphStore repo.GraphStore,
	submitter *submit.Submitter,
	poller *track.Poller,
	materializer *materialize.Materializer,
	loader *graphload.Loader,
	resolver *resolve.Resolver,
	exporter *export.Exporter,
) *Pipeline {
	return &Pipeline{
		params:       params,
		cfg:          cfg,
		source:       source,
		manifests:    manifests,
		graph:        graphStore,
		submitter:    submitter,
		poller:       poller,
		materializer: materializer,
		loader:       loader,
		resolver:     resolver,
		exporter:     exporter,
	}
}

// Run submits batches until every unprocessed item is drained. With Wait set
// each batch is polled to completion, materialized, and loaded before the
// next one is submitted. Items without ids cannot be deduplicated against
// the manifest, so an input carrying any of them is submitted as a single
// batch and the run stops there instead of resubmitting them indefinitely.
func (p *Pipeline) Run(ctx context.Context) error {
	items, err := p.source.Items(ctx)
	if err != nil {
		return err
	}
	logger.Infof("Read %d items from '%s'.", len(items), p.params.InputPath)

	anonymous := 0
	for _, item := range items {
		if item.ID == "" {
			anonymous++
		}
	}
	if anonymous > 0 {
		logger.Warnf("%d of %d items carry no id and will not be filtered on resubmission; submitting one batch only.", anonymous, len(items))
	}

	execution, err := p.manifests.ResolveExecution(ctx, p.params.ExecutionID)
	if err != nil {
		return err
	}
	logger.Infof("Using execution '%s'.", execution.ExecutionID)

	task := p.params.Task
	if task == "" {
		task = p.cfg.Kgforge.Pipeline.Task
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		result := p.submitter.Submit(ctx, execution.ExecutionID, task, items, p.params.BatchSize)
		switch result.Status {
		case model.StatusSkipped:
			logger.Infof("No unprocessed items remain for execution '%s'.", execution.ExecutionID)
			return p.finish(ctx)
		case model.StatusFailed:
			return &runError{message: result.Error}
		}

		logger.Infof("Submitted batch '%s' (%d items, %d filtered).", result.LocalID, result.NItems, result.NFiltered)
		if !p.params.Wait {
			logger.Infof("Wait disabled; rerun later to track and load batch '%s'.", result.LocalID)
			return p.finish(ctx)
		}

		if err := p.completeBatch(ctx, execution.ExecutionID, result.LocalID); err != nil {
			return err
		}
		if anonymous > 0 {
			return p.finish(ctx)
		}
	}
}

// completeBatch waits for one batch and loads its results into the graph.
// A failed or expired batch is logged and left behind; its items stay
// registered so the run can proceed with the rest of the input.
func (p *Pipeline) completeBatch(ctx context.Context, executionID, batchRef string) error {
	status, err := p.poller.WaitForCompletion(ctx, executionID, batchRef)
	if err != nil {
		return err
	}
	if status.Status != model.StatusCompleted {
		logger.Warnf("Batch '%s' finished with status '%s'; skipping load.", batchRef, status.Status)
		return nil
	}

	retrieved := p.materializer.Retrieve(ctx, executionID, batchRef)
	switch retrieved.Status {
	case model.StatusCompleted, model.StatusAlreadyRetrieved:
	default:
		logger.Warnf("Batch '%s' could not be materialized (status '%s'): %s", batchRef, retrieved.Status, retrieved.Error)
		return nil
	}

	loaded := p.loader.LoadResults(ctx, executionID, batchRef)
	if loaded.Status == model.StatusFailed {
		logger.Warnf("Batch '%s' could not be loaded: %s", batchRef, loaded.Error)
		return nil
	}
	logger.Infof("Batch '%s' merged: %d entities, %d relationships, %d failed documents.",
		batchRef, loaded.NEntities, loaded.NRelationships, loaded.NFailed)
	return nil
}

// finish emits the snapshot export and the shutdown report.
func (p *Pipeline) finish(ctx context.Context) error {
	if p.cfg.Kgforge.Export.Enabled {
		if _, err := p.exporter.Export(ctx); err != nil {
			logger.Errorf("Parquet export failed: %v", err)
		}
	}

	p.resolver.ReportStats()
	if stats, err := p.graph.Stats(ctx); err != nil {
		logger.Warnf("Failed to read graph statistics: %v", err)
	} else {
		logger.Infof("Graph now holds %d entities and %d relationships.", stats.Entities, stats.Relationships)
	}
	return nil
}

// runError wraps a structured pipeline failure message as an error.
type runError struct {
	message string
}

func (e *runError) Error() string {
	return e.message
}
