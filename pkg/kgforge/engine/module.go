// Package engine bundles the pipeline stages into one Fx module.
package engine

import (
	"go.uber.org/fx"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/materialize"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/submit"
	"github.com/kgforge/kgforge/pkg/kgforge/engine/track"
	"github.com/kgforge/kgforge/pkg/kgforge/export"
	"github.com/kgforge/kgforge/pkg/kgforge/graphload"
	"github.com/kgforge/kgforge/pkg/kgforge/resolve"
)

// NewPoller builds the status poller from the configured backoff policy.
func NewPoller(tracker *track.Tracker, cfg *config.Config) *track.Poller {
	return track.NewPoller(tracker, cfg.Kgforge.Pipeline.Poll)
}

// NewExporter builds the Parquet snapshot exporter from configuration.
func NewExporter(graph repo.GraphStore, artifacts storageAdapter.Storage, cfg *config.Config) *export.Exporter {
	return export.NewExporter(graph, artifacts, cfg.Kgforge.Export)
}

// Module is an Fx module that provides the pipeline stages: submit, track,
// materialize, resolve, load, and export.
var Module = fx.Options(
	fx.Provide(submit.NewSubmitter),
	fx.Provide(track.NewTracker),
	fx.Provide(NewPoller),
	fx.Provide(materialize.NewMaterializer),
	fx.Provide(resolve.NewResolver),
	fx.Provide(graphload.NewLoader),
	fx.Provide(NewExporter),
)
