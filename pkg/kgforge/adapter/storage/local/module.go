package local

import (
	"go.uber.org/fx"

	storageAdapter "github.com/kgforge/kgforge/pkg/kgforge/adapter/storage"
	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
)

// NewArtifactStore provides the artifact store rooted at the configured
// batch directory. Request payloads and materialized results live next to
// the filesystem manifest regardless of which manifest backend is active.
func NewArtifactStore(cfg *config.Config) (storageAdapter.Storage, error) {
	return NewLocalAdapter(cfg.Kgforge.Manifest.BatchDir)
}

// Module is an Fx module that provides the local artifact store.
var Module = fx.Options(
	fx.Provide(NewArtifactStore),
)
