// Package manifest wires the configured ManifestStore backend into the fx
// graph.
package manifest

import (
	"go.uber.org/fx"

	gormadaptor "github.com/kgforge/kgforge/pkg/kgforge/adaptor/database/gorm"
	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	fsstore "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/manifest/fs"
	"github.com/kgforge/kgforge/pkg/kgforge/infrastructure/manifest/gormstore"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// NewManifestStore selects the manifest backend from configuration:
// "gorm" opens the configured database, anything else falls back to the
// directory-backed store.
func NewManifestStore(cfg *config.Config) (repo.ManifestStore, error) {
	manifestCfg := cfg.Kgforge.Manifest
	switch manifestCfg.Backend {
	case "gorm":
		db, err := gormadaptor.Open(cfg, manifestCfg.DBRef)
		if err != nil {
			return nil, err
		}
		return gormstore.NewManifestStore(db)
	default:
		if manifestCfg.Backend != "" && manifestCfg.Backend != "fs" {
			logger.Warnf("Unknown manifest backend '%s', using 'fs'.", manifestCfg.Backend)
		}
		return fsstore.NewManifestStore(manifestCfg.BatchDir)
	}
}

// Module is an Fx module that provides the ManifestStore.
var Module = fx.Options(
	fx.Provide(NewManifestStore),
)
