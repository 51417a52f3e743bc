package gorm

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
)

func init() {
	RegisterDialector("sqlite", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		dsn := cfg.Database
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		return sqlite.Open(dsn), nil
	})
}
