package gorm

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
)

func init() {
	RegisterDialector("postgres", func(cfg config.DatabaseConfig) (gorm.Dialector, error) {
		sslmode := cfg.Sslmode
		if sslmode == "" {
			sslmode = "disable"
		}
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
			cfg.Host, cfg.User, cfg.Password, cfg.Database, cfg.Port, sslmode)
		return postgres.Open(dsn), nil
	})
}
