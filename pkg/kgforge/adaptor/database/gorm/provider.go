// Package gorm opens database connections for the relational manifest
// backend. Database types are registered through a dialector registry so the
// store code stays driver-agnostic.
package gorm

import (
	"fmt"
	"sync"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/configbinder"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

// DialectorFactory generates a gorm.Dialector from a DatabaseConfig.
type DialectorFactory func(cfg config.DatabaseConfig) (gorm.Dialector, error)

var (
	dialectorRegistry = make(map[string]DialectorFactory)
	dialectorMutex    sync.RWMutex
)

// RegisterDialector registers a DialectorFactory for the given database type.
func RegisterDialector(dbType string, factory DialectorFactory) {
	dialectorMutex.Lock()
	defer dialectorMutex.Unlock()
	if _, exists := dialectorRegistry[dbType]; exists {
		logger.Warnf("Dialector for type '%s' already registered. Overwriting.", dbType)
	}
	dialectorRegistry[dbType] = factory
}

// GetDialectorFactory retrieves the DialectorFactory for the specified DB type.
func GetDialectorFactory(dbType string) (DialectorFactory, error) {
	dialectorMutex.RLock()
	defer dialectorMutex.RUnlock()
	factory, ok := dialectorRegistry[dbType]
	if !ok {
		return nil, fmt.Errorf("no dialector registered for database type: %s", dbType)
	}
	return factory, nil
}

// Open opens the database connection named by the adaptor config entry.
// The untyped YAML entry is bound to a DatabaseConfig before dispatching to
// the registered dialector.
func Open(cfg *config.Config, name string) (*gorm.DB, error) {
	raw, ok := cfg.Kgforge.AdaptorConfigs[name]
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' not found in adaptor configs", name)
	}
	props, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("database configuration '%s' is not a mapping", name)
	}

	var dbCfg config.DatabaseConfig
	if err := configbinder.BindConfig(props, &dbCfg); err != nil {
		return nil, fmt.Errorf("failed to bind database config for '%s': %w", name, err)
	}

	factory, err := GetDialectorFactory(dbCfg.Type)
	if err != nil {
		return nil, err
	}
	dialector, err := factory(dbCfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection '%s' (%s): %w", name, dbCfg.Type, err)
	}
	logger.Infof("Established DB connection: %s (%s)", name, dbCfg.Type)
	return db, nil
}
