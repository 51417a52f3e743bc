// Package graph wires the Neo4j GraphStore into the fx graph.
package graph

import (
	"context"

	"go.uber.org/fx"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	neo4jstore "github.com/kgforge/kgforge/pkg/kgforge/infrastructure/graph/neo4j"
)

// NewGraphStore connects to Neo4j and ensures the schema exists.
func NewGraphStore(lc fx.Lifecycle, cfg *config.Config) (repo.GraphStore, error) {
	store, err := neo4jstore.NewGraphStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return store.EnsureSchema(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return store.Close(ctx)
		},
	})
	return store, nil
}

// Module is an Fx module that provides the GraphStore.
var Module = fx.Options(
	fx.Provide(NewGraphStore),
)
