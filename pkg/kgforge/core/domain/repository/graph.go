package repository

import (
	"context"
	"errors"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
)

// ErrEntityNotFound is the error returned when no entity matches a lookup.
var ErrEntityNotFound = errors.New("entity not found")

// GraphStore is the target property graph. The Entity Resolver is the only
// writer of new canonical ids; the Graph Loader owns commit order (entities
// before relationships referencing them).
type GraphStore interface {
	// EnsureSchema creates the uniqueness constraint on canonical entity ids
	// and supporting indexes. Best-effort: failures are logged, not fatal.
	EnsureSchema(ctx context.Context) error

	// FindEntity looks up an entity by its raw (name, type) pair.
	// Returns ErrEntityNotFound when no entity matches.
	FindEntity(ctx context.Context, name, entityType string) (*model.Entity, error)

	// FindEntitiesByType returns all entities of the given type. Used by the
	// fuzzy pass of entity resolution.
	FindEntitiesByType(ctx context.Context, entityType string) ([]*model.Entity, error)

	// AllEntities returns every entity in the store. Used by the snapshot export.
	AllEntities(ctx context.Context) ([]*model.Entity, error)

	// CreateEntity persists a new canonical entity.
	CreateEntity(ctx context.Context, entity *model.Entity) error

	// UpdateEntity merges updated name and attributes into an existing entity.
	// Attributes are only added or overwritten, never deleted.
	UpdateEntity(ctx context.Context, entity *model.Entity) error

	// UpsertRelationship creates the edge if absent and sets its attributes
	// if present, keyed by (source, target, type). Multiple relationships of
	// the same type between the same pair collapse into one edge.
	UpsertRelationship(ctx context.Context, rel *model.Relationship) error

	// Stats returns entity and relationship counts for the shutdown report.
	Stats(ctx context.Context) (*model.GraphStats, error)

	// Close releases the underlying driver resources.
	Close(ctx context.Context) error
}
