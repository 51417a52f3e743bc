// Package inmemory provides a map-backed GraphStore used by tests and dry
// runs. Relationship upserts collapse on (source, target, type) exactly like
// the Neo4j MERGE.
package inmemory

import (
	"context"
	"fmt"
	"sync"

	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
)

// GraphStore is an in-memory implementation of repository.GraphStore.
type GraphStore struct {
	mu            sync.Mutex
	entities      map[string]*model.Entity       // by id
	relationships map[string]*model.Relationship // by source|type|target
}

var _ repo.GraphStore = (*GraphStore)(nil)

// NewGraphStore creates an empty in-memory graph store.
func NewGraphStore() *GraphStore {
	return &GraphStore{
		entities:      make(map[string]*model.Entity),
		relationships: make(map[string]*model.Relationship),
	}
}

// EnsureSchema does nothing for the in-memory store.
func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	return nil
}

// FindEntity looks up an entity by its raw (name, type) pair.
func (s *GraphStore) FindEntity(ctx context.Context, name, entityType string) (*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entity := range s.entities {
		if entity.Name == name && entity.Type == entityType {
			return copyEntity(entity), nil
		}
	}
	return nil, repo.ErrEntityNotFound
}

// FindEntitiesByType returns all entities of the given type.
func (s *GraphStore) FindEntitiesByType(ctx context.Context, entityType string) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Entity
	for _, entity := range s.entities {
		if entity.Type == entityType {
			out = append(out, copyEntity(entity))
		}
	}
	return out, nil
}

// AllEntities returns every entity in the store.
func (s *GraphStore) AllEntities(ctx context.Context) ([]*model.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Entity, 0, len(s.entities))
	for _, entity := range s.entities {
		out = append(out, copyEntity(entity))
	}
	return out, nil
}

// CreateEntity persists a new canonical entity.
func (s *GraphStore) CreateEntity(ctx context.Context, entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entities[entity.ID] = copyEntity(entity)
	return nil
}

// UpdateEntity merges name and attributes into an existing entity.
func (s *GraphStore) UpdateEntity(ctx context.Context, entity *model.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.entities[entity.ID]
	if !ok {
		return repo.ErrEntityNotFound
	}
	if entity.Name != "" {
		current.Name = entity.Name
	}
	if current.Attributes == nil {
		current.Attributes = map[string]string{}
	}
	for k, v := range entity.Attributes {
		current.Attributes[k] = v
	}
	return nil
}

// UpsertRelationship collapses edges on (source, target, type) with
// last-write-wins attributes.
func (s *GraphStore) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entities[rel.SourceID]; !ok {
		return fmt.Errorf("relationship source '%s' does not exist", rel.SourceID)
	}
	if _, ok := s.entities[rel.TargetID]; !ok {
		return fmt.Errorf("relationship target '%s' does not exist", rel.TargetID)
	}

	key := rel.SourceID + "|" + rel.Type + "|" + rel.TargetID
	if existing, ok := s.relationships[key]; ok {
		if existing.Attributes == nil {
			existing.Attributes = map[string]string{}
		}
		for k, v := range rel.Attributes {
			existing.Attributes[k] = v
		}
		return nil
	}

	stored := *rel
	if rel.Attributes != nil {
		stored.Attributes = make(map[string]string, len(rel.Attributes))
		for k, v := range rel.Attributes {
			stored.Attributes[k] = v
		}
	}
	s.relationships[key] = &stored
	return nil
}

// Stats returns entity and relationship counts.
func (s *GraphStore) Stats(ctx context.Context) (*model.GraphStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &model.GraphStats{
		Entities:      int64(len(s.entities)),
		Relationships: int64(len(s.relationships)),
	}, nil
}

// Close releases nothing for the in-memory store.
func (s *GraphStore) Close(ctx context.Context) error {
	return nil
}

// Relationships returns all stored relationships. Test helper.
func (s *GraphStore) Relationships() []*model.Relationship {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.Relationship, 0, len(s.relationships))
	for _, rel := range s.relationships {
		r := *rel
		out = append(out, &r)
	}
	return out
}

func copyEntity(entity *model.Entity) *model.Entity {
	out := *entity
	if entity.Attributes != nil {
		out.Attributes = make(map[string]string, len(entity.Attributes))
		for k, v := range entity.Attributes {
			out.Attributes[k] = v
		}
	}
	return &out
}
