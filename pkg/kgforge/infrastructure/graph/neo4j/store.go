// Package neo4j provides the Neo4j-backed GraphStore. Entities are MERGEd by
// canonical id and attributes are applied with `SET e += $props`, so upserts
// only add or overwrite properties. A uniqueness constraint on entity ids
// backs the resolver's single-writer guarantee.
package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	config "github.com/kgforge/kgforge/pkg/kgforge/core/config"
	model "github.com/kgforge/kgforge/pkg/kgforge/core/domain/model"
	repo "github.com/kgforge/kgforge/pkg/kgforge/core/domain/repository"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/exception"
	"github.com/kgforge/kgforge/pkg/kgforge/support/util/logger"
)

const moduleName = "graph"

// reservedProps are entity properties that are not free-form attributes.
var reservedProps = map[string]struct{}{"id": {}, "name": {}, "type": {}}

var relTypeSanitizer = regexp.MustCompile(`[^A-Z0-9_]`)

// GraphStore is the Neo4j implementation of repository.GraphStore.
type GraphStore struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ repo.GraphStore = (*GraphStore)(nil)

// NewGraphStore connects to Neo4j and verifies connectivity.
func NewGraphStore(ctx context.Context, cfg *config.Config) (*GraphStore, error) {
	graphCfg := cfg.Kgforge.Graph
	driver, err := neo4j.NewDriverWithContext(graphCfg.URI, neo4j.BasicAuth(graphCfg.Username, graphCfg.Password, ""))
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "failed to create neo4j driver", err, false, false)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, exception.NewBatchError(moduleName, fmt.Sprintf("failed to connect to neo4j at '%s'", graphCfg.URI), err, false, true)
	}
	logger.Infof("Connected to neo4j at '%s'.", graphCfg.URI)
	return &GraphStore{driver: driver, database: graphCfg.Database}, nil
}

func (s *GraphStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// EnsureSchema creates the entity id constraint and the (name, type) index.
// Failures are logged and not fatal: older server versions reject the syntax.
func (s *GraphStore) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT entity_id_unique IF NOT EXISTS FOR (e:Entity) REQUIRE e.id IS UNIQUE",
		"CREATE INDEX entity_name_type IF NOT EXISTS FOR (e:Entity) ON (e.name, e.type)",
	}
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range statements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, err
			}
			_, err = result.Consume(ctx)
			return nil, err
		})
		if err != nil {
			logger.Warnf("Schema statement failed (continuing): %v", err)
		}
	}
	return nil
}

// FindEntity looks up an entity by its raw (name, type) pair.
func (s *GraphStore) FindEntity(ctx context.Context, name, entityType string) (*model.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	record, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (e:Entity {name: $name, type: $type}) RETURN properties(e) AS props LIMIT 1",
			map[string]any{"name": name, "type": entityType})
		if err != nil {
			return nil, err
		}
		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, nil
		}
		return records[0], nil
	})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "entity lookup failed", err, false, true)
	}
	if record == nil {
		return nil, repo.ErrEntityNotFound
	}
	return entityFromRecord(record.(*neo4j.Record))
}

// FindEntitiesByType returns all entities of the given type.
func (s *GraphStore) FindEntitiesByType(ctx context.Context, entityType string) ([]*model.Entity, error) {
	return s.collectEntities(ctx,
		"MATCH (e:Entity {type: $type}) RETURN properties(e) AS props",
		map[string]any{"type": entityType})
}

// AllEntities returns every entity in the store.
func (s *GraphStore) AllEntities(ctx context.Context) ([]*model.Entity, error) {
	return s.collectEntities(ctx, "MATCH (e:Entity) RETURN properties(e) AS props", nil)
}

func (s *GraphStore) collectEntities(ctx context.Context, query string, params map[string]any) ([]*model.Entity, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "entity query failed", err, false, true)
	}

	var entities []*model.Entity
	for _, record := range records.([]*neo4j.Record) {
		entity, err := entityFromRecord(record)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, nil
}

// CreateEntity persists a new canonical entity.
func (s *GraphStore) CreateEntity(ctx context.Context, entity *model.Entity) error {
	return s.write(ctx,
		"MERGE (e:Entity {id: $id}) SET e += $props",
		map[string]any{"id": entity.ID, "props": entityProps(entity)})
}

// UpdateEntity merges name and attributes into an existing entity.
func (s *GraphStore) UpdateEntity(ctx context.Context, entity *model.Entity) error {
	return s.write(ctx,
		"MATCH (e:Entity {id: $id}) SET e += $props",
		map[string]any{"id": entity.ID, "props": entityProps(entity)})
}

// UpsertRelationship MERGEs the edge keyed by canonical endpoint ids plus
// relationship type. The type is interpolated into the Cypher after
// sanitizing, since relationship types cannot be parameterized.
func (s *GraphStore) UpsertRelationship(ctx context.Context, rel *model.Relationship) error {
	relType := sanitizeRelType(rel.Type)
	query := fmt.Sprintf(
		"MATCH (a:Entity {id: $source}) MATCH (b:Entity {id: $target}) "+
			"MERGE (a)-[r:%s]->(b) ON CREATE SET r.id = $id SET r += $props",
		relType)

	props := map[string]any{}
	for k, v := range rel.Attributes {
		if _, reserved := reservedProps[k]; !reserved {
			props[k] = v
		}
	}
	return s.write(ctx, query, map[string]any{
		"source": rel.SourceID,
		"target": rel.TargetID,
		"id":     rel.ID,
		"props":  props,
	})
}

// Stats returns entity and relationship counts.
func (s *GraphStore) Stats(ctx context.Context) (*model.GraphStats, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	stats, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx,
			"MATCH (e:Entity) OPTIONAL MATCH (e)-[r]->() RETURN count(DISTINCT e) AS entities, count(r) AS relationships",
			nil)
		if err != nil {
			return nil, err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}
		entities, _ := record.Get("entities")
		relationships, _ := record.Get("relationships")
		return &model.GraphStats{
			Entities:      entities.(int64),
			Relationships: relationships.(int64),
		}, nil
	})
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "stats query failed", err, false, true)
	}
	return stats.(*model.GraphStats), nil
}

// Close closes the underlying driver.
func (s *GraphStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *GraphStore) write(ctx context.Context, query string, params map[string]any) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		_, err = result.Consume(ctx)
		return nil, err
	})
	if err != nil {
		return exception.NewBatchError(moduleName, "graph write failed", err, false, true)
	}
	return nil
}

// entityProps flattens an entity into node properties. Attribute keys never
// shadow the reserved id/name/type properties.
func entityProps(entity *model.Entity) map[string]any {
	props := map[string]any{
		"name": entity.Name,
		"type": entity.Type,
	}
	for k, v := range entity.Attributes {
		if _, reserved := reservedProps[k]; !reserved {
			props[k] = v
		}
	}
	return props
}

func entityFromRecord(record *neo4j.Record) (*model.Entity, error) {
	raw, ok := record.Get("props")
	if !ok {
		return nil, exception.NewBatchError(moduleName, "entity record missing properties", nil, false, false)
	}
	props, ok := raw.(map[string]any)
	if !ok {
		return nil, exception.NewBatchError(moduleName, "unexpected entity property shape", nil, false, false)
	}

	entity := &model.Entity{Attributes: map[string]string{}}
	for k, v := range props {
		str, _ := v.(string)
		switch k {
		case "id":
			entity.ID = str
		case "name":
			entity.Name = str
		case "type":
			entity.Type = str
		default:
			if s, ok := v.(string); ok {
				entity.Attributes[k] = s
			} else {
				entity.Attributes[k] = fmt.Sprintf("%v", v)
			}
		}
	}
	return entity, nil
}

// sanitizeRelType uppercases the type and strips characters that are not
// legal in a Cypher relationship type.
func sanitizeRelType(relType string) string {
	upper := strings.ToUpper(strings.TrimSpace(relType))
	upper = strings.ReplaceAll(upper, " ", "_")
	cleaned := relTypeSanitizer.ReplaceAllString(upper, "_")
	if cleaned == "" || cleaned == strings.Repeat("_", len(cleaned)) {
		return "RELATED_TO"
	}
	return cleaned
}
