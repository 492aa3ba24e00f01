package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v4/neo4j"
	"github.com/pkg/errors"

	"github.com/graphweave/graphweave/pkg/graph"
)

// Neo4jGraphStore implements GraphStore on Neo4j. Entities are merged by
// name so repeated ingestion of the same document is an upsert, not a
// duplicate.
type Neo4jGraphStore struct {
	driver neo4j.Driver
}

var _ GraphStore = (*Neo4jGraphStore)(nil)

func NewNeo4jGraphStore(uri, username, password string) (*Neo4jGraphStore, error) {
	driver, err := neo4j.NewDriver(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Neo4j driver")
	}
	return &Neo4jGraphStore{driver: driver}, nil
}

func (s *Neo4jGraphStore) Close() error {
	return s.driver.Close()
}

func (s *Neo4jGraphStore) PutKnowledge(ctx context.Context, documentID uuid.UUID, entities []graph.Entity, relationships []graph.Relationship) error {
	session := s.driver.NewSession(neo4j.SessionConfig{})
	defer session.Close()

	_, err := session.WriteTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		for _, entity := range entities {
			_, err := tx.Run(`
				MERGE (e:Entity {name: $name})
				SET e.type = $type,
					e.description = $description,
					e.document_id = $document_id,
					e.updated_at = datetime()
			`, map[string]interface{}{
				"name":        entity.Name,
				"type":        string(entity.Type),
				"description": entity.Description,
				"document_id": documentID.String(),
			})
			if err != nil {
				return nil, err
			}
		}

		for _, rel := range relationships {
			_, err := tx.Run(`
				MATCH (from:Entity {name: $source})
				MATCH (to:Entity {name: $target})
				MERGE (from)-[r:RELATES]->(to)
				SET r.description = $description,
					r.strength = $strength,
					r.document_id = $document_id,
					r.updated_at = datetime()
			`, map[string]interface{}{
				"source":      rel.Source,
				"target":      rel.Target,
				"description": rel.Description,
				"strength":    rel.Strength,
				"document_id": documentID.String(),
			})
			if err != nil {
				return nil, err
			}
		}

		return nil, nil
	})
	if err != nil {
		return &graph.StoreWriteError{Store: "graph", Err: err}
	}
	return nil
}

func (s *Neo4jGraphStore) Search(ctx context.Context, filter GraphFilter) ([]GraphHit, error) {
	session := s.driver.NewSession(neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close()

	query := "MATCH (e:Entity)"
	params := map[string]interface{}{}
	where := ""

	appendClause := func(clause string) {
		if where == "" {
			where = " WHERE " + clause
			return
		}
		where += " AND " + clause
	}

	if filter.MinStrength > 0 {
		query = "MATCH (e:Entity)-[r:RELATES]-()"
		appendClause("r.strength >= $min_strength")
		params["min_strength"] = filter.MinStrength
	}
	if filter.EntityType != "" {
		appendClause("e.type = $type")
		params["type"] = string(filter.EntityType)
	}
	if filter.EntityName != "" {
		appendClause("e.name = $name")
		params["name"] = filter.EntityName
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	query += where + fmt.Sprintf(" RETURN DISTINCT e LIMIT %d", limit)

	result, err := session.ReadTransaction(func(tx neo4j.Transaction) (interface{}, error) {
		records, err := tx.Run(query, params)
		if err != nil {
			return nil, err
		}

		var hits []GraphHit
		for records.Next() {
			node, ok := records.Record().Values[0].(neo4j.Node)
			if !ok {
				continue
			}
			hit := GraphHit{
				Entity: graph.Entity{
					Name:        stringProp(node, "name"),
					Type:        graph.EntityType(stringProp(node, "type")),
					Description: stringProp(node, "description"),
				},
			}
			if docID, err := uuid.Parse(stringProp(node, "document_id")); err == nil {
				hit.DocumentID = docID
			}
			hits = append(hits, hit)
		}
		return hits, records.Err()
	})
	if err != nil {
		return nil, errors.Wrap(err, "graph search failed")
	}

	return result.([]GraphHit), nil
}

func stringProp(node neo4j.Node, key string) string {
	if value, ok := node.Props[key].(string); ok {
		return value
	}
	return ""
}
