// Package storage holds the narrow store interfaces the pipeline and query
// engine consume, plus the concrete adapters: Qdrant for vectors, Neo4j for
// the knowledge graph, SQLite for relational document metadata, and
// in-memory equivalents for tests and local runs.
//
// Writes are keyed by UUID and implemented as idempotent upserts. There is
// no cross-store transaction; a failed write never rolls back its siblings.
package storage

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/graphweave/graphweave/pkg/graph"
)

// ErrNotFound is returned by lookups for ids that were never stored.
var ErrNotFound = errors.New("not found")

// VectorHit is one similarity-search result, ordered by descending score.
type VectorHit struct {
	DocumentID uuid.UUID
	Score      float32
}

// GraphHit is one knowledge-graph search result. DocumentID references the
// document the entity was extracted from.
type GraphHit struct {
	Entity     graph.Entity
	DocumentID uuid.UUID
}

// GraphFilter narrows a knowledge-graph search. Zero fields are ignored.
type GraphFilter struct {
	EntityType  graph.EntityType
	EntityName  string
	MinStrength int
	Limit       int
}

// VectorStore persists embeddings and answers similarity queries.
type VectorStore interface {
	PutEmbedding(ctx context.Context, documentID uuid.UUID, embedding graph.Embedding, payload map[string]any) error
	Search(ctx context.Context, vector []float32, limit int) ([]VectorHit, error)
}

// GraphStore persists extracted entities and relationships.
type GraphStore interface {
	PutKnowledge(ctx context.Context, documentID uuid.UUID, entities []graph.Entity, relationships []graph.Relationship) error
	Search(ctx context.Context, filter GraphFilter) ([]GraphHit, error)
}

// RelationalStore persists document records and answers structured filters.
type RelationalStore interface {
	PutDocument(ctx context.Context, doc graph.Document) error
	GetDocument(ctx context.Context, id uuid.UUID) (graph.Document, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Search(ctx context.Context, filters map[string]string, limit int) ([]graph.Document, error)
}
