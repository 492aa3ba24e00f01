package storage

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/graphweave/graphweave/pkg/graph"
)

// MemoryVectorStore keeps embeddings in process memory. Useful for tests
// and single-node runs without a Qdrant deployment.
type MemoryVectorStore struct {
	mutex   sync.RWMutex
	entries []memoryVector
}

type memoryVector struct {
	documentID uuid.UUID
	ownerID    uuid.UUID
	vector     []float32
}

func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{}
}

func (s *MemoryVectorStore) PutEmbedding(ctx context.Context, documentID uuid.UUID, embedding graph.Embedding, payload map[string]any) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	// Upsert by owner id.
	for i := range s.entries {
		if s.entries[i].ownerID == embedding.OwnerID {
			s.entries[i] = memoryVector{documentID: documentID, ownerID: embedding.OwnerID, vector: embedding.Vector}
			return nil
		}
	}
	s.entries = append(s.entries, memoryVector{documentID: documentID, ownerID: embedding.OwnerID, vector: embedding.Vector})
	return nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, vector []float32, limit int) ([]VectorHit, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	type scored struct {
		hit   VectorHit
		index int
	}
	best := make(map[uuid.UUID]scored)
	for i, entry := range s.entries {
		score := cosineSimilarity(vector, entry.vector)
		prev, seen := best[entry.documentID]
		if !seen || score > prev.hit.Score {
			best[entry.documentID] = scored{hit: VectorHit{DocumentID: entry.documentID, Score: score}, index: i}
		}
	}

	ranked := make([]scored, 0, len(best))
	for _, s := range best {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].hit.Score != ranked[j].hit.Score {
			return ranked[i].hit.Score > ranked[j].hit.Score
		}
		return ranked[i].index < ranked[j].index
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	hits := make([]VectorHit, 0, len(ranked))
	for _, s := range ranked {
		hits = append(hits, s.hit)
	}
	return hits, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// MemoryGraphStore keeps extracted knowledge in process memory.
type MemoryGraphStore struct {
	mutex   sync.RWMutex
	entries []memoryKnowledge
}

type memoryKnowledge struct {
	documentID    uuid.UUID
	entities      []graph.Entity
	relationships []graph.Relationship
}

func NewMemoryGraphStore() *MemoryGraphStore {
	return &MemoryGraphStore{}
}

func (s *MemoryGraphStore) PutKnowledge(ctx context.Context, documentID uuid.UUID, entities []graph.Entity, relationships []graph.Relationship) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	for i := range s.entries {
		if s.entries[i].documentID == documentID {
			s.entries[i].entities = entities
			s.entries[i].relationships = relationships
			return nil
		}
	}
	s.entries = append(s.entries, memoryKnowledge{documentID: documentID, entities: entities, relationships: relationships})
	return nil
}

func (s *MemoryGraphStore) Search(ctx context.Context, filter GraphFilter) ([]GraphHit, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var hits []GraphHit
	for _, entry := range s.entries {
		for _, entity := range entry.entities {
			if filter.EntityType != "" && entity.Type != filter.EntityType {
				continue
			}
			if filter.EntityName != "" && !strings.EqualFold(entity.Name, filter.EntityName) {
				continue
			}
			if filter.MinStrength > 0 && maxStrength(entry.relationships, entity.Name) < filter.MinStrength {
				continue
			}
			hits = append(hits, GraphHit{Entity: entity, DocumentID: entry.documentID})
			if filter.Limit > 0 && len(hits) >= filter.Limit {
				return hits, nil
			}
		}
	}
	return hits, nil
}

func maxStrength(relationships []graph.Relationship, name string) int {
	max := 0
	for _, rel := range relationships {
		if rel.Source == name || rel.Target == name {
			if rel.Strength > max {
				max = rel.Strength
			}
		}
	}
	return max
}

// MemoryRelationalStore keeps document records in process memory with
// stable insertion order.
type MemoryRelationalStore struct {
	mutex sync.RWMutex
	docs  map[uuid.UUID]graph.Document
	order []uuid.UUID
}

func NewMemoryRelationalStore() *MemoryRelationalStore {
	return &MemoryRelationalStore{docs: make(map[uuid.UUID]graph.Document)}
}

func (s *MemoryRelationalStore) PutDocument(ctx context.Context, doc graph.Document) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, exists := s.docs[doc.ID]; !exists {
		s.order = append(s.order, doc.ID)
	}
	s.docs[doc.ID] = doc
	return nil
}

func (s *MemoryRelationalStore) GetDocument(ctx context.Context, id uuid.UUID) (graph.Document, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	doc, exists := s.docs[id]
	if !exists {
		return graph.Document{}, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryRelationalStore) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	doc, exists := s.docs[id]
	if !exists {
		return ErrNotFound
	}
	doc.Status = status
	s.docs[id] = doc
	return nil
}

func (s *MemoryRelationalStore) Search(ctx context.Context, filters map[string]string, limit int) ([]graph.Document, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	var results []graph.Document
	for _, id := range s.order {
		doc := s.docs[id]
		if !matchesFilters(doc, filters) {
			continue
		}
		results = append(results, doc)
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

func matchesFilters(doc graph.Document, filters map[string]string) bool {
	for key, value := range filters {
		switch key {
		case "status":
			if doc.Status != value {
				return false
			}
		case "source_path":
			if doc.SourcePath != value {
				return false
			}
		default:
			return false
		}
	}
	return true
}
